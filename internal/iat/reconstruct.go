package iat

import (
	"encoding/binary"
	"fmt"

	"github.com/ZacharyZcR/VMPRebuild/internal/pe"
	"github.com/ZacharyZcR/VMPRebuild/internal/resolve"
)

// descriptor mirrors IMAGE_IMPORT_DESCRIPTOR.
type descriptor struct {
	OriginalFirstThunk uint32 // RVA to Import Name Table (INT).
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32 // RVA to DLL name.
	FirstThunk         uint32 // RVA to Import Address Table (IAT).
}

// Reconstructor writes a complete import directory for the resolved imports
// into one new section and points the optional header at it.
type Reconstructor struct {
	SectionName string
}

// Rebuild allocates a new read/write section sized for the import directory,
// lays out descriptors, thunk arrays, hint/name entries and name strings, and
// patches the import and IAT data directories. The returned section is the
// one that now holds the directory.
func (r *Reconstructor) Rebuild(img *pe.Image, imports []resolve.ResolvedImport) (*pe.Section, error) {
	if len(imports) == 0 {
		return nil, fmt.Errorf("没有可写入的导入记录")
	}

	sectionName := r.SectionName
	if sectionName == "" {
		sectionName = ".idata2"
	}

	ptrSize := ptrSizeFor(img)
	groups := GroupByModule(imports)
	lay := computeLayout(groups, ptrSize)

	section, err := img.AddSection(sectionName, lay.total, pe.CommonCharacteristics.ReadWrite)
	if err != nil {
		return nil, fmt.Errorf("创建导入目录节区失败: %w", err)
	}

	data := make([]byte, lay.total)
	base := section.VirtualAddress

	r.writeDescriptors(data, base, groups, lay)
	r.writeThunks(data, base, groups, lay, img.Is64(), ptrSize)
	r.writeNames(data, groups, lay)

	if err := img.WriteRVA(section.VirtualAddress, data); err != nil {
		return nil, fmt.Errorf("写入导入目录失败: %w", err)
	}

	if err := img.SetDataDirectory(pe.DirectoryEntryImport, base, lay.descriptorTableSize); err != nil {
		return nil, fmt.Errorf("更新导入目录失败: %w", err)
	}
	if err := img.SetDataDirectory(pe.DirectoryEntryIAT, base+lay.iatStart, lay.iatSize); err != nil {
		return nil, fmt.Errorf("更新IAT目录失败: %w", err)
	}

	return section, nil
}

// writeDescriptors emits one descriptor per module plus the null terminator
// already present in the zeroed buffer.
func (r *Reconstructor) writeDescriptors(data []byte, base uint32, groups []ModuleImports, lay *layout) {
	for i := range groups {
		encodeDescriptor(data[uint32(i)*descriptorSize:], descriptor{
			OriginalFirstThunk: base + lay.intOffsets[i],
			Name:               base + lay.dllNameOffsets[i],
			FirstThunk:         base + lay.iatOffsets[i],
		})
	}
}

// writeThunks fills the INT and IAT arrays; every entry points at its
// hint/name entry, and the loader overwrites the IAT copies at load time.
func (r *Reconstructor) writeThunks(data []byte, base uint32, groups []ModuleImports, lay *layout, is64 bool, ptrSize uint32) {
	for i, group := range groups {
		for j := range group.Imports {
			value := uint64(base + lay.hintNameOffsets[i][j])
			writeThunkEntry(data, lay.intOffsets[i]+uint32(j)*ptrSize, value, is64)
			writeThunkEntry(data, lay.iatOffsets[i]+uint32(j)*ptrSize, value, is64)
		}
	}
}

// writeNames emits the hint/name entries (hint 0, the loader falls back to a
// name lookup) and the NUL-terminated DLL names.
func (r *Reconstructor) writeNames(data []byte, groups []ModuleImports, lay *layout) {
	for i, group := range groups {
		for j, imp := range group.Imports {
			offset := lay.hintNameOffsets[i][j]
			binary.LittleEndian.PutUint16(data[offset:], 0)
			copy(data[offset+2:], imp.Symbol)
			data[offset+2+uint32(len(imp.Symbol))] = 0
		}

		offset := lay.dllNameOffsets[i]
		copy(data[offset:], group.Name)
		data[offset+uint32(len(group.Name))] = 0
	}
}

func writeThunkEntry(data []byte, pos uint32, value uint64, is64 bool) {
	if is64 {
		binary.LittleEndian.PutUint64(data[pos:], value)
	} else {
		binary.LittleEndian.PutUint32(data[pos:], uint32(value))
	}
}

func encodeDescriptor(buf []byte, desc descriptor) {
	binary.LittleEndian.PutUint32(buf[0:4], desc.OriginalFirstThunk)
	binary.LittleEndian.PutUint32(buf[4:8], desc.TimeDateStamp)
	binary.LittleEndian.PutUint32(buf[8:12], desc.ForwarderChain)
	binary.LittleEndian.PutUint32(buf[12:16], desc.Name)
	binary.LittleEndian.PutUint32(buf[16:20], desc.FirstThunk)
}
