// Package pe builds a PE image in memory from a live process and grows it
// with new sections before committing it to disk.
package pe

import (
	"encoding/binary"
	"fmt"
)

// MemoryReader reads from a remote address space. Implementations must fill
// the whole buffer or return an error; short reads are never silent.
type MemoryReader interface {
	Read(addr uintptr, buf []byte) error
}

// Section is a parsed view of one section header.
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	RawOffset       uint32
	RawSize         uint32
	Characteristics uint32
}

// Image is an in-memory copy of a mapped PE module. The buffer keeps the
// mapped (virtual) layout, so after header realignment a byte's file offset
// equals its RVA and the buffer can be dumped as a loadable file.
type Image struct {
	base uint64
	buf  []byte

	peHeaderOffset uint32
	optHeaderSize  uint16
	is64           bool
	machine        uint16
	sectionAlign   uint32
	fileAlign      uint32
}

const (
	sectionHeaderSize = 40

	// Optional header data directory indices.
	DirectoryEntryImport = 1
	DirectoryEntryIAT    = 12
)

// NewImageFromMemory captures the mapped image of the module loaded at base
// in the remote process. The read covers [base, base+size) in one request; a
// partial read is an error, not a partial image. Section headers are then
// realigned for a memory dump so the buffer parses at its on-disk offsets.
func NewImageFromMemory(base uint64, size uint32, mem MemoryReader) (*Image, error) {
	if size == 0 {
		return nil, fmt.Errorf("镜像大小不能为0")
	}

	buf := make([]byte, size)
	if err := mem.Read(uintptr(base), buf); err != nil {
		return nil, fmt.Errorf("读取目标镜像 0x%X (%d 字节) 失败: %w", base, size, err)
	}

	img := &Image{base: base, buf: buf}
	if err := img.parseHeaders(); err != nil {
		return nil, err
	}
	img.realignForDump()

	return img, nil
}

// parseHeaders validates the DOS/NT headers and caches the geometry every
// later operation depends on.
func (img *Image) parseHeaders() error {
	if len(img.buf) < 64 || img.buf[0] != 'M' || img.buf[1] != 'Z' {
		return fmt.Errorf("无效的DOS头")
	}

	img.peHeaderOffset = binary.LittleEndian.Uint32(img.buf[60:64])
	pe := int(img.peHeaderOffset)
	if pe+24 > len(img.buf) {
		return fmt.Errorf("PE头偏移 0x%X 超出镜像范围", img.peHeaderOffset)
	}
	if img.buf[pe] != 'P' || img.buf[pe+1] != 'E' || img.buf[pe+2] != 0 || img.buf[pe+3] != 0 {
		return fmt.Errorf("无效的PE签名")
	}

	img.machine = binary.LittleEndian.Uint16(img.buf[pe+4:])
	img.optHeaderSize = binary.LittleEndian.Uint16(img.buf[pe+20:])

	opt := pe + 24
	if opt+96 > len(img.buf) {
		return fmt.Errorf("可选头超出镜像范围")
	}
	switch magic := binary.LittleEndian.Uint16(img.buf[opt:]); magic {
	case 0x10b:
		img.is64 = false
	case 0x20b:
		img.is64 = true
	default:
		return fmt.Errorf("未知的可选头魔数: 0x%X", magic)
	}

	img.sectionAlign = binary.LittleEndian.Uint32(img.buf[opt+32:])
	img.fileAlign = binary.LittleEndian.Uint32(img.buf[opt+36:])
	if img.sectionAlign == 0 {
		return fmt.Errorf("节区对齐值不能为0")
	}

	end := img.sectionTableOffset() + int64(img.NumberOfSections())*sectionHeaderSize
	if end > int64(len(img.buf)) {
		return fmt.Errorf("节区表超出镜像范围")
	}

	return nil
}

// realignForDump rewrites section headers for a memory-layout dump: raw
// offsets become virtual addresses and the file alignment is raised to the
// section alignment, so an OS loader (or debug/pe) maps the dumped file the
// same way the live image was mapped.
func (img *Image) realignForDump() {
	img.fileAlign = img.sectionAlign
	img.writeU32(img.optOffset()+36, img.sectionAlign)

	for i := 0; i < int(img.NumberOfSections()); i++ {
		off := img.sectionTableOffset() + int64(i)*sectionHeaderSize
		virtualSize := binary.LittleEndian.Uint32(img.buf[off+8:])
		virtualAddress := binary.LittleEndian.Uint32(img.buf[off+12:])
		img.writeU32(off+16, alignUp(virtualSize, img.sectionAlign)) // SizeOfRawData
		img.writeU32(off+20, virtualAddress)                         // PointerToRawData
	}
}

// Base returns the load base the image was captured at.
func (img *Image) Base() uint64 {
	return img.base
}

// Size returns the current buffer size in bytes.
func (img *Image) Size() uint32 {
	return uint32(len(img.buf))
}

// Bytes exposes the backing buffer. Callers must not grow it.
func (img *Image) Bytes() []byte {
	return img.buf
}

// Is64 reports whether the image is PE32+.
func (img *Image) Is64() bool {
	return img.is64
}

// Machine returns the COFF machine id.
func (img *Image) Machine() uint16 {
	return img.machine
}

// SectionAlignment returns the in-memory section alignment.
func (img *Image) SectionAlignment() uint32 {
	return img.sectionAlign
}

// NumberOfSections reads the live section count from the COFF header.
func (img *Image) NumberOfSections() uint16 {
	return binary.LittleEndian.Uint16(img.buf[img.peHeaderOffset+6:])
}

// SizeOfImage reads the current SizeOfImage from the optional header.
func (img *Image) SizeOfImage() uint32 {
	return binary.LittleEndian.Uint32(img.buf[img.optOffset()+56:])
}

// SizeOfHeaders reads the header-reserved region size.
func (img *Image) SizeOfHeaders() uint32 {
	return binary.LittleEndian.Uint32(img.buf[img.optOffset()+60:])
}

// Sections returns parsed views of all section headers, in table order.
func (img *Image) Sections() []Section {
	n := int(img.NumberOfSections())
	sections := make([]Section, 0, n)
	for i := 0; i < n; i++ {
		sections = append(sections, img.sectionAt(i))
	}
	return sections
}

func (img *Image) sectionAt(i int) Section {
	off := img.sectionTableOffset() + int64(i)*sectionHeaderSize
	name := img.buf[off : off+8]
	end := 0
	for end < 8 && name[end] != 0 {
		end++
	}
	return Section{
		Name:            string(name[:end]),
		VirtualSize:     binary.LittleEndian.Uint32(img.buf[off+8:]),
		VirtualAddress:  binary.LittleEndian.Uint32(img.buf[off+12:]),
		RawSize:         binary.LittleEndian.Uint32(img.buf[off+16:]),
		RawOffset:       binary.LittleEndian.Uint32(img.buf[off+20:]),
		Characteristics: binary.LittleEndian.Uint32(img.buf[off+36:]),
	}
}

// RVAToOffset converts an RVA to a buffer offset. Header RVAs map onto
// themselves; section RVAs map through the section table.
func (img *Image) RVAToOffset(rva uint32) (uint32, error) {
	if rva < img.SizeOfHeaders() {
		return rva, nil
	}
	for _, section := range img.Sections() {
		if rva >= section.VirtualAddress && rva-section.VirtualAddress < section.VirtualSize {
			return rva - section.VirtualAddress + section.RawOffset, nil
		}
	}
	return 0, fmt.Errorf("RVA 0x%X 不在任何节区中", rva)
}

// ReadRVA copies size bytes starting at rva out of the buffer.
func (img *Image) ReadRVA(rva, size uint32) ([]byte, error) {
	offset, err := img.RVAToOffset(rva)
	if err != nil {
		return nil, err
	}
	if uint64(offset)+uint64(size) > uint64(len(img.buf)) {
		return nil, fmt.Errorf("读取RVA 0x%X (%d 字节) 超出镜像范围", rva, size)
	}
	data := make([]byte, size)
	copy(data, img.buf[offset:])
	return data, nil
}

// WriteRVA copies data into the buffer at rva.
func (img *Image) WriteRVA(rva uint32, data []byte) error {
	offset, err := img.RVAToOffset(rva)
	if err != nil {
		return err
	}
	if uint64(offset)+uint64(len(data)) > uint64(len(img.buf)) {
		return fmt.Errorf("写入RVA 0x%X (%d 字节) 超出镜像范围", rva, len(data))
	}
	copy(img.buf[offset:], data)
	return nil
}

// SetDataDirectory patches one optional-header data directory entry.
func (img *Image) SetDataDirectory(index int, rva, size uint32) error {
	opt := img.optOffset()
	countOff := opt + 92
	dirOff := opt + 96
	if img.is64 {
		countOff = opt + 108
		dirOff = opt + 112
	}

	count := binary.LittleEndian.Uint32(img.buf[countOff:])
	if index < 0 || uint32(index) >= count {
		return fmt.Errorf("数据目录索引 %d 超出范围 (共 %d 项)", index, count)
	}

	entry := dirOff + int64(index)*8
	img.writeU32(entry, rva)
	img.writeU32(entry+4, size)
	return nil
}

// DataDirectory returns one optional-header data directory entry.
func (img *Image) DataDirectory(index int) (rva, size uint32, err error) {
	opt := img.optOffset()
	countOff := opt + 92
	dirOff := opt + 96
	if img.is64 {
		countOff = opt + 108
		dirOff = opt + 112
	}

	count := binary.LittleEndian.Uint32(img.buf[countOff:])
	if index < 0 || uint32(index) >= count {
		return 0, 0, fmt.Errorf("数据目录索引 %d 超出范围 (共 %d 项)", index, count)
	}

	entry := dirOff + int64(index)*8
	return binary.LittleEndian.Uint32(img.buf[entry:]), binary.LittleEndian.Uint32(img.buf[entry+4:]), nil
}

func (img *Image) optOffset() int64 {
	return int64(img.peHeaderOffset) + 24
}

func (img *Image) sectionTableOffset() int64 {
	return img.optOffset() + int64(img.optHeaderSize)
}

func (img *Image) writeU16(offset int64, v uint16) {
	binary.LittleEndian.PutUint16(img.buf[offset:], v)
}

func (img *Image) writeU32(offset int64, v uint32) {
	binary.LittleEndian.PutUint32(img.buf[offset:], v)
}
