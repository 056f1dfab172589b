package pe

import (
	"debug/pe"
	"fmt"
)

// SectionCharacteristics groups the flag combinations callers usually want.
type SectionCharacteristics struct {
	ReadOnly    uint32
	ReadWrite   uint32
	ReadExecute uint32
}

// CommonCharacteristics provides commonly used section characteristics.
var CommonCharacteristics = SectionCharacteristics{
	ReadOnly:    pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	ReadWrite:   pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE,
	ReadExecute: pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
}

// AddSection appends a new zero-filled section after the current layout end.
// The virtual address continues from the last section (aligned to the section
// alignment), the file offset continues from the buffer end (aligned to the
// file alignment), and NumberOfSections/SizeOfImage are updated to match.
// On any validation failure the image is left untouched.
func (img *Image) AddSection(name string, size uint32, characteristics uint32) (*Section, error) {
	if len(name) > 8 {
		return nil, fmt.Errorf("节区名称过长: %d 字节 (最大8字节)", len(name))
	}
	if size == 0 {
		return nil, fmt.Errorf("节区大小不能为0")
	}

	numberOfSections := img.NumberOfSections()
	if numberOfSections == 0 {
		return nil, fmt.Errorf("镜像没有节区表")
	}

	// The new header must fit in the header-reserved space, before the first
	// section's data begins.
	newHeaderEnd := img.sectionTableOffset() + (int64(numberOfSections)+1)*sectionHeaderSize
	firstSection := img.sectionAt(0)
	headerLimit := int64(img.SizeOfHeaders())
	if int64(firstSection.RawOffset) < headerLimit {
		headerLimit = int64(firstSection.RawOffset)
	}
	if newHeaderEnd > headerLimit {
		return nil, fmt.Errorf("节区头表空间不足，无法添加新节区")
	}

	last := img.sectionAt(int(numberOfSections) - 1)
	newVirtualAddress := alignUp(last.VirtualAddress+last.VirtualSize, img.sectionAlign)
	newFileOffset := alignUp(uint32(len(img.buf)), img.fileAlign)
	rawSize := alignUp(size, img.fileAlign)

	newVirtualEnd := newVirtualAddress + alignUp(size, img.sectionAlign)
	for _, existing := range img.Sections() {
		existingEnd := existing.VirtualAddress + alignUp(existing.VirtualSize, img.sectionAlign)
		if newVirtualAddress < existingEnd && existing.VirtualAddress < newVirtualEnd {
			return nil, fmt.Errorf("新节区虚拟地址 0x%X 与节区 %s 重叠", newVirtualAddress, existing.Name)
		}
	}

	// Grow the backing buffer to cover the new section's file-backed bytes.
	grown := make([]byte, newFileOffset+rawSize)
	copy(grown, img.buf)
	img.buf = grown

	var sectionName [8]byte
	copy(sectionName[:], name)

	off := img.sectionTableOffset() + int64(numberOfSections)*sectionHeaderSize
	copy(img.buf[off:off+8], sectionName[:])
	img.writeU32(off+8, size)               // VirtualSize
	img.writeU32(off+12, newVirtualAddress) // VirtualAddress
	img.writeU32(off+16, rawSize)           // SizeOfRawData
	img.writeU32(off+20, newFileOffset)     // PointerToRawData
	img.writeU32(off+24, 0)                 // PointerToRelocations
	img.writeU32(off+28, 0)                 // PointerToLinenumbers
	img.writeU16(off+32, 0)                 // NumberOfRelocations
	img.writeU16(off+34, 0)                 // NumberOfLinenumbers
	img.writeU32(off+36, characteristics)

	img.writeU16(int64(img.peHeaderOffset)+6, numberOfSections+1)
	img.writeU32(img.optOffset()+56, newVirtualAddress+alignUp(size, img.sectionAlign))

	section := img.sectionAt(int(numberOfSections))
	return &section, nil
}

// alignUp aligns a value up to the nearest multiple of alignment.
func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}
