package pe

import (
	"encoding/binary"
	"errors"
	"testing"
)

const testImageBase = 0x140000000

// buildTestBuffer constructs a minimal mapped PE image with two sections:
// .text at RVA 0x1000 (virtual size 0x800) and .data at RVA 0x2000 (virtual
// size 0x400). SizeOfImage is 0x3000. The section raw pointers carry their
// original on-disk values so capture-time realignment is observable.
func buildTestBuffer(t *testing.T, is64 bool) []byte {
	t.Helper()

	buf := make([]byte, 0x3000)
	buf[0] = 'M'
	buf[1] = 'Z'
	binary.LittleEndian.PutUint32(buf[60:], 0x80) // e_lfanew

	copy(buf[0x80:], []byte{'P', 'E', 0, 0})

	coff := 0x84
	optSize := uint16(224)
	machine := uint16(0x014c) // i386
	if is64 {
		optSize = 240
		machine = 0x8664 // amd64
	}
	binary.LittleEndian.PutUint16(buf[coff:], machine)
	binary.LittleEndian.PutUint16(buf[coff+2:], 2)        // NumberOfSections
	binary.LittleEndian.PutUint16(buf[coff+16:], optSize) // SizeOfOptionalHeader
	binary.LittleEndian.PutUint16(buf[coff+18:], 0x0102)  // EXECUTABLE_IMAGE | 32BIT_MACHINE

	opt := 0x98
	if is64 {
		binary.LittleEndian.PutUint16(buf[opt:], 0x20b)
		binary.LittleEndian.PutUint64(buf[opt+24:], testImageBase) // ImageBase
		binary.LittleEndian.PutUint32(buf[opt+108:], 16)           // NumberOfRvaAndSizes
	} else {
		binary.LittleEndian.PutUint16(buf[opt:], 0x10b)
		binary.LittleEndian.PutUint32(buf[opt+28:], 0x400000) // ImageBase
		binary.LittleEndian.PutUint32(buf[opt+92:], 16)       // NumberOfRvaAndSizes
	}
	binary.LittleEndian.PutUint32(buf[opt+16:], 0x1000) // AddressOfEntryPoint
	binary.LittleEndian.PutUint32(buf[opt+32:], 0x1000) // SectionAlignment
	binary.LittleEndian.PutUint32(buf[opt+36:], 0x200)  // FileAlignment
	binary.LittleEndian.PutUint32(buf[opt+56:], 0x3000) // SizeOfImage
	binary.LittleEndian.PutUint32(buf[opt+60:], 0x400)  // SizeOfHeaders
	binary.LittleEndian.PutUint16(buf[opt+68:], 3)      // Subsystem: console

	table := opt + int(optSize)
	writeTestSectionHeader(buf, table, ".text", 0x800, 0x1000, 0x800, 0x400,
		0x60000020) // CODE | MEM_READ | MEM_EXECUTE
	writeTestSectionHeader(buf, table+40, ".data", 0x400, 0x2000, 0x200, 0xC00,
		0xC0000040) // INITIALIZED_DATA | MEM_READ | MEM_WRITE

	// Recognizable section contents.
	for i := 0; i < 0x800; i++ {
		buf[0x1000+i] = 0xCC
	}
	copy(buf[0x2000:], "section data")

	return buf
}

func writeTestSectionHeader(buf []byte, off int, name string, vsize, va, rawSize, rawOff, chars uint32) {
	copy(buf[off:off+8], name)
	binary.LittleEndian.PutUint32(buf[off+8:], vsize)
	binary.LittleEndian.PutUint32(buf[off+12:], va)
	binary.LittleEndian.PutUint32(buf[off+16:], rawSize)
	binary.LittleEndian.PutUint32(buf[off+20:], rawOff)
	binary.LittleEndian.PutUint32(buf[off+36:], chars)
}

// fakeMemory serves reads from a local buffer pretending to be a remote
// address space based at base.
type fakeMemory struct {
	base uint64
	data []byte
	err  error
}

func (f *fakeMemory) Read(addr uintptr, buf []byte) error {
	if f.err != nil {
		return f.err
	}
	off := uint64(addr) - f.base
	if off+uint64(len(buf)) > uint64(len(f.data)) {
		return errors.New("read out of mapped range")
	}
	copy(buf, f.data[off:])
	return nil
}

func newTestImage(t *testing.T, is64 bool) *Image {
	t.Helper()

	data := buildTestBuffer(t, is64)
	img, err := NewImageFromMemory(testImageBase, uint32(len(data)), &fakeMemory{base: testImageBase, data: data})
	if err != nil {
		t.Fatalf("NewImageFromMemory() error = %v", err)
	}
	return img
}
