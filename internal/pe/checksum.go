package pe

import (
	"encoding/binary"
)

// UpdateChecksum recalculates the PE checksum over the current buffer and
// writes it into the optional header.
func (img *Image) UpdateChecksum() {
	// CheckSum field: optional header offset 64 for both PE32 and PE32+.
	checksumOffset := img.optOffset() + 64
	img.writeU32(checksumOffset, calculateChecksum(img.buf, checksumOffset))
}

// calculateChecksum implements the standard PE checksum: 16-bit one's
// complement sum over the file in DWORD chunks, skipping the checksum field
// itself, plus the file size.
func calculateChecksum(buf []byte, checksumOffset int64) uint32 {
	var checksum uint64
	chunk := make([]byte, 4)

	for offset := int64(0); offset < int64(len(buf)); offset += 4 {
		if offset == checksumOffset {
			continue
		}

		n := copy(chunk, buf[offset:])
		for i := n; i < 4; i++ {
			chunk[i] = 0
		}

		checksum += uint64(binary.LittleEndian.Uint32(chunk))
		if checksum > 0xFFFFFFFF {
			checksum = (checksum & 0xFFFFFFFF) + (checksum >> 32)
		}
	}

	checksum = (checksum & 0xFFFF) + (checksum >> 16)
	checksum += checksum >> 16
	checksum &= 0xFFFF

	return uint32(checksum) + uint32(len(buf))
}
