package pe

import (
	"encoding/binary"
	"testing"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		checksumOffset int64
		want           uint32
	}{
		{
			name:           "Simple 8-byte buffer",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00},
			checksumOffset: -1, // No checksum field to skip.
			want:           11, // 1 + 2 + size(8)
		},
		{
			name: "Checksum field is skipped",
			data: []byte{
				0x01, 0x00, 0x00, 0x00, // DWORD 1
				0xFF, 0xFF, 0xFF, 0xFF, // Checksum field (skipped)
				0x02, 0x00, 0x00, 0x00, // DWORD 2
			},
			checksumOffset: 4,
			want:           15, // 1 + 2 + size(12)
		},
		{
			name:           "Partial last DWORD is zero padded",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00},
			checksumOffset: -1,
			want:           9, // 1 + 2 + size(6)
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateChecksum(tt.data, tt.checksumOffset)
			if got != tt.want {
				t.Errorf("calculateChecksum() = 0x%08X, want 0x%08X", got, tt.want)
			}
		})
	}
}

func TestChecksumCarryHandling(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[8:12], 0x00000001)
	binary.LittleEndian.PutUint32(data[12:16], 0x00000001)

	got := calculateChecksum(data, -1)

	// The one's complement fold keeps the sum inside 16 bits before the file
	// size is added.
	if got < uint32(len(data)) || got > 0xFFFF+uint32(len(data)) {
		t.Errorf("calculateChecksum() = 0x%X, want folded 16-bit sum + size", got)
	}
}

func TestUpdateChecksum(t *testing.T) {
	img := newTestImage(t, true)
	img.UpdateChecksum()

	checksumOffset := img.optOffset() + 64
	stored := binary.LittleEndian.Uint32(img.buf[checksumOffset:])
	want := calculateChecksum(img.buf, checksumOffset)
	if stored != want {
		t.Errorf("stored checksum = 0x%08X, want 0x%08X", stored, want)
	}

	// The field itself is excluded from the sum, so updating again is stable.
	img.UpdateChecksum()
	if again := binary.LittleEndian.Uint32(img.buf[checksumOffset:]); again != stored {
		t.Errorf("second UpdateChecksum() = 0x%08X, want 0x%08X", again, stored)
	}
}
