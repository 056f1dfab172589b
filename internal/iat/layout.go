package iat

import (
	"github.com/ZacharyZcR/VMPRebuild/internal/pe"
)

// layout holds the precomputed offsets of every import-directory
// sub-structure, relative to the start of the new section. The fixed order
// is: descriptor table, per-module INT arrays, per-module IAT arrays
// (contiguous, so the IAT data directory can cover them as one block),
// hint/name entries, DLL name strings.
type layout struct {
	total uint32

	intOffsets      []uint32
	iatOffsets      []uint32
	hintNameOffsets [][]uint32
	dllNameOffsets  []uint32

	descriptorTableSize uint32
	iatStart            uint32
	iatSize             uint32
}

func computeLayout(groups []ModuleImports, ptrSize uint32) *layout {
	lay := &layout{
		intOffsets:      make([]uint32, len(groups)),
		iatOffsets:      make([]uint32, len(groups)),
		hintNameOffsets: make([][]uint32, len(groups)),
		dllNameOffsets:  make([]uint32, len(groups)),
	}

	// Descriptor table: one entry per module plus a null terminator.
	lay.descriptorTableSize = uint32(len(groups)+1) * descriptorSize
	cursor := lay.descriptorTableSize

	// INT arrays: one null-terminated thunk array per module.
	for i, group := range groups {
		lay.intOffsets[i] = cursor
		cursor += uint32(len(group.Imports)+1) * ptrSize
	}

	// IAT arrays, laid out back to back.
	lay.iatStart = cursor
	for i, group := range groups {
		lay.iatOffsets[i] = cursor
		cursor += uint32(len(group.Imports)+1) * ptrSize
	}
	lay.iatSize = cursor - lay.iatStart

	// Hint/name entries: WORD hint + name + NUL per import. Each entry starts
	// on an even offset, as IMAGE_IMPORT_BY_NAME requires.
	for i, group := range groups {
		lay.hintNameOffsets[i] = make([]uint32, len(group.Imports))
		for j, imp := range group.Imports {
			cursor += cursor & 1
			lay.hintNameOffsets[i][j] = cursor
			cursor += 2 + uint32(len(imp.Symbol)) + 1
		}
	}

	// DLL name strings.
	for i, group := range groups {
		lay.dllNameOffsets[i] = cursor
		cursor += uint32(len(group.Name)) + 1
	}

	lay.total = alignUp(cursor, 16)
	return lay
}

func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}

func ptrSizeFor(img *pe.Image) uint32 {
	if img.Is64() {
		return 8
	}
	return 4
}

const descriptorSize = 20
