// Package resolve maps absolute addresses observed in a target process back to
// the imported functions they belong to.
package resolve

// Export is one entry of a module's export table, kept in the directory's
// authored order.
type Export struct {
	Name string
	RVA  uint32
}

// MappedModule describes one module mapped in the target process, together
// with its export table.
type MappedModule struct {
	Name    string
	Base    uint64
	Size    uint32
	Exports []Export
}

// Contains reports whether addr falls inside the module's mapped range.
func (m *MappedModule) Contains(addr uint64) bool {
	return addr >= m.Base && addr-m.Base < uint64(m.Size)
}

// Translate converts an absolute address into a (module index, RVA) pair.
// Modules are checked in the supplied order and the first containing module
// wins, so callers encode attribution priority by ordering the slice (target
// module and its direct dependencies first).
func Translate(target uint64, modules []MappedModule) (int, uint32, bool) {
	for i := range modules {
		if modules[i].Contains(target) {
			return i, uint32(target - modules[i].Base), true
		}
	}
	return 0, 0, false
}
