package resolve

// ResolvedTarget is the output of external call-site emulation: the import
// slot location and the absolute address the virtualized thunk really calls.
type ResolvedTarget struct {
	SlotAddress uint64
	Target      uint64
}

// ResolvedImport binds an import slot to a (module, symbol) pair.
type ResolvedImport struct {
	SlotAddress uint64
	Module      string
	Symbol      string
}

// Result carries the outcome of a matching pass. Unmatched targets are kept
// so callers can report them instead of dropping them silently.
type Result struct {
	Imports   []ResolvedImport
	Unmatched []ResolvedTarget
}

// Matcher resolves absolute call targets against the export tables of the
// mapped modules it was built with.
type Matcher struct {
	modules []MappedModule
}

// NewMatcher creates a matcher over the given modules. Module order is the
// attribution priority used by Translate.
func NewMatcher(modules []MappedModule) *Matcher {
	return &Matcher{modules: modules}
}

// Resolve matches every target against the module export tables. A target
// whose address falls outside every module, or inside a module with no export
// at that offset, ends up in Result.Unmatched; it never aborts the pass.
// No deduplication: two call sites resolving to the same symbol each keep
// their own record.
func (m *Matcher) Resolve(targets []ResolvedTarget) Result {
	var res Result

	for _, target := range targets {
		idx, rva, ok := Translate(target.Target, m.modules)
		if !ok {
			res.Unmatched = append(res.Unmatched, target)
			continue
		}

		mod := &m.modules[idx]
		export, ok := findExport(mod.Exports, rva)
		if !ok {
			res.Unmatched = append(res.Unmatched, target)
			continue
		}

		res.Imports = append(res.Imports, ResolvedImport{
			SlotAddress: target.SlotAddress,
			Module:      mod.Name,
			Symbol:      export.Name,
		})
	}

	return res
}

// findExport returns the first export whose RVA equals rva. Export tables are
// scanned in authored order, so aliased exports at the same RVA resolve to
// whichever the directory lists first.
func findExport(exports []Export, rva uint32) (Export, bool) {
	for _, e := range exports {
		if e.RVA == rva {
			return e, true
		}
	}
	return Export{}, false
}
