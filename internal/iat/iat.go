// Package iat turns resolved import records into a binary import directory
// inside a freshly added PE section.
package iat

import (
	"github.com/ZacharyZcR/VMPRebuild/internal/resolve"
)

// ModuleImports is one import group: every resolved import owned by a single
// DLL, in the order the imports were discovered.
type ModuleImports struct {
	Name    string
	Imports []resolve.ResolvedImport
}

// GroupByModule groups imports by owning module. Module order is first-seen
// order and per-module import order is append order, so identical input
// always produces an identical directory layout.
func GroupByModule(imports []resolve.ResolvedImport) []ModuleImports {
	var groups []ModuleImports
	index := make(map[string]int)

	for _, imp := range imports {
		i, ok := index[imp.Module]
		if !ok {
			i = len(groups)
			index[imp.Module] = i
			groups = append(groups, ModuleImports{Name: imp.Module})
		}
		groups[i].Imports = append(groups[i].Imports, imp)
	}

	return groups
}
