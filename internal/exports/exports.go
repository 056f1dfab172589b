// Package exports reads export tables out of locally mapped module files.
package exports

import (
	"fmt"

	peparser "github.com/saferwall/pe"

	"github.com/ZacharyZcR/VMPRebuild/internal/resolve"
)

// Load parses the module file at path and returns its export table in the
// directory's authored order. Ordinal-only exports get a synthesized
// Ordinal_N name; forwarded exports are skipped because their RVA points into
// the export directory itself, not at code.
func Load(path string) ([]resolve.Export, error) {
	file, err := peparser.New(path, &peparser.Options{})
	if err != nil {
		return nil, fmt.Errorf("打开模块文件 %s 失败: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := file.Parse(); err != nil {
		return nil, fmt.Errorf("解析模块文件 %s 失败: %w", path, err)
	}

	if !file.HasExport {
		return nil, nil
	}

	table := make([]resolve.Export, 0, len(file.Export.Functions))
	for _, fn := range file.Export.Functions {
		if fn.Forwarder != "" {
			continue
		}

		name := fn.Name
		if name == "" {
			name = fmt.Sprintf("Ordinal_%d", fn.Ordinal)
		}

		table = append(table, resolve.Export{Name: name, RVA: fn.FunctionRVA})
	}

	return table, nil
}
