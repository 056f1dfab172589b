// Package config loads the TOML run configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
)

// Config holds the parameters of one rebuild run.
type Config struct {
	ProcessName    string `toml:"process_name"`
	ModuleName     string `toml:"module_name"`
	TargetsPath    string `toml:"targets_path"`
	IATSectionName string `toml:"iat_section_name"`
	DumpPath       string `toml:"dump_path"`
}

// Default returns a config pre-filled with environment-overridable defaults.
func Default() Config {
	return Config{
		IATSectionName: env.Str("VMPREBUILD_SECTION", ".idata2"),
		DumpPath:       env.Str("VMPREBUILD_DUMP", "dump.exe"),
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first missing or malformed field.
func (c Config) Validate() error {
	if c.ProcessName == "" {
		return fmt.Errorf("缺少目标进程名 (process_name)")
	}
	if c.TargetsPath == "" {
		return fmt.Errorf("缺少已解析目标列表路径 (targets_path)")
	}
	if c.DumpPath == "" {
		return fmt.Errorf("缺少转储输出路径 (dump_path)")
	}
	if len(c.IATSectionName) > 8 {
		return fmt.Errorf("节区名称过长: %d 字节 (最大8字节)", len(c.IATSectionName))
	}
	return nil
}
