// Package main provides the VMPRebuild CLI tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	peparser "github.com/saferwall/pe"

	"github.com/ZacharyZcR/VMPRebuild/internal/cli"
	"github.com/ZacharyZcR/VMPRebuild/internal/config"
	"github.com/ZacharyZcR/VMPRebuild/internal/exports"
	"github.com/ZacharyZcR/VMPRebuild/internal/iat"
	"github.com/ZacharyZcR/VMPRebuild/internal/pe"
	"github.com/ZacharyZcR/VMPRebuild/internal/resolve"
	"github.com/ZacharyZcR/VMPRebuild/internal/winproc"
)

var (
	configPath  = flag.String("config", "", "TOML配置文件路径")
	processName = flag.String("process", "", "目标进程名（覆盖配置文件）")
	moduleName  = flag.String("module", "", "目标模块名（默认: 主模块）")
	targetsPath = flag.String("targets", "", "已解析目标地址列表路径（覆盖配置文件）")
	outPath     = flag.String("out", "", "转储输出路径（覆盖配置文件）")
	sectionName = flag.String("section", "", "新导入表节区名称（最大8字符）")
	verbose     = flag.Bool("v", false, "详细模式：显示所有匹配函数")
	verifyDump  = flag.Bool("verify", false, "转储后重新解析输出文件做校验")
	updateCksum = flag.Bool("update-checksum", true, "转储前更新PE校验和")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err == nil {
		err = run(cfg)
	}

	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	// Command-line flags win over the file.
	if *processName != "" {
		cfg.ProcessName = *processName
	}
	if *moduleName != "" {
		cfg.ModuleName = *moduleName
	}
	if *targetsPath != "" {
		cfg.TargetsPath = *targetsPath
	}
	if *outPath != "" {
		cfg.DumpPath = *outPath
	}
	if *sectionName != "" {
		cfg.IATSectionName = *sectionName
	}

	if cfg.ProcessName == "" && *configPath == "" {
		printUsage()
		os.Exit(1)
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	cyan := color.New(color.FgCyan)

	pid, err := winproc.FindProcessID(cfg.ProcessName)
	if err != nil {
		return err
	}
	_, _ = cyan.Printf("已找到进程 %s (PID %d)\n", cfg.ProcessName, pid)

	proc, err := winproc.Open(pid)
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	target, err := proc.FindModule(cfg.ModuleName)
	if err != nil {
		return err
	}
	_, _ = cyan.Printf("目标模块 %s @ 0x%X (%d 字节)\n", target.Name, target.Base, target.Size)

	modules, err := mappedModules(proc, target)
	if err != nil {
		return err
	}

	_, _ = cyan.Printf("正在读取目标镜像...\n")
	img, err := pe.NewImageFromMemory(target.Base, target.Size, proc)
	if err != nil {
		return err
	}

	targets, err := resolve.ReadTargetsFile(cfg.TargetsPath)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("目标列表 %s 为空", cfg.TargetsPath)
	}
	_, _ = cyan.Printf("已读取 %d 个已解析目标地址\n", len(targets))

	_, _ = cyan.Printf("正在重建导入表...\n")
	result := resolve.NewMatcher(modules).Resolve(targets)
	if len(result.Imports) == 0 {
		return fmt.Errorf("没有任何目标地址匹配到导出函数")
	}

	reconstructor := iat.Reconstructor{SectionName: cfg.IATSectionName}
	section, err := reconstructor.Rebuild(img, result.Imports)
	if err != nil {
		return err
	}

	if *updateCksum {
		_, _ = cyan.Println("正在更新PE校验和...")
		img.UpdateChecksum()
	}

	if err := img.DumpToFS(cfg.DumpPath); err != nil {
		return err
	}

	summary := &cli.Summary{
		ProcessName:    cfg.ProcessName,
		Pid:            pid,
		ModuleName:     target.Name,
		ModuleBase:     target.Base,
		ImageSize:      target.Size,
		ModulesScanned: len(modules),
		Groups:         iat.GroupByModule(result.Imports),
		Unmatched:      result.Unmatched,
		SectionName:    section.Name,
		SectionRVA:     section.VirtualAddress,
		SectionSize:    section.VirtualSize,
		DumpPath:       cfg.DumpPath,
	}

	reporter := cli.NewReporter(summary)
	reporter.SetVerbose(*verbose)
	reporter.Print()

	if *verifyDump {
		return verifyDumpedFile(cfg.DumpPath)
	}
	return nil
}

// mappedModules loads the export table of every module mapped in the target
// process. The target module comes first so address attribution prefers it
// and its own dependencies over coincidental range overlaps.
func mappedModules(proc *winproc.Process, target winproc.Module) ([]resolve.MappedModule, error) {
	entries, err := proc.Modules()
	if err != nil {
		return nil, err
	}

	ordered := make([]winproc.Module, 0, len(entries))
	ordered = append(ordered, target)
	for _, entry := range entries {
		if !strings.EqualFold(entry.Name, target.Name) {
			ordered = append(ordered, entry)
		}
	}

	yellow := color.New(color.FgYellow)
	modules := make([]resolve.MappedModule, 0, len(ordered))
	for _, entry := range ordered {
		table, err := exports.Load(entry.Path)
		if err != nil {
			// A module whose file cannot be parsed just contributes no
			// exports; the rebuild goes on without it.
			_, _ = yellow.Printf("⚠️  跳过模块 %s: %v\n", entry.Name, err)
			continue
		}
		modules = append(modules, resolve.MappedModule{
			Name:    entry.Name,
			Base:    entry.Base,
			Size:    entry.Size,
			Exports: table,
		})
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("没有可用于匹配的模块导出表")
	}
	return modules, nil
}

// verifyDumpedFile re-parses the dumped image and prints what a PE reader
// sees, as a quick loader-validity check.
func verifyDumpedFile(path string) error {
	file, err := peparser.New(path, &peparser.Options{})
	if err != nil {
		return fmt.Errorf("打开转储文件 %s 失败: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := file.Parse(); err != nil {
		return fmt.Errorf("转储文件 %s 校验失败: %w", path, err)
	}

	green := color.New(color.FgGreen)
	_, _ = green.Printf("✓ 转储文件可重新解析: %d 个节区, %d 个导入DLL\n", len(file.Sections), len(file.Imports))

	for _, section := range file.Sections {
		name := strings.TrimRight(string(section.Header.Name[:]), "\x00")
		fmt.Printf("  节区 %-8s RVA 0x%08X 大小 0x%X\n", name, section.Header.VirtualAddress, section.Header.VirtualSize)
	}

	return nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nVMPRebuild - 虚拟化保护进程导入表重建工具")

	fmt.Println("\n用法:")
	fmt.Println("  vmprebuild -config run.toml [选项]")
	fmt.Println("  vmprebuild -process target.exe -targets resolved.txt -out dump.exe [选项]")
	fmt.Println("\n选项:")
	fmt.Println("  -config <路径>    TOML配置文件 (process_name, module_name, targets_path,")
	fmt.Println("                    iat_section_name, dump_path)")
	fmt.Println("  -process <名称>   目标进程名（覆盖配置文件）")
	fmt.Println("  -module <名称>    目标模块名（默认: 主模块）")
	fmt.Println("  -targets <路径>   已解析目标地址列表，每行: 槽地址 目标地址（十六进制）")
	fmt.Println("  -out <路径>       转储输出路径")
	fmt.Println("  -section <名称>   新导入表节区名称（默认: .idata2，最大8字符）")
	fmt.Println("  -v                详细模式：显示所有匹配函数")
	fmt.Println("  -verify           转储后重新解析输出文件做校验")
	fmt.Println("  -update-checksum  转储前更新PE校验和（默认: true）")
	fmt.Println("\n示例:")
	fmt.Println("  vmprebuild -config run.toml")
	fmt.Println("  vmprebuild -process game.exe -targets calls.txt -out game_fixed.exe -verify")
	fmt.Println()
}
