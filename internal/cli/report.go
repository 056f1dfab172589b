// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/VMPRebuild/internal/iat"
	"github.com/ZacharyZcR/VMPRebuild/internal/resolve"
)

// Summary collects everything one rebuild run produced.
type Summary struct {
	ProcessName string
	Pid         uint32
	ModuleName  string
	ModuleBase  uint64
	ImageSize   uint32

	ModulesScanned int
	Groups         []iat.ModuleImports
	Unmatched      []resolve.ResolvedTarget

	SectionName string
	SectionRVA  uint32
	SectionSize uint32
	DumpPath    string
}

// Reporter formats and prints a rebuild summary.
type Reporter struct {
	summary *Summary
	verbose bool
}

// NewReporter creates a new reporter for the given summary.
func NewReporter(summary *Summary) *Reporter {
	return &Reporter{summary: summary}
}

// SetVerbose enables verbose mode (show all matched functions).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// Print outputs the complete rebuild report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printImports()
	r.printUnmatched()
	r.printResult()
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("\n╔════════════════════════════════════════╗")
	cyan.Println("║         VMPRebuild 重建报告            ║")
	cyan.Println("╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Println("\n【目标信息】")

	fmt.Printf("  %-20s: %s (PID %d)\n", "进程", r.summary.ProcessName, r.summary.Pid)
	fmt.Printf("  %-20s: %s\n", "模块", r.summary.ModuleName)
	fmt.Printf("  %-20s: 0x%X\n", "加载基址", r.summary.ModuleBase)
	fmt.Printf("  %-20s: 0x%X\n", "镜像大小", r.summary.ImageSize)
	fmt.Printf("  %-20s: %d\n", "扫描模块数", r.summary.ModulesScanned)
}

func (r *Reporter) printImports() {
	matched := 0
	for _, group := range r.summary.Groups {
		matched += len(group.Imports)
	}

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("\n【匹配导入】(共 %d 个DLL, %d 个函数)\n", len(r.summary.Groups), matched)

	if len(r.summary.Groups) == 0 {
		fmt.Println("  未匹配到任何导入")
		return
	}

	for i, group := range r.summary.Groups {
		green := color.New(color.FgGreen)
		green.Printf("  %3d. %s (%d 个函数)\n", i+1, group.Name, len(group.Imports))

		displayCount := r.displayCount(len(group.Imports))
		for j := 0; j < displayCount; j++ {
			imp := group.Imports[j]
			fmt.Printf("       - %s (槽 0x%X)\n", imp.Symbol, imp.SlotAddress)
		}

		if hidden := len(group.Imports) - displayCount; hidden > 0 {
			gray := color.New(color.FgHiBlack)
			gray.Printf("       ... (还有 %d 个函数)\n", hidden)
		}
	}
}

func (r *Reporter) printUnmatched() {
	if len(r.summary.Unmatched) == 0 {
		return
	}

	red := color.New(color.FgRed, color.Bold)
	red.Printf("\n⚠️  %d 个目标地址无法匹配任何导出，已从新导入表中省略:\n", len(r.summary.Unmatched))

	displayCount := r.displayCount(len(r.summary.Unmatched))
	for _, target := range r.summary.Unmatched[:displayCount] {
		fmt.Printf("  槽 0x%X -> 目标 0x%X\n", target.SlotAddress, target.Target)
	}

	if hidden := len(r.summary.Unmatched) - displayCount; hidden > 0 {
		gray := color.New(color.FgHiBlack)
		gray.Printf("  ... (还有 %d 个)\n", hidden)
	}
}

// displayCount caps list output at maxDisplay entries unless verbose mode is
// on.
func (r *Reporter) displayCount(total int) int {
	const maxDisplay = 10
	if r.verbose || total <= maxDisplay {
		return total
	}
	return maxDisplay
}

func (r *Reporter) printResult() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Println("\n【重建结果】")

	fmt.Printf("  %-20s: %s\n", "新节区", r.summary.SectionName)
	fmt.Printf("  %-20s: 0x%X\n", "节区RVA", r.summary.SectionRVA)
	fmt.Printf("  %-20s: 0x%X\n", "节区大小", r.summary.SectionSize)

	green := color.New(color.FgGreen, color.Bold)
	green.Printf("\n✓ 已写出修复后的镜像: %s\n\n", r.summary.DumpPath)
}
