package resolve

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadTargets parses the emulator's output: one "slot_address target_address"
// pair per line, both hexadecimal (with or without 0x prefix). Blank lines and
// lines starting with # are skipped.
func ReadTargets(r io.Reader) ([]ResolvedTarget, error) {
	var targets []ResolvedTarget

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("第 %d 行格式错误: 应为 \"槽地址 目标地址\"", lineno)
		}

		slot, err := parseHex(fields[0])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行槽地址格式错误: %w", lineno, err)
		}
		target, err := parseHex(fields[1])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行目标地址格式错误: %w", lineno, err)
		}

		targets = append(targets, ResolvedTarget{SlotAddress: slot, Target: target})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取目标列表失败: %w", err)
	}

	return targets, nil
}

// ReadTargetsFile reads resolved targets from the file at path.
func ReadTargetsFile(path string) ([]ResolvedTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开目标列表失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadTargets(f)
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
