// Package winproc attaches to a running Windows process and exposes its
// mapped modules and memory.
package winproc

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Module describes one module mapped in the target process.
type Module struct {
	Name string
	Path string
	Base uint64
	Size uint32
}

// FindProcessID looks up a process id by executable name, case-insensitive.
func FindProcessID(name string) (uint32, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("创建进程快照失败: %w", err)
	}
	defer func() { _ = windows.CloseHandle(snapshot) }()

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		if strings.EqualFold(windows.UTF16ToString(entry.ExeFile[:]), name) {
			return entry.ProcessID, nil
		}
	}

	return 0, fmt.Errorf("未找到进程: %s", name)
}

// Process is an attached target process.
type Process struct {
	pid    uint32
	handle windows.Handle
}

// Open attaches to the process with read access to its memory.
func Open(pid uint32) (*Process, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		return nil, fmt.Errorf("附加到进程 %d 失败: %w", pid, err)
	}
	return &Process{pid: pid, handle: handle}, nil
}

// Pid returns the attached process id.
func (p *Process) Pid() uint32 {
	return p.pid
}

// Close releases the process handle.
func (p *Process) Close() error {
	if p.handle != 0 {
		err := windows.CloseHandle(p.handle)
		p.handle = 0
		return err
	}
	return nil
}

// Read fills buf from the remote address space. A short read is an error,
// never a partial result.
func (p *Process) Read(addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	var done uintptr
	if err := windows.ReadProcessMemory(p.handle, addr, &buf[0], uintptr(len(buf)), &done); err != nil {
		return fmt.Errorf("读取远程内存 0x%X 失败: %w", addr, err)
	}
	if done != uintptr(len(buf)) {
		return fmt.Errorf("读取远程内存 0x%X 不完整: %d/%d 字节", addr, done, len(buf))
	}

	return nil
}

// Modules enumerates the modules mapped in the target process, in snapshot
// order. The first entry is the process's main module.
func (p *Process) Modules() ([]Module, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.pid)
	if err != nil {
		return nil, fmt.Errorf("创建模块快照失败: %w", err)
	}
	defer func() { _ = windows.CloseHandle(snapshot) }()

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []Module
	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		modules = append(modules, Module{
			Name: windows.UTF16ToString(entry.Module[:]),
			Path: windows.UTF16ToString(entry.ExePath[:]),
			Base: uint64(entry.ModBaseAddr),
			Size: entry.ModBaseSize,
		})
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("进程 %d 没有可枚举的模块", p.pid)
	}

	return modules, nil
}

// FindModule returns the mapped module with the given name. An empty name
// selects the main module.
func (p *Process) FindModule(name string) (Module, error) {
	modules, err := p.Modules()
	if err != nil {
		return Module{}, err
	}

	if name == "" {
		return modules[0], nil
	}

	for _, m := range modules {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}

	return Module{}, fmt.Errorf("未找到模块: %s", name)
}
