//go:build windows

package guwide

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Access rights needed to watch, scan and patch the host process.
const HostAccess = windows.PROCESS_QUERY_INFORMATION |
	windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_OPERATION

type Process struct {
	Handle windows.Handle
	Pid    uint32
	Access uint32
}

func OpenProcess(pid, access uint32) (*Process, error) {
	handle, err := windows.OpenProcess(access, false, pid)
	if err != nil {
		return nil, fmt.Errorf("OpenProcess: %w", err)
	}
	return &Process{
		Handle: handle,
		Pid:    pid,
		Access: access,
	}, nil
}

// FindProcess returns the PID of the first process whose exe name
// matches, case-insensitively. Returns 0 when not found.
func FindProcess(processName string) (uint32, error) {
	processName = strings.ToLower(processName)

	var pe PROCESSENTRY32
	pe.Size = uint32(unsafe.Sizeof(pe))

	snapshot, err := createToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(windows.Handle(snapshot))

	for {
		if strings.ToLower(windows.UTF16ToString(pe.ExeFile[:])) == processName {
			return pe.ProcessID, nil
		}

		if err := process32Next(snapshot, &pe); err != nil {
			break
		}
	}

	return 0, nil
}

// closes the process handle, but does not terminate the process
func (p *Process) Close() error {
	if p.Handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.Handle)
	p.Handle = 0
	return err
}

// Modules enumerates the currently loaded modules of the process.
// Module names are full paths as the loader reports them.
func (p *Process) Modules() ([]Module, error) {
	var modules []Module

	var needed uint32
	err := windows.EnumProcessModulesEx(p.Handle, nil, 0, &needed, windows.LIST_MODULES_ALL)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.ERROR_PARTIAL_COPY && needed == 0 {
				// process is not yet initialized
				return modules, nil
			}
		}
		return nil, fmt.Errorf("EnumProcessModulesEx: %w [needed=%d]", err, needed)
	}

	numModules := int(needed) / int(unsafe.Sizeof(windows.Handle(0)))
	hModules := make([]windows.Handle, numModules)
	err = windows.EnumProcessModulesEx(p.Handle, &hModules[0], needed, &needed, windows.LIST_MODULES_ALL)
	if err != nil {
		return nil, fmt.Errorf("EnumProcessModulesEx: %w [needed=%d]", err, needed)
	}

	for i := 0; i < numModules; i++ {
		var modName [windows.MAX_PATH]uint16
		windows.GetModuleFileNameEx(p.Handle, hModules[i], &modName[0], windows.MAX_PATH)

		var modInfo windows.ModuleInfo
		err = windows.GetModuleInformation(p.Handle, hModules[i], &modInfo, uint32(unsafe.Sizeof(modInfo)))
		if err != nil {
			continue // module may have unloaded mid-enumeration
		}

		modules = append(modules, Module{
			BaseOfDll:   modInfo.BaseOfDll,
			SizeOfImage: modInfo.SizeOfImage,
			EntryPoint:  modInfo.EntryPoint,
			Name:        windows.UTF16ToString(modName[:]),
		})
	}

	return modules, nil
}

func (p *Process) ReadMemory(ea uintptr, size int) ([]byte, error) {
	buffer := make([]byte, size)
	var bytesRead uintptr

	err := windows.ReadProcessMemory(
		p.Handle,
		ea,
		&buffer[0],
		uintptr(size),
		&bytesRead,
	)
	if err != nil {
		return nil, fmt.Errorf("ReadProcessMemory %d bytes at %x: %w", size, ea, err)
	}

	return buffer[:bytesRead], nil
}

func (p *Process) WriteMemory(ea uintptr, data []byte) error {
	var bytesWritten uintptr

	err := windows.WriteProcessMemory(
		p.Handle,
		ea,
		&data[0],
		uintptr(len(data)),
		&bytesWritten,
	)
	if err != nil {
		return fmt.Errorf("WriteProcessMemory %d bytes at %x: %w", len(data), ea, err)
	}
	if bytesWritten != uintptr(len(data)) {
		return fmt.Errorf("WriteProcessMemory at %x: short write %d/%d", ea, bytesWritten, len(data))
	}

	FlushInstructionCache(p.Handle, ea, len(data))
	return nil
}

func (p *Process) VirtualQueryEx(addr uintptr) *MEMORY_BASIC_INFORMATION {
	mbi, err := virtualQueryEx(p.Handle, addr)
	if err != nil {
		return nil
	}
	return &mbi
}

// Unprotect makes [address, address+size) writable and returns a
// closure restoring the previous protection. Addresses are aligned to
// page granularity before the protection change.
func (p *Process) Unprotect(address uintptr, size int) (func() error, error) {
	var sysInfo SYSTEM_INFO
	getSystemInfo.Call(uintptr(unsafe.Pointer(&sysInfo)))

	pageMask := uintptr(sysInfo.PageSize - 1)
	alignedAddress := address & ^pageMask
	endAddress := (address + uintptr(size) + pageMask) & ^pageMask
	adjustedSize := endAddress - alignedAddress

	var oldProtect uint32
	err := windows.VirtualProtectEx(p.Handle, alignedAddress, adjustedSize, windows.PAGE_EXECUTE_READWRITE, &oldProtect)
	if err != nil {
		return nil, fmt.Errorf("VirtualProtectEx at %x: %w", alignedAddress, err)
	}

	restore := func() error {
		var prev uint32
		return windows.VirtualProtectEx(p.Handle, alignedAddress, adjustedSize, oldProtect, &prev)
	}
	return restore, nil
}

func (p *Process) Regions() []Region {
	var si SYSTEM_INFO
	getSystemInfo.Call(uintptr(unsafe.Pointer(&si)))

	regions := make([]Region, 0, 0x100)
	modules, _ := p.Modules()

	for ea := uintptr(0); ea < si.MaximumApplicationAddress; {
		mbi := p.VirtualQueryEx(ea)
		if mbi == nil {
			break
		}
		regions = append(regions, Region{Process: p, MBI: *mbi})
		ea += uintptr(mbi.RegionSize)
	}

	for i := range regions {
		for j := range modules {
			if regions[i].MBI.BaseAddress >= modules[j].BaseOfDll && regions[i].MBI.BaseAddress < modules[j].BaseOfDll+uintptr(modules[j].SizeOfImage) {
				regions[i].Module = &modules[j]
				break
			}
		}
	}

	return regions
}
