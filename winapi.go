//go:build windows

package guwide

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procCreateToolhelp32Snapshot = kernel32.NewProc("CreateToolhelp32Snapshot")
	procProcess32Next            = kernel32.NewProc("Process32NextW")
	procVirtualQueryEx           = kernel32.NewProc("VirtualQueryEx")
	getSystemInfo                = kernel32.NewProc("GetSystemInfo")

	procDebugActiveProcess        = kernel32.NewProc("DebugActiveProcess")
	procDebugActiveProcessStop    = kernel32.NewProc("DebugActiveProcessStop")
	procDebugSetProcessKillOnExit = kernel32.NewProc("DebugSetProcessKillOnExit")
	procWaitForDebugEvent         = kernel32.NewProc("WaitForDebugEvent")
	procContinueDebugEvent        = kernel32.NewProc("ContinueDebugEvent")
	procGetThreadContext          = kernel32.NewProc("GetThreadContext")
	procSetThreadContext          = kernel32.NewProc("SetThreadContext")
	procFlushInstructionCache     = kernel32.NewProc("FlushInstructionCache")

	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
)

type MEMORY_BASIC_INFORMATION struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
}

func (mbi MEMORY_BASIC_INFORMATION) IsReadable() bool {
	if mbi.State != windows.MEM_COMMIT {
		return false
	}

	if mbi.Protect&windows.PAGE_GUARD != 0 {
		return false
	}

	readable := windows.PAGE_READONLY | windows.PAGE_READWRITE |
		windows.PAGE_EXECUTE_READ | windows.PAGE_EXECUTE_READWRITE |
		windows.PAGE_EXECUTE_WRITECOPY

	return mbi.Protect&uint32(readable) != 0
}

func (mbi MEMORY_BASIC_INFORMATION) IsWritable() bool {
	if mbi.State != windows.MEM_COMMIT {
		return false
	}

	if mbi.Protect&windows.PAGE_GUARD != 0 {
		return false
	}

	writable := windows.PAGE_READWRITE | windows.PAGE_WRITECOPY |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY

	return mbi.Protect&uint32(writable) != 0
}

type PROCESSENTRY32 struct {
	Size              uint32
	Usage             uint32
	ProcessID         uint32
	DefaultHeapID     uintptr
	ModuleID          uint32
	CountThreads      uint32
	ParentProcessID   uint32
	PriorityClassBase int32
	Flags             uint32
	ExeFile           [windows.MAX_PATH]uint16
}

type SYSTEM_INFO struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

// Debug event codes and continue statuses.
const (
	EXCEPTION_DEBUG_EVENT      = 1
	CREATE_THREAD_DEBUG_EVENT  = 2
	CREATE_PROCESS_DEBUG_EVENT = 3
	EXIT_THREAD_DEBUG_EVENT    = 4
	EXIT_PROCESS_DEBUG_EVENT   = 5
	LOAD_DLL_DEBUG_EVENT       = 6
	UNLOAD_DLL_DEBUG_EVENT     = 7
	OUTPUT_DEBUG_STRING_EVENT  = 8
	RIP_EVENT                  = 9

	DBG_CONTINUE              = 0x00010002
	DBG_EXCEPTION_NOT_HANDLED = 0x80010001

	EXCEPTION_BREAKPOINT  = 0x80000003
	EXCEPTION_SINGLE_STEP = 0x80000004
)

// amd64 CONTEXT flags.
const (
	CONTEXT_CONTROL        = 0x100001
	CONTEXT_INTEGER        = 0x100002
	CONTEXT_FLOATING_POINT = 0x100008
	CONTEXT_FULL           = CONTEXT_CONTROL | CONTEXT_INTEGER | CONTEXT_FLOATING_POINT

	EFLAGS_TRAP = 0x100
)

type EXCEPTION_RECORD struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uintptr
	ExceptionAddress     uintptr
	NumberParameters     uint32
	_                    uint32
	ExceptionInformation [15]uintptr
}

type EXCEPTION_DEBUG_INFO struct {
	ExceptionRecord EXCEPTION_RECORD
	FirstChance     uint32
}

type DEBUG_EVENT struct {
	DebugEventCode uint32
	ProcessId      uint32
	ThreadId       uint32
	_              uint32
	U              [160]byte // union of the per-event info structs
}

func (ev *DEBUG_EVENT) Exception() *EXCEPTION_DEBUG_INFO {
	return (*EXCEPTION_DEBUG_INFO)(unsafe.Pointer(&ev.U[0]))
}

// CreateProcessInfo mirrors CREATE_PROCESS_DEBUG_INFO far enough to
// close the file handle the kernel hands us.
func (ev *DEBUG_EVENT) FileHandle() windows.Handle {
	return *(*windows.Handle)(unsafe.Pointer(&ev.U[0]))
}

// CONTEXT is the amd64 thread context. GetThreadContext requires it to
// be 16-byte aligned; allocate through NewContext.
type CONTEXT struct {
	P1Home               uint64
	P2Home               uint64
	P3Home               uint64
	P4Home               uint64
	P5Home               uint64
	P6Home               uint64
	ContextFlags         uint32
	MxCsr                uint32
	SegCs                uint16
	SegDs                uint16
	SegEs                uint16
	SegFs                uint16
	SegGs                uint16
	SegSs                uint16
	EFlags               uint32
	Dr0                  uint64
	Dr1                  uint64
	Dr2                  uint64
	Dr3                  uint64
	Dr6                  uint64
	Dr7                  uint64
	Rax                  uint64
	Rcx                  uint64
	Rdx                  uint64
	Rbx                  uint64
	Rsp                  uint64
	Rbp                  uint64
	Rsi                  uint64
	Rdi                  uint64
	R8                   uint64
	R9                   uint64
	R10                  uint64
	R11                  uint64
	R12                  uint64
	R13                  uint64
	R14                  uint64
	R15                  uint64
	Rip                  uint64
	FltSave              [512]byte // XSAVE legacy area; XMM0-15 live at offset 160
	VectorRegister       [26][16]byte
	VectorControl        uint64
	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

const xmmSaveOffset = 160

func (c *CONTEXT) Xmm(reg int) []byte {
	off := xmmSaveOffset + reg*16
	return c.FltSave[off : off+16]
}

// NewContext returns a correctly aligned CONTEXT. The backing slice
// must stay referenced for as long as the CONTEXT is in use.
func NewContext() (*CONTEXT, []byte) {
	buf := make([]byte, unsafe.Sizeof(CONTEXT{})+15)
	p := uintptr(unsafe.Pointer(&buf[0]))
	p = (p + 15) &^ 15
	return (*CONTEXT)(unsafe.Pointer(p)), buf
}

func createToolhelp32Snapshot(flags, processID uint32) (syscall.Handle, error) {
	ret, _, err := procCreateToolhelp32Snapshot.Call(uintptr(flags), uintptr(processID))
	if ret == uintptr(syscall.InvalidHandle) {
		return syscall.InvalidHandle, err
	}
	return syscall.Handle(ret), nil
}

func process32Next(snapshot syscall.Handle, pe *PROCESSENTRY32) error {
	ret, _, err := procProcess32Next.Call(uintptr(snapshot), uintptr(unsafe.Pointer(pe)))
	if ret == 0 {
		return err
	}
	return nil
}

func virtualQueryEx(hProcess windows.Handle, lpAddress uintptr) (MEMORY_BASIC_INFORMATION, error) {
	var mbi MEMORY_BASIC_INFORMATION
	ret, _, err := procVirtualQueryEx.Call(
		uintptr(hProcess),
		lpAddress,
		uintptr(unsafe.Pointer(&mbi)),
		uintptr(unsafe.Sizeof(mbi)),
	)
	if ret != uintptr(unsafe.Sizeof(mbi)) {
		return mbi, err
	}
	return mbi, nil
}

func DebugActiveProcess(pid uint32) error {
	ret, _, err := procDebugActiveProcess.Call(uintptr(pid))
	if ret == 0 {
		return err
	}
	return nil
}

func DebugActiveProcessStop(pid uint32) error {
	ret, _, err := procDebugActiveProcessStop.Call(uintptr(pid))
	if ret == 0 {
		return err
	}
	return nil
}

func DebugSetProcessKillOnExit(kill bool) error {
	var v uintptr
	if kill {
		v = 1
	}
	ret, _, err := procDebugSetProcessKillOnExit.Call(v)
	if ret == 0 {
		return err
	}
	return nil
}

func WaitForDebugEvent(ev *DEBUG_EVENT, timeoutMs uint32) error {
	ret, _, err := procWaitForDebugEvent.Call(
		uintptr(unsafe.Pointer(ev)),
		uintptr(timeoutMs),
	)
	if ret == 0 {
		return err
	}
	return nil
}

func ContinueDebugEvent(pid, tid uint32, status uint32) error {
	ret, _, err := procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(status))
	if ret == 0 {
		return err
	}
	return nil
}

func GetThreadContext(hThread windows.Handle, ctx *CONTEXT) error {
	ret, _, err := procGetThreadContext.Call(
		uintptr(hThread),
		uintptr(unsafe.Pointer(ctx)),
	)
	if ret == 0 {
		return err
	}
	return nil
}

func SetThreadContext(hThread windows.Handle, ctx *CONTEXT) error {
	ret, _, err := procSetThreadContext.Call(
		uintptr(hThread),
		uintptr(unsafe.Pointer(ctx)),
	)
	if ret == 0 {
		return err
	}
	return nil
}

func FlushInstructionCache(hProcess windows.Handle, ea uintptr, size int) {
	procFlushInstructionCache.Call(uintptr(hProcess), ea, uintptr(size))
}

const (
	SM_CXSCREEN = 0
	SM_CYSCREEN = 1
)

// DesktopResolution reports the primary display dimensions. Used as the
// fallback when the configured resolution is zero.
func DesktopResolution() (int, int) {
	w, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	h, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)
	return int(w), int(h)
}

func prot2str(prot uint32) string {
	var s string

	if prot&windows.PAGE_READONLY != 0 {
		s += "[r--]"
	}
	if prot&windows.PAGE_READWRITE != 0 {
		s += "[rw-]"
	}
	if prot&windows.PAGE_WRITECOPY != 0 {
		s += "[-w-][writecopy]"
	}
	if prot&windows.PAGE_EXECUTE != 0 {
		s += "[--x]"
	}
	if prot&windows.PAGE_EXECUTE_READ != 0 {
		s += "[r-x]"
	}
	if prot&windows.PAGE_EXECUTE_READWRITE != 0 {
		s += "[rwx]"
	}
	if prot&windows.PAGE_EXECUTE_WRITECOPY != 0 {
		s += "[rwx][writecopy]"
	}

	if prot&windows.PAGE_GUARD != 0 {
		s += "[guard]"
	}

	if s == "" {
		s = "[   ]"
	}

	return s
}
