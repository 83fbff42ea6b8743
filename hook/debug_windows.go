//go:build windows

package hook

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows"

	"github.com/guwide/guwide"
)

const (
	threadGetContext = 0x0008
	threadSetContext = 0x0010

	infinite = 0xFFFFFFFF
)

// DebugLoop delivers breakpoint hits from the host process to the
// registry. It attaches to the host as a debugger and services debug
// events on its own goroutine; the host thread that hit a hook stays
// suspended for the duration of the callback, so from the host's point
// of view the callback runs synchronously at the hooked instruction.
type DebugLoop struct {
	proc *guwide.Process
	reg  *Registry
	log  *slog.Logger

	// breakpoints lifted for single-step, waiting to be re-armed
	pending map[uint32]*Point
}

func NewDebugLoop(proc *guwide.Process, reg *Registry, log *slog.Logger) *DebugLoop {
	return &DebugLoop{
		proc:    proc,
		reg:     reg,
		log:     log,
		pending: make(map[uint32]*Point),
	}
}

func (d *DebugLoop) Attach() error {
	if err := guwide.DebugActiveProcess(d.proc.Pid); err != nil {
		return fmt.Errorf("DebugActiveProcess %d: %w", d.proc.Pid, err)
	}
	// the host must survive us, never the other way around
	if err := guwide.DebugSetProcessKillOnExit(false); err != nil {
		d.log.Warn("DebugSetProcessKillOnExit failed", slog.Any("error", err))
	}
	return nil
}

func (d *DebugLoop) Detach() error {
	return guwide.DebugActiveProcessStop(d.proc.Pid)
}

// Run blocks servicing debug events until the host process exits.
// Per-event failures are logged and never abort the loop.
func (d *DebugLoop) Run() error {
	var ev guwide.DEBUG_EVENT
	for {
		if err := guwide.WaitForDebugEvent(&ev, infinite); err != nil {
			return fmt.Errorf("WaitForDebugEvent: %w", err)
		}

		status := uint32(guwide.DBG_CONTINUE)

		switch ev.DebugEventCode {
		case guwide.EXCEPTION_DEBUG_EVENT:
			status = d.onException(&ev)

		case guwide.EXIT_PROCESS_DEBUG_EVENT:
			guwide.ContinueDebugEvent(ev.ProcessId, ev.ThreadId, guwide.DBG_CONTINUE)
			d.log.Info("host process exited")
			return nil

		case guwide.CREATE_PROCESS_DEBUG_EVENT, guwide.LOAD_DLL_DEBUG_EVENT:
			// the kernel hands us a file handle we must not leak
			if h := ev.FileHandle(); h != 0 {
				windows.CloseHandle(h)
			}
		}

		if err := guwide.ContinueDebugEvent(ev.ProcessId, ev.ThreadId, status); err != nil {
			return fmt.Errorf("ContinueDebugEvent: %w", err)
		}
	}
}

func (d *DebugLoop) onException(ev *guwide.DEBUG_EVENT) uint32 {
	info := ev.Exception()

	switch info.ExceptionRecord.ExceptionCode {
	case guwide.EXCEPTION_BREAKPOINT:
		addr := info.ExceptionRecord.ExceptionAddress
		p, ok := d.reg.ActiveHook(addr)
		if !ok {
			// loader's initial breakpoint, or a dormant point from
			// an unloaded module's generation
			if buf, err := d.reg.Mem().ReadMemory(addr, 16); err == nil {
				d.log.Debug("foreign breakpoint",
					slog.String("addr", fmt.Sprintf("%x", addr)),
					slog.String("site", "\n"+guwide.HexDumpString(buf, addr)))
			}
			return guwide.DBG_CONTINUE
		}
		if err := d.fire(ev.ThreadId, p); err != nil {
			d.log.Error("hook dispatch failed",
				slog.String("addr", fmt.Sprintf("%x", addr)),
				slog.Any("error", err))
		}
		return guwide.DBG_CONTINUE

	case guwide.EXCEPTION_SINGLE_STEP:
		if p, ok := d.pending[ev.ThreadId]; ok {
			delete(d.pending, ev.ThreadId)
			if err := d.reg.Arm(p); err != nil {
				d.log.Error("breakpoint re-arm failed",
					slog.String("addr", fmt.Sprintf("%x", p.Addr)),
					slog.Any("error", err))
			}
		}
		return guwide.DBG_CONTINUE
	}

	return guwide.DBG_EXCEPTION_NOT_HANDLED
}

// fire captures the stopped thread's context, runs the callback, writes
// mutations back, rewinds RIP onto the displaced instruction and
// single-steps it so the breakpoint can be re-armed.
func (d *DebugLoop) fire(tid uint32, p *Point) error {
	th, err := windows.OpenThread(threadGetContext|threadSetContext, false, tid)
	if err != nil {
		return fmt.Errorf("OpenThread %d: %w", tid, err)
	}
	defer windows.CloseHandle(th)

	wctx, keepalive := guwide.NewContext()
	defer func() { _ = keepalive }()

	wctx.ContextFlags = guwide.CONTEXT_FULL
	if err := guwide.GetThreadContext(th, wctx); err != nil {
		return fmt.Errorf("GetThreadContext: %w", err)
	}

	ctx := fromWinContext(wctx, d.reg.Mem())
	p.Callback(ctx)
	toWinContext(ctx, wctx)

	// after int3 RIP points one past the breakpoint byte
	wctx.Rip = uint64(p.Addr)
	wctx.EFlags |= guwide.EFLAGS_TRAP

	if err := guwide.SetThreadContext(th, wctx); err != nil {
		return fmt.Errorf("SetThreadContext: %w", err)
	}

	if err := d.reg.Suspend(p); err != nil {
		return fmt.Errorf("restore displaced byte: %w", err)
	}
	d.pending[tid] = p
	return nil
}

func fromWinContext(w *guwide.CONTEXT, mem guwide.Memory) *Context {
	c := &Context{
		Rax: w.Rax, Rcx: w.Rcx, Rdx: w.Rdx, Rbx: w.Rbx,
		Rsp: w.Rsp, Rbp: w.Rbp, Rsi: w.Rsi, Rdi: w.Rdi,
		R8: w.R8, R9: w.R9, R10: w.R10, R11: w.R11,
		R12: w.R12, R13: w.R13, R14: w.R14, R15: w.R15,
		Rip: w.Rip,
		Mem: mem,
	}
	for i := 0; i < 16; i++ {
		copy(c.Xmm[i][:], w.Xmm(i))
	}
	return c
}

func toWinContext(c *Context, w *guwide.CONTEXT) {
	w.Rax, w.Rcx, w.Rdx, w.Rbx = c.Rax, c.Rcx, c.Rdx, c.Rbx
	w.Rsp, w.Rbp, w.Rsi, w.Rdi = c.Rsp, c.Rbp, c.Rsi, c.Rdi
	w.R8, w.R9, w.R10, w.R11 = c.R8, c.R9, c.R10, c.R11
	w.R12, w.R13, w.R14, w.R15 = c.R12, c.R13, c.R14, c.R15
	for i := 0; i < 16; i++ {
		copy(w.Xmm(i), c.Xmm[i][:])
	}
}
