package hook

import (
	"encoding/binary"
	"math"

	"github.com/guwide/guwide"
)

// Context is the CPU state captured when a mid-execution hook fires.
// Callbacks may read and mutate any register and, through Mem, any
// memory reachable from the captured values. All mutations are written
// back to the suspended host thread before it resumes.
type Context struct {
	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	Rip uint64

	Xmm [16][16]byte

	Mem guwide.Memory
}

func (c *Context) XmmU32(reg, lane int) uint32 {
	return binary.LittleEndian.Uint32(c.Xmm[reg][lane*4:])
}

func (c *Context) SetXmmU32(reg, lane int, v uint32) {
	binary.LittleEndian.PutUint32(c.Xmm[reg][lane*4:], v)
}

func (c *Context) XmmF32(reg, lane int) float32 {
	return math.Float32frombits(c.XmmU32(reg, lane))
}

func (c *Context) SetXmmF32(reg, lane int, v float32) {
	c.SetXmmU32(reg, lane, math.Float32bits(v))
}
