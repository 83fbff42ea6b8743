package hook

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guwide/guwide"
)

var (
	// ErrWriteProtected means the target page could not be made
	// writable; the point is not recorded.
	ErrWriteProtected = errors.New("target page is not writable")
)

const int3 = 0xCC

type Kind int

const (
	KindHook Kind = iota
	KindPatch
)

func (k Kind) String() string {
	if k == KindPatch {
		return "patch"
	}
	return "hook"
}

// Callback runs when a host thread reaches the hooked address. It must
// not block and must re-validate its preconditions from the captured
// state: the surrounding host code may be reached from contexts the
// hook must not disturb.
type Callback func(*Context)

// Protector flips page protection around writes into foreign pages.
// Nil is accepted for targets that are already writable.
type Protector interface {
	Unprotect(ea uintptr, size int) (restore func() error, err error)
}

// Point is one installed interception. Points are never removed: a
// point whose module has unloaded stays recorded but dormant, since
// freeing it would require proof the host no longer executes through
// that address.
type Point struct {
	Kind       Kind
	Addr       uintptr
	Generation int

	Saved    byte   // hooks: the byte displaced by the breakpoint
	Replaced []byte // patches: the bytes written

	Callback Callback
}

// Registry owns every installed hook and patch. It is append-only by
// design; entries accumulate across module swaps and are never
// released. Appends happen on the orchestrator goroutine while lookups
// happen on the debug-loop goroutine, hence the lock.
type Registry struct {
	mem  guwide.Memory
	prot Protector

	mu         sync.RWMutex
	points     []*Point
	active     map[uintptr]*Point
	generation int
}

func NewRegistry(mem guwide.Memory, prot Protector) *Registry {
	return &Registry{
		mem:    mem,
		prot:   prot,
		active: make(map[uintptr]*Point),
	}
}

func (r *Registry) Mem() guwide.Memory {
	return r.mem
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}

func (r *Registry) Generation() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// AdvanceGeneration marks the start of a new module-load cycle. Points
// of earlier generations stay recorded but stop dispatching: their
// addresses belong to an image that no longer exists.
func (r *Registry) AdvanceGeneration() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.active = make(map[uintptr]*Point)
	return r.generation
}

// InstallHook plants a breakpoint at addr and registers cb to run when
// a host thread reaches it.
func (r *Registry) InstallHook(addr uintptr, cb Callback) (*Point, error) {
	saved, err := guwide.ReadU8(r.mem, addr)
	if err != nil {
		return nil, fmt.Errorf("read hook site %x: %w", addr, err)
	}

	if err := r.write(addr, []byte{int3}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Point{
		Kind:       KindHook,
		Addr:       addr,
		Generation: r.generation,
		Saved:      saved,
		Callback:   cb,
	}
	r.points = append(r.points, p)
	r.active[addr] = p
	return p, nil
}

// InstallPatch overwrites len(data) bytes at addr, once, immediately
// and non-transactionally.
func (r *Registry) InstallPatch(addr uintptr, data []byte) (*Point, error) {
	if err := r.write(addr, data); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Point{
		Kind:       KindPatch,
		Addr:       addr,
		Generation: r.generation,
		Replaced:   append([]byte(nil), data...),
	}
	r.points = append(r.points, p)
	return p, nil
}

// ActiveHook returns the current-generation hook at addr, if any.
// Dormant points from earlier generations never match.
func (r *Registry) ActiveHook(addr uintptr) (*Point, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.active[addr]
	return p, ok
}

// Dispatch runs the active hook callback for addr against ctx.
func (r *Registry) Dispatch(addr uintptr, ctx *Context) bool {
	p, ok := r.ActiveHook(addr)
	if !ok {
		return false
	}
	p.Callback(ctx)
	return true
}

// Suspend restores the displaced byte so the original instruction can
// execute. Paired with Arm by the debug loop's single-step re-arm.
func (r *Registry) Suspend(p *Point) error {
	return r.write(p.Addr, []byte{p.Saved})
}

// Arm re-plants the breakpoint byte.
func (r *Registry) Arm(p *Point) error {
	return r.write(p.Addr, []byte{int3})
}

func (r *Registry) write(addr uintptr, data []byte) error {
	if r.prot != nil {
		restore, err := r.prot.Unprotect(addr, len(data))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteProtected, err)
		}
		defer restore()
	}
	if err := r.mem.WriteMemory(addr, data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteProtected, err)
	}
	return nil
}
