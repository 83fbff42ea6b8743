// Package agent ties the module watcher, the fix table and the
// interception registry into the long-running attach cycle.
package agent

import (
	"log/slog"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/config"
	"github.com/guwide/guwide/fix"
	"github.com/guwide/guwide/hook"
)

type Agent struct {
	watcher *Watcher
	mem     guwide.Memory
	reg     *hook.Registry
	cfg     *config.Effective
	defs    []fix.Definition
	log     *slog.Logger
}

func New(watcher *Watcher, mem guwide.Memory, reg *hook.Registry, cfg *config.Effective, log *slog.Logger) *Agent {
	return &Agent{
		watcher: watcher,
		mem:     mem,
		reg:     reg,
		cfg:     cfg,
		defs:    fix.Definitions(),
		log:     log,
	}
}

// Cycle waits for a target module, installs the fix table against it
// and waits for it to go away again. Points installed for an earlier
// module stay recorded but never fire once the generation advances.
func (a *Agent) Cycle() {
	mod := a.watcher.AwaitLoad()
	a.reg.AdvanceGeneration()
	fix.Apply(a.defs, mod, a.mem, a.reg, a.cfg, a.log)
	a.watcher.AwaitUnload()
}

// Run loops Cycle for the lifetime of the host process.
func (a *Agent) Run() {
	for {
		a.Cycle()
	}
}
