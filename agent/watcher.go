package agent

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guwide/guwide"
)

// TargetModules lists the game DLLs worth attaching to. The launcher
// binary itself and the shared runtime DLLs never contain the patched
// code paths.
var TargetModules = []string{
	"hackgu_terminal.dll",
	"hackgu_title.dll",
	"hackgu_vol1.dll",
	"hackgu_vol2.dll",
	"hackgu_vol3.dll",
	"hackgu_vol4.dll",
}

// ModuleSource enumerates the modules currently mapped in the host.
type ModuleSource interface {
	Modules() ([]guwide.Module, error)
}

// Watcher polls a ModuleSource for the appearance and disappearance of
// the target modules. The host swaps game DLLs in and out as the player
// moves between volumes, so load and unload both recur for the lifetime
// of the process.
type Watcher struct {
	src      ModuleSource
	targets  []string
	interval time.Duration
	log      *slog.Logger

	current guwide.Module
}

func NewWatcher(src ModuleSource, log *slog.Logger) *Watcher {
	return &Watcher{
		src:      src,
		targets:  TargetModules,
		interval: 100 * time.Millisecond,
		log:      log,
	}
}

func (w *Watcher) match(mods []guwide.Module) (guwide.Module, bool) {
	for _, m := range mods {
		name := strings.ToLower(m.Name)
		for _, t := range w.targets {
			if strings.Contains(name, t) {
				return m, true
			}
		}
	}
	return guwide.Module{}, false
}

// AwaitLoad blocks until one of the target modules is mapped and
// returns it. Enumeration failures are transient while the host is
// mid-load, so they count as "not yet".
func (w *Watcher) AwaitLoad() guwide.Module {
	for {
		mods, err := w.src.Modules()
		if err != nil {
			w.log.Debug("module enumeration failed", "error", err)
		} else if m, ok := w.match(mods); ok {
			w.log.Info("module loaded", "name", m.Name,
				"base", fmt.Sprintf("%x", m.BaseOfDll), "size", m.SizeOfImage)
			w.current = m
			return m
		}
		time.Sleep(w.interval)
	}
}

// AwaitUnload blocks until the module returned by the last AwaitLoad is
// no longer mapped. An enumeration failure here means the module cannot
// be confirmed gone, so the wait continues.
func (w *Watcher) AwaitUnload() {
	for {
		mods, err := w.src.Modules()
		if err == nil {
			present := false
			for _, m := range mods {
				if m.Name == w.current.Name && m.BaseOfDll == w.current.BaseOfDll {
					present = true
					break
				}
			}
			if !present {
				w.log.Info("module unloaded", "name", w.current.Name)
				return
			}
		}
		time.Sleep(w.interval)
	}
}
