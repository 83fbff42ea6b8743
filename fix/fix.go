// Package fix defines the table of independent fixes and the routine
// installing them against the currently tracked module. Each fix is a
// byte signature plus either a replacement byte builder (direct patch)
// or a callback builder (mid-execution hook); "pattern not found" is an
// expected outcome and never aborts the remaining fixes.
package fix

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/config"
	"github.com/guwide/guwide/hook"
)

// Definition is one independent fix.
type Definition struct {
	Name    string
	Pattern guwide.Pattern

	// HookOffset is added to the first match address before install.
	HookOffset uintptr

	Enabled func(*config.Effective) bool

	// Exactly one of Callback / PatchBytes is set.
	Callback   func(*config.Effective) hook.Callback
	PatchBytes func(*config.Effective) []byte
}

// Installer is the subset of the interception registry the install
// routine needs.
type Installer interface {
	InstallHook(addr uintptr, cb hook.Callback) (*hook.Point, error)
	InstallPatch(addr uintptr, data []byte) (*hook.Point, error)
}

// Apply runs every definition's installation routine once against mod.
// Per-fix failures are logged and skipped; nothing here is fatal.
func Apply(defs []Definition, mod guwide.Module, mem guwide.Memory, reg Installer, cfg *config.Effective, log *slog.Logger) {
	modName := filepath.Base(mod.Name)

	for _, def := range defs {
		l := log.With(slog.String("fix", def.Name))

		if !def.Enabled(cfg) {
			l.Info("fix disabled")
			continue
		}
		l.Info("fix enabled")

		matches, err := guwide.ScanModule(mem, mod, def.Pattern)
		if err != nil {
			l.Error("scan failed", slog.Any("error", err))
			continue
		}
		if len(matches) == 0 {
			l.Info("pattern not found", slog.String("pattern", def.Pattern.String()))
			continue
		}

		addr := matches[0] + def.HookOffset
		rel := mod.Offset(addr)
		l.Info("pattern found",
			slog.String("pattern", def.Pattern.String()),
			slog.String("at", fmt.Sprintf("%s+%x", modName, rel)))

		site, _ := mem.ReadMemory(addr, 16)

		if def.PatchBytes != nil {
			data := def.PatchBytes(cfg)
			if site != nil && hook.PatchSplitsInstruction(site, len(data)) {
				l.Debug("patch range ends inside an instruction",
					slog.String("site", hook.DescribeSite(site)))
			}
			if _, err := reg.InstallPatch(addr, data); err != nil {
				l.Error("patch failed", slog.Any("error", err))
				continue
			}
			l.Info("patched",
				slog.String("with", fmt.Sprintf("% X", data)),
				slog.String("at", fmt.Sprintf("%s+%x", modName, rel)))
		} else {
			if _, err := reg.InstallHook(addr, def.Callback(cfg)); err != nil {
				l.Error("hook failed", slog.Any("error", err))
				continue
			}
			if site != nil {
				l.Debug("hook site", slog.String("insn", hook.DescribeSite(site)))
			}
			l.Info("hooked", slog.String("at", fmt.Sprintf("%s+%x", modName, rel)))
		}
	}
}
