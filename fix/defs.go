package fix

import (
	"math"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/config"
	"github.com/guwide/guwide/hook"
)

func masterOnly(cfg *config.Effective) bool {
	return cfg.MasterEnable
}

// Definitions returns the full fix table. The table is built once; the
// per-fix state captured here (text bubble scaler) survives module
// swaps the same way the installed points do.
func Definitions() []Definition {
	defs := []Definition{
		constrainAntiAliasing(),
		viewport(),
		aspectRatio(),
		centerUI(),
		uiElements(),
		combatOverlay(),
	}
	defs = append(defs, textBubblePlacement()...)
	defs = append(defs, cutsceneFraming())
	return defs
}

// The graphics settings path breaks at anti-aliasing level 3 once the
// other fixes are active, so levels above 2 are clamped on write.
func constrainAntiAliasing() Definition {
	return Definition{
		Name:    "constrain-anti-aliasing",
		Pattern: guwide.ParsePattern("44 0F BE 4A 10    44 0F BE 52 11"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				v, err := guwide.ReadU8(ctx.Mem, uintptr(ctx.Rdx)+0x10)
				if err != nil {
					return
				}
				if v > 0x2 {
					guwide.WriteU8(ctx.Mem, uintptr(ctx.Rdx)+0x10, 0x2)
				}
			}
		},
	}
}

// The viewport width reaches this site in r8 and is halved by the
// following sar; doubling the injected width cancels the shift and lets
// the game render up to the configured resolution.
func viewport() Definition {
	return Definition{
		Name:    "viewport",
		Pattern: guwide.ParsePattern("41 D1 F8    41 8B C0    C1 E8 1F"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				ctx.R8 = uint64(cfg.Width) * 2
			}
		},
	}
}

// 39 8E E3 3F is the 16:9 ratio constant the renderer reads. Replacing
// it with the configured ratio makes the game render for that ratio
// regardless of the window size.
func aspectRatio() Definition {
	return Definition{
		Name:    "aspect-ratio",
		Pattern: guwide.ParsePattern("39 8E E3 3F"),
		Enabled: masterOnly,
		PatchBytes: func(cfg *config.Effective) []byte {
			return guwide.F32Bytes(cfg.AspectRatio)
		},
	}
}

// The float written back here is used downstream as a scaler for UI
// element placement; widening it keeps the UI centered at 16:9.
func centerUI() Definition {
	return Definition{
		Name:    "center-ui",
		Pattern: guwide.ParsePattern("C7 87 ?? ?? ?? ?? ?? ?? ?? ??    F3 41 0F 5C C1"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				ctx.SetXmmF32(0, 0, float32(cfg.Width)*cfg.WidthScale)
			}
		},
	}
}

// Per-component UI render windows live at rbx+388 (x offset) and
// rbx+390 (x extent). The in-game map is the one component that must
// keep a partial window, recognized by the offset value the game itself
// computes from the width; everything else renders full width from 0.
func uiElements() Definition {
	return Definition{
		Name:    "ui-elements",
		Pattern: guwide.ParsePattern("48 8B 74 24 38    48 8B 5C 24 40    48 83 C4 20    5F    C3    48 8D 81 88 03 00 00"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				rbx := uintptr(ctx.Rbx)

				// the 40.0f factor drifts slightly by area, hence two candidates
				mapOffset0 := uint32(float32(cfg.Width)/682.0*40.0 + 0.5)
				mapOffset1 := uint32(float32(cfg.Width)/682.0*math.Float32frombits(0x4227799A) + 0.5)
				corrected := uint32(float32(cfg.NormalizedWidth)/682.0*40.0 + 0.5)

				cur, err := guwide.ReadU32(ctx.Mem, rbx+0x388)
				if err != nil {
					return
				}

				if cur == mapOffset0 || cur == mapOffset1 {
					guwide.WriteU32(ctx.Mem, rbx+0x388, uint32(cfg.NormalizedOffset)+corrected)
					if extent, err := guwide.ReadU32(ctx.Mem, rbx+0x394); err == nil {
						guwide.WriteU32(ctx.Mem, rbx+0x390, extent)
					}
				} else {
					guwide.WriteU32(ctx.Mem, rbx+0x388, 0)
					guwide.WriteU32(ctx.Mem, rbx+0x390, uint32(cfg.Width))
				}
			}
		},
	}
}

// The object copied here is identified by r13 == 0x68 with r14 == 0;
// other objects share the surrounding code and must not be touched.
func combatOverlay() Definition {
	return Definition{
		Name:    "combat-overlay",
		Pattern: guwide.ParsePattern("8B 82 80 02 00 00    4C 8D 89 E0 00 00 00"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				if ctx.R13 != 0x68 || ctx.R14 != 0 {
					return
				}
				rdx := uintptr(ctx.Rdx)
				if cfg.CombatOverlay {
					guwide.WriteF32(ctx.Mem, rdx+0x280, 1.0/(float32(cfg.Width)/2.0))
					guwide.WriteU32(ctx.Mem, rdx+0x2B0, 0xBF800000) // -1.0f
				} else {
					guwide.WriteU32(ctx.Mem, rdx+0x280, 0)
				}
			}
		},
	}
}

type textBubbleState struct {
	scaler float32
}

// Text bubble placement is driven by a scaler the game derives as
// 2.41f / aspect ratio. The first hook captures that scaler at the
// division site, recognized by rbx+4 holding the configured ratio; the
// second rewrites the consumer's input to the value a 16:9 screen would
// have produced. Both sites serve unrelated callers, so each firing
// verifies the captured values before touching anything.
func textBubblePlacement() []Definition {
	state := &textBubbleState{}

	capture := Definition{
		Name:    "text-bubble-capture",
		Pattern: guwide.ParsePattern("F3 0F 5E 4B 04    48 89 47 04"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				v, err := guwide.ReadF32(ctx.Mem, uintptr(ctx.Rbx)+0x4)
				if err != nil {
					return
				}
				if v == cfg.AspectRatio {
					state.scaler = ctx.XmmF32(1, 0)
				}
			}
		},
	}

	apply := Definition{
		Name:    "text-bubble-apply",
		Pattern: guwide.ParsePattern("F3 41 0F 10 48 08    0F C6 C0 00"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				expected := state.scaler / cfg.AspectRatio
				if ctx.XmmF32(0, 0) == expected {
					// 0x3FE38E39 is 16:9 as a float
					ctx.SetXmmF32(0, 0, state.scaler/math.Float32frombits(0x3FE38E39))
				}
			}
		},
	}

	return []Definition{capture, apply}
}

// In-engine cutscenes store their horizontal framing bounds at rsp+38
// and rsp+3C; scaling both by the width factor widens the frame while
// leaving the vertical bounds at rsp+30/rsp+34 untouched.
func cutsceneFraming() Definition {
	return Definition{
		Name:    "cutscene-framing",
		Pattern: guwide.ParsePattern("0F 28 CA    F3 0F 59 89 A4 03 00 00"),
		Enabled: masterOnly,
		Callback: func(cfg *config.Effective) hook.Callback {
			return func(ctx *hook.Context) {
				rsp := uintptr(ctx.Rsp)
				if left, err := guwide.ReadF32(ctx.Mem, rsp+0x38); err == nil {
					guwide.WriteF32(ctx.Mem, rsp+0x38, left*cfg.WidthScale)
				}
				if right, err := guwide.ReadF32(ctx.Mem, rsp+0x3C); err == nil {
					guwide.WriteF32(ctx.Mem, rsp+0x3C, right*cfg.WidthScale)
				}
			}
		},
	}
}
