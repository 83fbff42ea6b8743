package fix

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/guwide/guwide"
	"github.com/guwide/guwide/config"
	"github.com/guwide/guwide/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, width, height int, combatOverlay bool) *config.Effective {
	t.Helper()
	var f config.File
	f.MasterEnable = true
	f.Resolution.Width = width
	f.Resolution.Height = height
	f.Features.CombatOverlay.Enable = combatOverlay
	cfg, err := config.Derive(f, func() (int, int) { return 0, 0 })
	require.NoError(t, err)
	return cfg
}

func TestApplyMasterDisabled(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, true)
	cfg.MasterEnable = false

	mem := &guwide.ByteMemory{Base: 0x7FF600000000, Data: make([]byte, 0x200)}
	mod := guwide.Module{BaseOfDll: mem.Base, SizeOfImage: 0x200, Name: "hackGU_vol1.dll"}
	reg := hook.NewRegistry(mem, nil)

	Apply(Definitions(), mod, mem, reg, cfg, testLogger())

	// nothing scanned, nothing installed
	assert.Equal(t, 0, mem.Reads)
	assert.Equal(t, 0, reg.Len())
}

func TestApplyAspectRatioPatch(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)

	mem := &guwide.ByteMemory{Base: 0x7FF600000000, Data: make([]byte, 0x200)}
	copy(mem.Data[0x40:], []byte{0x39, 0x8E, 0xE3, 0x3F})
	mod := guwide.Module{BaseOfDll: mem.Base, SizeOfImage: 0x200, Name: "hackGU_vol1.dll"}
	reg := hook.NewRegistry(mem, nil)

	Apply(Definitions(), mod, mem, reg, cfg, testLogger())

	require.Equal(t, 1, reg.Len())
	assert.Equal(t, guwide.F32Bytes(cfg.AspectRatio), mem.Data[0x40:0x44])
}

func TestApplyTwiceGrowsRegistry(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)

	mem := &guwide.ByteMemory{Base: 0x7FF600000000, Data: make([]byte, 0x200)}
	copy(mem.Data[0x40:], []byte{0x39, 0x8E, 0xE3, 0x3F})
	mod := guwide.Module{BaseOfDll: mem.Base, SizeOfImage: 0x200, Name: "hackGU_vol1.dll"}
	reg := hook.NewRegistry(mem, nil)

	// no de-duplication: every install run appends its own points
	Apply(Definitions(), mod, mem, reg, cfg, testLogger())
	copy(mem.Data[0x40:], []byte{0x39, 0x8E, 0xE3, 0x3F})
	Apply(Definitions(), mod, mem, reg, cfg, testLogger())
	assert.Equal(t, 2, reg.Len())
}

func TestApplyInstallsHookAtMatch(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)

	mem := &guwide.ByteMemory{Base: 0x7FF600000000, Data: make([]byte, 0x200)}
	copy(mem.Data[0x80:], []byte{0x41, 0xD1, 0xF8, 0x41, 0x8B, 0xC0, 0xC1, 0xE8, 0x1F})
	mod := guwide.Module{BaseOfDll: mem.Base, SizeOfImage: 0x200, Name: "hackGU_vol1.dll"}
	reg := hook.NewRegistry(mem, nil)

	Apply([]Definition{viewport()}, mod, mem, reg, cfg, testLogger())

	require.Equal(t, 1, reg.Len())
	assert.Equal(t, byte(0xCC), mem.Data[0x80])

	p, ok := reg.ActiveHook(mem.Base + 0x80)
	require.True(t, ok)
	assert.Equal(t, byte(0x41), p.Saved)
}

func TestViewportCallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := viewport().Callback(cfg)

	ctx := &hook.Context{R8: 1}
	cb(ctx)
	assert.Equal(t, uint64(6880), ctx.R8)
}

func TestConstrainAntiAliasingCallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := constrainAntiAliasing().Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x2000, Data: make([]byte, 0x40)}
	mem.Data[0x10] = 5

	cb(&hook.Context{Rdx: 0x2000, Mem: mem})
	assert.Equal(t, byte(2), mem.Data[0x10])

	mem.Data[0x10] = 1
	cb(&hook.Context{Rdx: 0x2000, Mem: mem})
	assert.Equal(t, byte(1), mem.Data[0x10])

	// pointer leads outside the readable range: leave everything alone
	writes := mem.Writes
	cb(&hook.Context{Rdx: 0xDEAD0000, Mem: mem})
	assert.Equal(t, writes, mem.Writes)
}

func TestCenterUICallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := centerUI().Callback(cfg)

	ctx := &hook.Context{}
	cb(ctx)
	assert.InDelta(t, 3440*1.34375, ctx.XmmF32(0, 0), 0.01)
}

func TestUIElementsCallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := uiElements().Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x3000, Data: make([]byte, 0x400)}

	// the map: offset matches what the game computed from the width
	testWidth := float32(3440)
	mapOffset := uint32(testWidth/682.0*40.0 + 0.5)
	require.NoError(t, guwide.WriteU32(mem, 0x3000+0x388, mapOffset))
	require.NoError(t, guwide.WriteU32(mem, 0x3000+0x394, 1234))

	cb(&hook.Context{Rbx: 0x3000, Mem: mem})

	corrected := uint32(float32(cfg.NormalizedWidth)/682.0*40.0 + 0.5)
	got, _ := guwide.ReadU32(mem, 0x3000+0x388)
	assert.Equal(t, uint32(cfg.NormalizedOffset)+corrected, got)
	got, _ = guwide.ReadU32(mem, 0x3000+0x390)
	assert.Equal(t, uint32(1234), got)

	// any other component renders full width from zero
	require.NoError(t, guwide.WriteU32(mem, 0x3000+0x388, 7))
	cb(&hook.Context{Rbx: 0x3000, Mem: mem})

	got, _ = guwide.ReadU32(mem, 0x3000+0x388)
	assert.Equal(t, uint32(0), got)
	got, _ = guwide.ReadU32(mem, 0x3000+0x390)
	assert.Equal(t, uint32(3440), got)
}

func TestCombatOverlayCallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, true)
	cb := combatOverlay().Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x4000, Data: make([]byte, 0x2C0)}

	// wrong object type: untouched
	cb(&hook.Context{R13: 0x70, R14: 0, Rdx: 0x4000, Mem: mem})
	assert.Equal(t, 0, mem.Writes)
	cb(&hook.Context{R13: 0x68, R14: 1, Rdx: 0x4000, Mem: mem})
	assert.Equal(t, 0, mem.Writes)

	cb(&hook.Context{R13: 0x68, R14: 0, Rdx: 0x4000, Mem: mem})
	scale, err := guwide.ReadF32(mem, 0x4000+0x280)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1720.0, scale, 1e-9)
	raw, err := guwide.ReadU32(mem, 0x4000+0x2B0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xBF800000), raw)
}

func TestCombatOverlayDisabled(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := combatOverlay().Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x4000, Data: make([]byte, 0x2C0)}
	require.NoError(t, guwide.WriteU32(mem, 0x4000+0x280, 0x3F800000))

	cb(&hook.Context{R13: 0x68, R14: 0, Rdx: 0x4000, Mem: mem})
	got, _ := guwide.ReadU32(mem, 0x4000+0x280)
	assert.Equal(t, uint32(0), got)
}

func TestTextBubblePlacement(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	defs := textBubblePlacement()
	require.Len(t, defs, 2)
	capture := defs[0].Callback(cfg)
	apply := defs[1].Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x5000, Data: make([]byte, 0x20)}

	// before any capture the apply hook must not touch anything
	ctx := &hook.Context{}
	ctx.SetXmmF32(0, 0, 0.42)
	apply(ctx)
	assert.Equal(t, float32(0.42), ctx.XmmF32(0, 0))

	// the division site for an unrelated object: no capture
	require.NoError(t, guwide.WriteF32(mem, 0x5004, 1.0))
	cctx := &hook.Context{Rbx: 0x5000, Mem: mem}
	cctx.SetXmmF32(1, 0, 99.0)
	capture(cctx)

	// the real site: rbx+4 holds the configured ratio
	scaler := float32(1.009)
	require.NoError(t, guwide.WriteF32(mem, 0x5004, cfg.AspectRatio))
	cctx = &hook.Context{Rbx: 0x5000, Mem: mem}
	cctx.SetXmmF32(1, 0, scaler)
	capture(cctx)

	ctx = &hook.Context{}
	ctx.SetXmmF32(0, 0, scaler/cfg.AspectRatio)
	apply(ctx)
	assert.Equal(t, scaler/math.Float32frombits(0x3FE38E39), ctx.XmmF32(0, 0))

	// unrelated value flowing through the same site: untouched
	ctx = &hook.Context{}
	ctx.SetXmmF32(0, 0, 3.0)
	apply(ctx)
	assert.Equal(t, float32(3.0), ctx.XmmF32(0, 0))
}

func TestCutsceneFramingCallback(t *testing.T) {
	cfg := testConfig(t, 3440, 1440, false)
	cb := cutsceneFraming().Callback(cfg)

	mem := &guwide.ByteMemory{Base: 0x6000, Data: make([]byte, 0x40)}
	require.NoError(t, guwide.WriteF32(mem, 0x6000+0x30, 5.0)) // vertical, untouched
	require.NoError(t, guwide.WriteF32(mem, 0x6000+0x38, 100.0))
	require.NoError(t, guwide.WriteF32(mem, 0x6000+0x3C, -50.0))

	cb(&hook.Context{Rsp: 0x6000, Mem: mem})

	left, _ := guwide.ReadF32(mem, 0x6000+0x38)
	right, _ := guwide.ReadF32(mem, 0x6000+0x3C)
	top, _ := guwide.ReadF32(mem, 0x6000+0x30)
	assert.InDelta(t, 134.375, left, 0.001)
	assert.InDelta(t, -67.1875, right, 0.001)
	assert.Equal(t, float32(5.0), top)
}

func TestDefinitionsShape(t *testing.T) {
	defs := Definitions()
	assert.Len(t, defs, 9)

	for _, def := range defs {
		assert.NotEmpty(t, def.Name)
		assert.Greater(t, def.Pattern.Length(), 0, def.Name)
		assert.NotNil(t, def.Enabled, def.Name)
		hasOne := (def.Callback != nil) != (def.PatchBytes != nil)
		assert.True(t, hasOne, def.Name)
	}
}
