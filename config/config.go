// Package config loads the fix configuration file, applies environment
// overrides and derives the immutable numeric parameters every fix
// callback reads. The derived values are computed once at startup and
// never mutated, so callbacks hold them by reference without locks.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var ErrZeroDisplay = errors.New("display reported zero dimensions")

// File mirrors the YAML configuration schema.
type File struct {
	Name         string `yaml:"name"`
	MasterEnable bool   `yaml:"masterEnable"`
	Resolution   struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"resolution"`
	Features struct {
		CombatOverlay struct {
			Enable bool `yaml:"enable"`
		} `yaml:"combatOverlay"`
	} `yaml:"features"`
}

// overrides are optional environment knobs layered over the file.
type overrides struct {
	MasterEnable  *bool `env:"GUWIDE_MASTER_ENABLE"`
	Width         *int  `env:"GUWIDE_WIDTH"`
	Height        *int  `env:"GUWIDE_HEIGHT"`
	CombatOverlay *bool `env:"GUWIDE_COMBAT_OVERLAY"`
}

// DisplayFunc reports the current display dimensions. Consulted only
// when the configured resolution is zero.
type DisplayFunc func() (width, height int)

// Effective is the derived, read-mostly configuration state. Computed
// once after load; immutable thereafter.
type Effective struct {
	Name         string
	MasterEnable bool

	Width  int
	Height int

	AspectRatio      float32
	NormalizedWidth  int // width of a 16:9 image at the configured height
	NormalizedOffset int // pixel offset centering that image
	WidthScale       float32

	CombatOverlay bool
}

// Load reads the YAML file at path, applies environment overrides and
// derives the effective configuration.
func Load(path string, display DisplayFunc) (*Effective, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var ov overrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if ov.MasterEnable != nil {
		f.MasterEnable = *ov.MasterEnable
	}
	if ov.Width != nil {
		f.Resolution.Width = *ov.Width
	}
	if ov.Height != nil {
		f.Resolution.Height = *ov.Height
	}
	if ov.CombatOverlay != nil {
		f.Features.CombatOverlay.Enable = *ov.CombatOverlay
	}

	return Derive(f, display)
}

// Derive computes the effective values from a parsed file.
func Derive(f File, display DisplayFunc) (*Effective, error) {
	width := f.Resolution.Width
	height := f.Resolution.Height
	if width == 0 || height == 0 {
		width, height = display()
	}
	if width == 0 || height == 0 {
		return nil, ErrZeroDisplay
	}

	normalizedWidth := int((16.0 / 9.0) * float32(height))

	return &Effective{
		Name:         f.Name,
		MasterEnable: f.MasterEnable,
		Width:        width,
		Height:       height,

		AspectRatio:      float32(width) / float32(height),
		NormalizedWidth:  normalizedWidth,
		NormalizedOffset: int(float32(width-normalizedWidth) / 2.0),
		WidthScale:       float32(width) / float32(normalizedWidth),

		CombatOverlay: f.Features.CombatOverlay.Enable,
	}, nil
}

// Log writes the derived values, one line per field, the way the fix
// log is usually read: side by side with the install lines.
func (e *Effective) Log(l *slog.Logger) {
	l.Info("configuration",
		slog.String("name", e.Name),
		slog.Bool("masterEnable", e.MasterEnable),
		slog.Int("width", e.Width),
		slog.Int("height", e.Height),
		slog.Bool("combatOverlay", e.CombatOverlay),
	)
	l.Info("derived",
		slog.String("aspectRatio", fmt.Sprintf("%.4f", e.AspectRatio)),
		slog.Int("normalizedWidth", e.NormalizedWidth),
		slog.Int("normalizedOffset", e.NormalizedOffset),
		slog.String("widthScale", fmt.Sprintf("%.4f", e.WidthScale)),
	)
}
