package animation

import (
	"fmt"
	"time"
)

// Color is a single RGB LED value.
type Color struct {
	R byte
	G byte
	B byte
}

// True if all components are zero, false otherwise
func (c Color) IsOff() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// Scale returns the color with every component multiplied by f,
// clamped to [0, 255]. f values outside [0, 1] are clamped too.
func (c Color) Scale(f float64) Color {
	if f <= 0 {
		return Color{}
	}
	if f >= 1 {
		return c
	}
	return Color{
		R: byte(float64(c.R)*f + 0.5),
		G: byte(float64(c.G)*f + 0.5),
		B: byte(float64(c.B)*f + 0.5),
	}
}

func rgb(v [3]byte) Color {
	return Color{R: v[0], G: v[1], B: v[2]}
}

// Kind identifies one of the closed set of animation effects. Unknown
// kinds are rejected when the configuration is loaded, not at render
// time.
type Kind string

const (
	KindSolid      Kind = "solid"
	KindPulse      Kind = "pulse"
	KindBlink      Kind = "blink"
	KindColorCycle Kind = "colorcycle"
	KindChase      Kind = "chase"
	KindRainbow    Kind = "rainbow"
	KindSparkle    Kind = "sparkle"
)

// Descriptor is the declarative form of an animation as it appears in
// the configuration file. Which fields are meaningful depends on Kind;
// Validate enforces the per-kind requirements.
type Descriptor struct {
	Kind    Kind          `yaml:"Kind"`
	RGB     [3]byte       `yaml:"RGB"`
	Colors  [][3]byte     `yaml:"Colors"`
	Speed   time.Duration `yaml:"Speed"`
	Size    int           `yaml:"Size"`
	Spacing int           `yaml:"Spacing"`
	Reverse bool          `yaml:"Reverse"`
}

// Validate checks that the descriptor names a known kind and carries
// the parameters that kind needs.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindSolid:
		return nil
	case KindPulse, KindBlink, KindSparkle:
		if d.Speed <= 0 {
			return fmt.Errorf("animation kind %q needs a positive Speed", d.Kind)
		}
		return nil
	case KindColorCycle:
		if d.Speed <= 0 {
			return fmt.Errorf("animation kind %q needs a positive Speed", d.Kind)
		}
		if len(d.Colors) == 0 {
			return fmt.Errorf("animation kind %q needs at least one entry in Colors", d.Kind)
		}
		return nil
	case KindChase:
		if d.Speed <= 0 {
			return fmt.Errorf("animation kind %q needs a positive Speed", d.Kind)
		}
		if d.Size <= 0 {
			return fmt.Errorf("animation kind %q needs a positive Size", d.Kind)
		}
		return nil
	case KindRainbow:
		if d.Speed <= 0 {
			return fmt.Errorf("animation kind %q needs a positive Speed", d.Kind)
		}
		return nil
	case "":
		return fmt.Errorf("animation descriptor has no Kind")
	default:
		return fmt.Errorf("unknown animation kind %q", d.Kind)
	}
}

// Animation renders one frame into a pixel buffer. Implementations are
// stateful (they keep their own phase clock) but never talk to
// hardware; the caller owns the buffer and decides when to show it.
type Animation interface {
	// Draw fills buf with the frame for the given instant.
	Draw(buf []Color, now time.Time)
}

// New builds the renderer for a validated descriptor. The start time
// anchors phase-based effects so that restarting an animation restarts
// its cycle.
func New(d Descriptor, start time.Time) (Animation, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Kind {
	case KindSolid:
		return &solid{color: rgb(d.RGB)}, nil
	case KindPulse:
		return &pulse{color: rgb(d.RGB), period: d.Speed, start: start}, nil
	case KindBlink:
		return &blink{color: rgb(d.RGB), period: d.Speed, start: start}, nil
	case KindColorCycle:
		colors := make([]Color, len(d.Colors))
		for i, v := range d.Colors {
			colors[i] = rgb(v)
		}
		return &colorCycle{colors: colors, period: d.Speed, start: start}, nil
	case KindChase:
		spacing := d.Spacing
		if spacing <= 0 {
			spacing = d.Size
		}
		return &chase{
			color:   rgb(d.RGB),
			period:  d.Speed,
			size:    d.Size,
			spacing: spacing,
			reverse: d.Reverse,
			start:   start,
		}, nil
	case KindRainbow:
		return &rainbow{period: d.Speed, start: start}, nil
	case KindSparkle:
		return &sparkle{color: rgb(d.RGB), period: d.Speed, start: start}, nil
	}
	return nil, fmt.Errorf("unknown animation kind %q", d.Kind)
}
