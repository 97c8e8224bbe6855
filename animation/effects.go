package animation

import (
	"math"
	"math/rand"
	"time"
)

type solid struct {
	color Color
}

func (a *solid) Draw(buf []Color, _ time.Time) {
	for i := range buf {
		buf[i] = a.color
	}
}

// pulse breathes the color with a sine curve over one period.
type pulse struct {
	color  Color
	period time.Duration
	start  time.Time
}

func (a *pulse) Draw(buf []Color, now time.Time) {
	phase := math.Mod(now.Sub(a.start).Seconds(), a.period.Seconds()) / a.period.Seconds()
	level := (1 - math.Cos(2*math.Pi*phase)) / 2
	c := a.color.Scale(level)
	for i := range buf {
		buf[i] = c
	}
}

type blink struct {
	color  Color
	period time.Duration
	start  time.Time
}

func (a *blink) Draw(buf []Color, now time.Time) {
	on := (now.Sub(a.start)/a.period)%2 == 0
	c := Color{}
	if on {
		c = a.color
	}
	for i := range buf {
		buf[i] = c
	}
}

// colorCycle shows each color of the list in turn, advancing every
// period.
type colorCycle struct {
	colors []Color
	period time.Duration
	start  time.Time
}

func (a *colorCycle) Draw(buf []Color, now time.Time) {
	step := int(now.Sub(a.start)/a.period) % len(a.colors)
	if step < 0 {
		step = 0
	}
	c := a.colors[step]
	for i := range buf {
		buf[i] = c
	}
}

// chase moves blocks of size lit pixels separated by spacing dark ones
// along the strip, one pixel per period.
type chase struct {
	color   Color
	period  time.Duration
	size    int
	spacing int
	reverse bool
	start   time.Time
}

func (a *chase) Draw(buf []Color, now time.Time) {
	cycle := a.size + a.spacing
	offset := int(now.Sub(a.start)/a.period) % cycle
	if offset < 0 {
		offset = 0
	}
	for i := range buf {
		pos := i
		if a.reverse {
			pos = len(buf) - 1 - i
		}
		if (pos+cycle-offset)%cycle < a.size {
			buf[i] = a.color
		} else {
			buf[i] = Color{}
		}
	}
}

// rainbow spreads the hue wheel across the strip and rotates it by one
// full revolution per period.
type rainbow struct {
	period time.Duration
	start  time.Time
}

func (a *rainbow) Draw(buf []Color, now time.Time) {
	if len(buf) == 0 {
		return
	}
	phase := math.Mod(now.Sub(a.start).Seconds(), a.period.Seconds()) / a.period.Seconds()
	for i := range buf {
		h := math.Mod(float64(i)/float64(len(buf))+phase, 1.0)
		buf[i] = hueToColor(h)
	}
}

func hueToColor(h float64) Color {
	// Piecewise hue-to-RGB wheel, full saturation and value.
	seg := h * 6
	x := byte((1 - math.Abs(math.Mod(seg, 2)-1)) * 255)
	switch int(seg) % 6 {
	case 0:
		return Color{R: 255, G: x}
	case 1:
		return Color{R: x, G: 255}
	case 2:
		return Color{G: 255, B: x}
	case 3:
		return Color{G: x, B: 255}
	case 4:
		return Color{R: x, B: 255}
	default:
		return Color{R: 255, B: x}
	}
}

// sparkle lights a handful of random pixels over a dimmed base color,
// re-rolling the set every period.
type sparkle struct {
	color  Color
	period time.Duration
	start  time.Time

	lastStep int
	lit      []int
}

func (a *sparkle) Draw(buf []Color, now time.Time) {
	if len(buf) == 0 {
		return
	}
	step := int(now.Sub(a.start) / a.period)
	if step != a.lastStep || a.lit == nil {
		a.lastStep = step
		n := len(buf) / 10
		if n < 1 {
			n = 1
		}
		a.lit = a.lit[:0]
		for i := 0; i < n; i++ {
			a.lit = append(a.lit, rand.Intn(len(buf)))
		}
	}
	base := a.color.Scale(0.15)
	for i := range buf {
		buf[i] = base
	}
	for _, i := range a.lit {
		buf[i] = a.color
	}
}
