package animation

import (
	"math"
	"time"
)

// Wave is the duration-bound reveal effect used while the saber powers
// on or off. Given a wall-clock duration it sweeps a color across the
// strip so that the sweep completes exactly when the duration elapses,
// independent of the frame rate. The sweep is nonlinear: progress
// follows f^0.5 going forward and 1-(1-f)^0.5 in reverse, which starts
// fast and eases out.
//
// Draw only touches pixels that newly crossed the reveal threshold
// since the previous frame. Whatever was drawn on the remaining pixels
// is preserved, so the wave can run on top of another pattern without
// repainting it.
type Wave struct {
	color    Color
	reverse  bool
	duration time.Duration
	start    time.Time
	lit      int
	started  bool
}

// NewWave creates a wave reveal in the given color. A reverse wave
// sweeps from the far end of the strip towards the base.
func NewWave(color Color, reverse bool) *Wave {
	return &Wave{color: color, reverse: reverse}
}

// Restart arms the wave with a fresh duration. The duration may differ
// from run to run; it tracks the measured length of whatever sound
// effect the wave accompanies.
func (w *Wave) Restart(duration time.Duration, now time.Time) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	w.duration = duration
	w.start = now
	w.lit = 0
	w.started = true
}

// Fraction returns the eased progress in [0, 1].
func (w *Wave) Fraction(now time.Time) float64 {
	if !w.started {
		return 0
	}
	f := now.Sub(w.start).Seconds() / w.duration.Seconds()
	if f >= 1 {
		return 1
	}
	if f <= 0 {
		return 0
	}
	if w.reverse {
		return 1 - math.Sqrt(1-f)
	}
	return math.Sqrt(f)
}

// Done reports whether the full duration has elapsed.
func (w *Wave) Done(now time.Time) bool {
	return w.started && now.Sub(w.start) >= w.duration
}

func (w *Wave) Draw(buf []Color, now time.Time) {
	if !w.started {
		return
	}
	target := int(float64(len(buf))*w.Fraction(now) + 0.5)
	if target > len(buf) {
		target = len(buf)
	}
	if target <= w.lit {
		return
	}
	if w.reverse {
		// Reveal from the tip towards the base.
		for i := len(buf) - target; i < len(buf)-w.lit; i++ {
			buf[i] = w.color
		}
	} else {
		for i := w.lit; i < target; i++ {
			buf[i] = w.color
		}
	}
	w.lit = target
}
