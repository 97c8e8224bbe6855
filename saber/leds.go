package saber

import (
	"log/slog"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"saberd/animation"
	"saberd/config"
	"saberd/platform"
)

const (
	idleDimFactor    = 0.25
	fallbackClipTime = time.Second
)

// stateTable is one LED target's compiled animation set: one animation
// per power state, an optional pressed override, and a declared
// fallback for states with no entry of their own.
type stateTable struct {
	byState  map[PowerState]animation.Animation
	pressed  animation.Animation
	fallback animation.Animation
}

func (t *stateTable) pick(state PowerState, pressed bool) animation.Animation {
	if pressed && t.pressed != nil {
		return t.pressed
	}
	if a, ok := t.byState[state]; ok {
		return a
	}
	return t.fallback
}

// nightDimmer scales indicator brightness down between sunset and
// sunrise for a configured location. The sun times are recomputed at
// most once a minute.
type nightDimmer struct {
	enabled   bool
	latitude  float64
	longitude float64
	factor    float64

	riseTime time.Time
	setTime  time.Time
	nextCalc time.Time
}

func newNightDimmer(conf config.NightModeConfig) *nightDimmer {
	f := conf.DimFactor
	if f <= 0 || f > 1 {
		f = 0.3
	}
	return &nightDimmer{
		enabled:   conf.Enabled,
		latitude:  conf.Latitude,
		longitude: conf.Longitude,
		factor:    f,
	}
}

// scale returns the brightness factor for indicators at the given
// time: 1 during the day, the configured dim factor at night.
func (n *nightDimmer) scale(now time.Time) float64 {
	if !n.enabled {
		return 1
	}
	if now.After(n.nextCalc) {
		n.riseTime, n.setTime = sunrise.SunriseSunset(
			n.latitude, n.longitude, now.Year(), now.Month(), now.Day())
		n.nextCalc = now.Add(time.Minute)
	}
	if now.Before(n.riseTime) || now.After(n.setTime) {
		return n.factor
	}
	return 1
}

// LEDCoordinator renders all LED surfaces from the snapshot. It owns
// the activation and deactivation reveal waves and the state locks
// that keep the power machine in the transit states until the reveal
// has run its full, sound-synchronized duration.
type LEDCoordinator struct {
	pf  platform.Platform
	psm *PowerStateMachine

	tables map[platform.Target]*stateTable

	idleCycle []animation.Descriptor
	idleAnims []animation.Animation

	hitOverlay   animation.Descriptor
	swingOverlay animation.Descriptor
	hitDuration  time.Duration
	swingDur     time.Duration

	overlay      animation.Animation
	overlayUntil time.Time

	wave         *animation.Wave
	safetyBuffer time.Duration

	night *nightDimmer

	bufs  map[platform.Target][]animation.Color
	shown map[platform.Target][]animation.Color

	now func() time.Time
}

func NewLEDCoordinator(conf *config.Config, pf platform.Platform, psm *PowerStateMachine) (*LEDCoordinator, error) {
	c := &LEDCoordinator{
		pf:           pf,
		psm:          psm,
		idleCycle:    conf.Animation.IdleCycle,
		hitOverlay:   conf.Animation.HitOverlay,
		swingOverlay: conf.Animation.SwingOverlay,
		hitDuration:  conf.Saber.HitEffectDuration,
		swingDur:     conf.Saber.SwingEffectDuration,
		safetyBuffer: conf.Saber.LockSafetyBuffer,
		night:        newNightDimmer(conf.NightMode),
		tables:       make(map[platform.Target]*stateTable),
		bufs:         make(map[platform.Target][]animation.Color),
		shown:        make(map[platform.Target][]animation.Color),
		now:          time.Now,
	}

	start := c.now()
	tableConfs := map[platform.Target]map[string]animation.Descriptor{
		platform.TargetStrip:          conf.Animation.Strip,
		platform.TargetStatusPixel:    conf.Animation.StatusPixel,
		platform.TargetPowerButton:    conf.Animation.PowerButton,
		platform.TargetActivityButton: conf.Animation.ActivityButton,
	}
	for target, descs := range tableConfs {
		tbl, err := compileTable(descs, start)
		if err != nil {
			return nil, err
		}
		c.tables[target] = tbl
		n := pf.PixelCount(target)
		c.bufs[target] = make([]animation.Color, n)
		c.shown[target] = make([]animation.Color, n)
	}

	for _, d := range conf.Animation.IdleCycle {
		a, err := animation.New(d, start)
		if err != nil {
			return nil, err
		}
		c.idleAnims = append(c.idleAnims, a)
	}
	return c, nil
}

func compileTable(descs map[string]animation.Descriptor, start time.Time) (*stateTable, error) {
	tbl := &stateTable{byState: make(map[PowerState]animation.Animation)}
	states := []PowerState{PowerBooting, PowerSleeping, PowerWaking,
		PowerActivating, PowerActive, PowerIdle, PowerDeactivating}
	for key, d := range descs {
		a, err := animation.New(d, start)
		if err != nil {
			return nil, err
		}
		switch key {
		case "pressed":
			tbl.pressed = a
		case "default":
			tbl.fallback = a
		default:
			for _, s := range states {
				if s.ConfigKey() == key {
					tbl.byState[s] = a
				}
			}
		}
	}
	return tbl, nil
}

// SeedSnapshot restores the persisted idle-animation index into the
// initial snapshot.
func (c *LEDCoordinator) SeedSnapshot(snap *Snapshot) {
	b, err := c.pf.LoadByte(StoreSlotAnimation)
	if err != nil {
		slog.Debug("No persisted animation index", "error", err)
		return
	}
	if int(b) < len(c.idleAnims) {
		snap.AnimationIndex = int(b)
	}
}

// bladeColor is the base color of the currently selected idle
// animation, used as the reveal color on activation.
func (c *LEDCoordinator) bladeColor(snap *Snapshot) animation.Color {
	if snap.AnimationIndex < len(c.idleCycle) {
		d := c.idleCycle[snap.AnimationIndex]
		return animation.Color{R: d.RGB[0], G: d.RGB[1], B: d.RGB[2]}
	}
	return animation.Color{R: 255, G: 255, B: 255}
}

// ProcessTick updates the wave locks, handles animation cycling and
// overlays, and renders every target. It runs after the power state
// machine within each tick.
func (c *LEDCoordinator) ProcessTick(old, snap *Snapshot) {
	now := c.now()

	entered := old.PowerState != snap.PowerState
	switch snap.PowerState {
	case PowerActivating:
		if entered {
			c.startWave(snap, LockLEDActivation, CategoryActivating,
				c.bladeColor(snap), false, PowerActivating, now)
		}
		if c.wave != nil && c.wave.Done(now) {
			c.psm.Unlock(LockLEDActivation)
		}
	case PowerDeactivating:
		if entered {
			c.startWave(snap, LockLEDDeactivation, CategoryDeactivating,
				animation.Color{}, true, PowerDeactivating, now)
		}
		if c.wave != nil && c.wave.Done(now) {
			c.psm.Unlock(LockLEDDeactivation)
		}
	default:
		if entered && (old.PowerState == PowerActivating || old.PowerState == PowerDeactivating) {
			// Leaving a transit state for any reason drops the reveal
			// and its lock, whether or not it finished.
			c.psm.Unlock(LockLEDActivation)
			c.psm.RemoveLock(LockLEDActivation)
			c.psm.Unlock(LockLEDDeactivation)
			c.psm.RemoveLock(LockLEDDeactivation)
			c.wave = nil
		}
	}

	c.handleAnimationCycle(snap, now)
	c.handleOverlays(snap, now)
	c.render(snap, now)
}

func (c *LEDCoordinator) startWave(snap *Snapshot, lockName string, cat SoundCategory,
	color animation.Color, reverse bool, state PowerState, now time.Time) {
	dur := snap.Playlist[cat].Duration
	if dur <= 0 {
		dur = fallbackClipTime
	}
	c.psm.AddLock(NewStateLock(lockName, dur+c.safetyBuffer, state))
	c.wave = animation.NewWave(color, reverse)
	c.wave.Restart(dur, now)
}

func (c *LEDCoordinator) handleAnimationCycle(snap *Snapshot, now time.Time) {
	if len(c.idleAnims) == 0 {
		return
	}
	if snap.PowerState != PowerActive && snap.PowerState != PowerIdle {
		return
	}
	if !snap.HasEvent(EventActivityButtonShortPress) {
		return
	}
	snap.AnimationIndex = (snap.AnimationIndex + 1) % len(c.idleAnims)
	snap.AddEvent(EventAnimationCycle)
	if a, err := animation.New(c.idleCycle[snap.AnimationIndex], now); err == nil {
		c.idleAnims[snap.AnimationIndex] = a
	}
	if err := c.pf.SaveByte(StoreSlotAnimation, byte(snap.AnimationIndex)); err != nil {
		slog.Warn("Failed to persist animation index", "error", err)
	}
	slog.Info("Idle animation cycled", "index", snap.AnimationIndex)
}

func (c *LEDCoordinator) handleOverlays(snap *Snapshot, now time.Time) {
	if snap.PowerState != PowerActive {
		return
	}
	switch {
	case snap.HasEvent(EventHitStart):
		if a, err := animation.New(c.hitOverlay, now); err == nil {
			c.overlay = a
			c.overlayUntil = now.Add(c.hitDuration)
		}
	case snap.HasEvent(EventSwingStart):
		if a, err := animation.New(c.swingOverlay, now); err == nil {
			c.overlay = a
			c.overlayUntil = now.Add(c.swingDur)
		}
	}
}

func (c *LEDCoordinator) render(snap *Snapshot, now time.Time) {
	c.renderStrip(snap, now)

	dim := c.night.scale(now)
	for _, target := range []platform.Target{
		platform.TargetStatusPixel, platform.TargetPowerButton, platform.TargetActivityButton,
	} {
		buf := c.bufs[target]
		if len(buf) == 0 {
			continue
		}
		pressed := false
		switch target {
		case platform.TargetPowerButton:
			pressed = snap.PowerButtonPressed
		case platform.TargetActivityButton:
			pressed = snap.ActivityButtonPressed
		}
		if a := c.tables[target].pick(snap.PowerState, pressed); a != nil {
			a.Draw(buf, now)
		}
		if dim < 1 {
			for i := range buf {
				buf[i] = buf[i].Scale(dim)
			}
		}
	}

	c.show()
}

func (c *LEDCoordinator) renderStrip(snap *Snapshot, now time.Time) {
	buf := c.bufs[platform.TargetStrip]
	if len(buf) == 0 {
		return
	}

	switch snap.PowerState {
	case PowerActivating, PowerDeactivating:
		// The reveal paints only newly crossed pixels; the rest of the
		// buffer carries over from the previous frame.
		if c.wave != nil {
			c.wave.Draw(buf, now)
		}
	case PowerActive:
		if c.overlay != nil && now.Before(c.overlayUntil) {
			c.overlay.Draw(buf, now)
			return
		}
		c.overlay = nil
		c.drawIdle(snap, buf, now, 1)
	case PowerIdle:
		c.drawIdle(snap, buf, now, idleDimFactor)
	default:
		if a := c.tables[platform.TargetStrip].pick(snap.PowerState, false); a != nil {
			a.Draw(buf, now)
		}
	}
}

func (c *LEDCoordinator) drawIdle(snap *Snapshot, buf []animation.Color, now time.Time, dim float64) {
	if len(c.idleAnims) == 0 {
		if a := c.tables[platform.TargetStrip].pick(snap.PowerState, false); a != nil {
			a.Draw(buf, now)
		}
		return
	}
	idx := snap.AnimationIndex
	if idx >= len(c.idleAnims) {
		idx = 0
	}
	c.idleAnims[idx].Draw(buf, now)
	if dim < 1 {
		for i := range buf {
			buf[i] = buf[i].Scale(dim)
		}
	}
}

// show pushes changed pixels to the platform and flushes once when
// anything changed since the last frame.
func (c *LEDCoordinator) show() {
	changed := false
	for _, target := range platform.Targets {
		buf := c.bufs[target]
		last := c.shown[target]
		for i := range buf {
			if buf[i] != last[i] {
				c.pf.SetPixel(target, i, buf[i])
				last[i] = buf[i]
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	if err := c.pf.Show(); err != nil {
		slog.Warn("LED update failed", "error", err)
	}
}
