package saber

import (
	"errors"
	"log/slog"
	"time"

	"saberd/config"
	"saberd/platform"
)

// batteryScale converts the ADC ratio to volts: 3.3 V reference behind
// a 1:2 divider.
const batteryScale = 3.3 * 2

// motionLevel is the classification of one accelerometer sample
// against the two thresholds.
type motionLevel int

const (
	levelIdle motionLevel = iota
	levelSwing
	levelHit
)

// debouncer turns a raw button level into a stable one: the raw level
// must hold for the debounce time before the stable level follows.
type debouncer struct {
	debounce time.Duration

	stable   bool
	raw      bool
	rawSince time.Time
	primed   bool
}

// update feeds one raw sample and reports press and release edges of
// the stable level.
func (d *debouncer) update(raw bool, now time.Time) (pressed, released bool) {
	if !d.primed || raw != d.raw {
		d.raw = raw
		d.rawSince = now
		d.primed = true
	}
	if d.raw != d.stable && now.Sub(d.rawSince) >= d.debounce {
		d.stable = d.raw
		if d.stable {
			return true, false
		}
		return false, true
	}
	return false, false
}

// buttonTracker layers press-duration classification on top of a
// debouncer: long press latched once while held, short press decided
// on the release edge.
type buttonTracker struct {
	deb       debouncer
	pressedAt time.Time
	latched   bool
	consumed  bool
}

// SensorCoordinator polls the motion sensor, the two buttons and the
// battery, and turns raw readings into snapshot fields and events. It
// runs first in the tick order.
type SensorCoordinator struct {
	pf platform.Platform

	hitThreshold   float64
	swingThreshold float64

	accelInterval   time.Duration
	batteryInterval time.Duration
	longPress       time.Duration
	doublePress     time.Duration

	motionOK  bool
	batteryOK bool

	powerBtn    buttonTracker
	activityBtn buttonTracker

	// A released short press on the power button is held here until
	// the double-press window closes.
	pendingShort   bool
	pendingShortAt time.Time

	batteryRead bool

	now func() time.Time
}

func NewSensorCoordinator(conf *config.Config, pf platform.Platform) *SensorCoordinator {
	s := &SensorCoordinator{
		pf:              pf,
		hitThreshold:    conf.Saber.HitThreshold,
		swingThreshold:  conf.Saber.SwingThreshold,
		accelInterval:   conf.Saber.AccelReadInterval,
		batteryInterval: conf.Saber.BatteryReadInterval,
		longPress:       conf.Saber.LongPressTime,
		doublePress:     conf.Saber.DoublePressTimeout,
		motionOK:        true,
		batteryOK:       true,
		now:             time.Now,
	}
	s.powerBtn.deb.debounce = conf.Saber.DebounceTime
	s.activityBtn.deb.debounce = conf.Saber.DebounceTime

	// Probe optional capabilities once so a missing sensor is a log
	// line at startup, not an error per tick.
	if _, _, _, err := pf.ReadMotion(); errors.Is(err, platform.ErrUnavailable) {
		slog.Warn("No motion sensor, swing and hit detection disabled")
		s.motionOK = false
	}
	if _, err := pf.ReadBatteryRaw(); errors.Is(err, platform.ErrUnavailable) {
		slog.Warn("No battery monitor")
		s.batteryOK = false
	}
	return s
}

// SetTunables applies the hot-reloadable thresholds.
func (s *SensorCoordinator) SetTunables(t config.Tunables) {
	s.hitThreshold = t.HitThreshold
	s.swingThreshold = t.SwingThreshold
}

// ProcessTick reads all inputs for this tick and writes results into
// the new snapshot.
func (s *SensorCoordinator) ProcessTick(old, snap *Snapshot) {
	now := s.now()
	s.readMotion(snap, now)
	s.processPowerButton(snap, now)
	s.processActivityButton(snap, now)
	s.readBattery(snap, now)
}

func (s *SensorCoordinator) readMotion(snap *Snapshot, now time.Time) {
	if !s.motionOK {
		return
	}
	if snap.Accel != nil && now.Sub(snap.LastAccelRead) < s.accelInterval {
		return
	}
	x, y, z, err := s.pf.ReadMotion()
	if err != nil {
		slog.Debug("Motion read failed", "error", err)
		return
	}
	snap.Accel = &AccelReading{X: x, Y: y, Z: z}
	snap.LastAccelRead = now
	s.classifyMotion(snap, now)
}

// classifyMotion applies the squared X/Z magnitude against the two
// thresholds and emits mode transition events. Only fresh samples are
// classified; a cached sample never re-fires its events.
func (s *SensorCoordinator) classifyMotion(snap *Snapshot, now time.Time) {
	mag := snap.Accel.X*snap.Accel.X + snap.Accel.Z*snap.Accel.Z
	level := levelIdle
	switch {
	case mag >= s.hitThreshold:
		level = levelHit
	case mag >= s.swingThreshold:
		level = levelSwing
	}

	if snap.Mode == ModeOff {
		// Asleep the blade has no motion modes; a stir only feeds the
		// power machine's inactivity clock.
		if snap.PowerState == PowerSleeping && level != levelIdle {
			snap.AddEvent(EventSwingStart)
		}
		return
	}

	switch snap.Mode {
	case ModeIdle:
		switch level {
		case levelHit:
			s.enterMode(snap, ModeHit, now)
			snap.AddEvent(EventHitStart)
		case levelSwing:
			s.enterMode(snap, ModeSwing, now)
			snap.AddEvent(EventSwingStart)
		default:
			if snap.PowerState == PowerActive {
				snap.AddEvent(EventIdleInProgress)
			}
		}
	case ModeSwing:
		switch level {
		case levelHit:
			snap.AddEvent(EventSwingStop)
			s.enterMode(snap, ModeHit, now)
			snap.AddEvent(EventHitStart)
		case levelSwing:
			snap.TriggerTime = now
			snap.AddEvent(EventSwingInProgress)
		default:
			snap.AddEvent(EventSwingStop)
			s.enterMode(snap, ModeIdle, now)
			snap.AddEvent(EventIdleStart)
		}
	case ModeHit:
		switch level {
		case levelHit:
			snap.TriggerTime = now
			snap.AddEvent(EventHitInProgress)
		case levelSwing:
			snap.AddEvent(EventHitStop)
			s.enterMode(snap, ModeSwing, now)
			snap.AddEvent(EventSwingStart)
		default:
			snap.AddEvent(EventHitStop)
			s.enterMode(snap, ModeIdle, now)
			snap.AddEvent(EventIdleStart)
		}
	}
}

func (s *SensorCoordinator) enterMode(snap *Snapshot, m Mode, now time.Time) {
	snap.PrevMode = snap.Mode
	snap.Mode = m
	if m != ModeIdle {
		snap.TriggerTime = now
	}
}

// PowerButtonSettling reports whether the power button still has a
// decision in flight: the raw level is down, a debounced press is
// held, or the double-press window after a release is open. The loop
// uses this to keep ticking fast while asleep instead of parking,
// since debounce and window expiry only advance on ticks.
func (s *SensorCoordinator) PowerButtonSettling() bool {
	return s.powerBtn.deb.raw || s.powerBtn.deb.stable || s.pendingShort
}

func (s *SensorCoordinator) processPowerButton(snap *Snapshot, now time.Time) {
	raw, err := s.pf.ReadButtonRaw(platform.ButtonPower)
	if err != nil {
		slog.Debug("Power button read failed", "error", err)
		return
	}
	b := &s.powerBtn
	pressed, released := b.deb.update(raw, now)
	snap.PowerButtonPressed = b.deb.stable

	if pressed {
		b.pressedAt = now
		b.latched = false
		b.consumed = false
		if s.pendingShort && now.Sub(s.pendingShortAt) <= s.doublePress {
			s.pendingShort = false
			b.consumed = true
			// Double press doubles as the activity button's short
			// press, except when the blade is off: then it is just a
			// power press.
			if snap.Mode != ModeOff {
				snap.AddEvent(EventActivityButtonShortPress)
			} else {
				snap.AddEvent(EventPowerButtonShortPress)
			}
		}
	}

	if b.deb.stable && !b.latched && !b.consumed && now.Sub(b.pressedAt) >= s.longPress {
		b.latched = true
		snap.AddEvent(EventPowerButtonLongPress)
	}

	if released && !b.latched && !b.consumed {
		s.pendingShort = true
		s.pendingShortAt = now
	}

	// A single press becomes definite once the double-press window
	// closes without a second press.
	if s.pendingShort && !b.deb.stable && now.Sub(s.pendingShortAt) > s.doublePress {
		s.pendingShort = false
		snap.AddEvent(EventPowerButtonShortPress)
	}
}

func (s *SensorCoordinator) processActivityButton(snap *Snapshot, now time.Time) {
	raw, err := s.pf.ReadButtonRaw(platform.ButtonActivity)
	if err != nil {
		slog.Debug("Activity button read failed", "error", err)
		return
	}
	b := &s.activityBtn
	pressed, released := b.deb.update(raw, now)
	snap.ActivityButtonPressed = b.deb.stable

	if pressed {
		b.pressedAt = now
		b.latched = false
	}

	// The activity button is inert while the blade is off.
	if snap.Mode == ModeOff {
		return
	}

	if b.deb.stable && !b.latched && now.Sub(b.pressedAt) >= s.longPress {
		b.latched = true
		snap.AddEvent(EventActivityButtonLongPress)
	}

	if released && !b.latched {
		snap.AddEvent(EventActivityButtonShortPress)
	}
}

func (s *SensorCoordinator) readBattery(snap *Snapshot, now time.Time) {
	if !s.batteryOK {
		return
	}
	if s.batteryRead && now.Sub(snap.LastBatteryRead) < s.batteryInterval {
		return
	}
	ratio, err := s.pf.ReadBatteryRaw()
	if err != nil {
		slog.Debug("Battery read failed", "error", err)
		return
	}
	s.batteryRead = true
	snap.BatteryVoltage = ratio * batteryScale
	snap.LastBatteryRead = now
}
