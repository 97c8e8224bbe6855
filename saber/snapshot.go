package saber

import (
	"time"
)

// Mode is the motion sub-mode of the blade, derived from accelerometer
// magnitudes while the saber is powered.
type Mode int

const (
	ModeOff Mode = iota
	ModeIdle
	ModeSwing
	ModeHit
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeIdle:
		return "IDLE"
	case ModeSwing:
		return "SWING"
	case ModeHit:
		return "HIT"
	}
	return "UNKNOWN"
}

// Event is a discrete occurrence flagged within a single tick. Events
// are appended in order by whichever component detects them and tested
// by membership by everyone downstream.
type Event int

const (
	EventPowerOnStart Event = iota + 1
	EventPowerOnProgress
	EventPowerOnStop
	EventPowerOffStart
	EventPowerOffProgress
	EventPowerOffStop
	EventHitStart
	EventHitInProgress
	EventHitStop
	EventSwingStart
	EventSwingInProgress
	EventSwingStop
	EventIdleStart
	EventIdleInProgress
	EventAnimationCycle
	EventPowerButtonShortPress
	EventPowerButtonLongPress
	EventActivityButtonShortPress
	EventActivityButtonLongPress
)

var eventNames = map[Event]string{
	EventPowerOnStart:             "power-on-start",
	EventPowerOnProgress:          "power-on-progress",
	EventPowerOnStop:              "power-on-stop",
	EventPowerOffStart:            "power-off-start",
	EventPowerOffProgress:         "power-off-progress",
	EventPowerOffStop:             "power-off-stop",
	EventHitStart:                 "hit-start",
	EventHitInProgress:            "hit-in-progress",
	EventHitStop:                  "hit-stop",
	EventSwingStart:               "swing-start",
	EventSwingInProgress:          "swing-in-progress",
	EventSwingStop:                "swing-stop",
	EventIdleStart:                "idle-start",
	EventIdleInProgress:           "idle-in-progress",
	EventAnimationCycle:           "animation-cycle",
	EventPowerButtonShortPress:    "power-button-short-press",
	EventPowerButtonLongPress:     "power-button-long-press",
	EventActivityButtonShortPress: "activity-button-short-press",
	EventActivityButtonLongPress:  "activity-button-long-press",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown-event"
}

// SoundCategory is a named bucket of sound-effect variants.
type SoundCategory string

const (
	CategoryActivating   SoundCategory = "activating"
	CategoryDeactivating SoundCategory = "deactivating"
	CategoryHit          SoundCategory = "hit"
	CategorySwing        SoundCategory = "swing"
	CategoryIdle         SoundCategory = "idle"
)

// AccelReading is one cached accelerometer sample.
type AccelReading struct {
	X float64
	Y float64
	Z float64
}

// PlaylistPos is the round-robin position of one sound category,
// together with the measured duration of the clip at that position.
// The LED coordinator reads the activating/deactivating durations from
// here; LED timing follows audio timing, not the other way round.
type PlaylistPos struct {
	Index    int
	Duration time.Duration
}

// Snapshot is the complete per-tick state record. Exactly one snapshot
// is current at any time. The tick driver clones the previous snapshot
// at tick start (persistent fields carried over, transient events
// cleared) and hands the clone to each component in a fixed order; the
// old snapshot is read-only for the rest of the tick.
type Snapshot struct {
	Mode        Mode
	PrevMode    Mode
	TriggerTime time.Time

	Events []Event

	Accel           *AccelReading
	LastAccelRead   time.Time
	BatteryVoltage  float64
	LastBatteryRead time.Time

	// PowerState is published by the power state machine each tick and
	// read by everyone after it in the tick order.
	PowerState PowerState

	PowerButtonPressed    bool
	ActivityButtonPressed bool

	Playlist       map[SoundCategory]PlaylistPos
	AnimationIndex int
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Playlist: make(map[SoundCategory]PlaylistPos),
	}
}

// Clone copies the persistent fields into a fresh snapshot and resets
// the transient event list.
func (s *Snapshot) Clone() *Snapshot {
	next := &Snapshot{
		Mode:                  s.Mode,
		PrevMode:              s.PrevMode,
		TriggerTime:           s.TriggerTime,
		Accel:                 s.Accel,
		LastAccelRead:         s.LastAccelRead,
		BatteryVoltage:        s.BatteryVoltage,
		LastBatteryRead:       s.LastBatteryRead,
		PowerState:            s.PowerState,
		PowerButtonPressed:    s.PowerButtonPressed,
		ActivityButtonPressed: s.ActivityButtonPressed,
		Playlist:              make(map[SoundCategory]PlaylistPos, len(s.Playlist)),
		AnimationIndex:        s.AnimationIndex,
	}
	for cat, pos := range s.Playlist {
		next.Playlist[cat] = pos
	}
	return next
}

// AddEvent appends an event to the current tick. Append order is
// preserved.
func (s *Snapshot) AddEvent(e Event) {
	s.Events = append(s.Events, e)
}

// HasEvent reports whether the event occurred this tick.
func (s *Snapshot) HasEvent(e Event) bool {
	for _, ev := range s.Events {
		if ev == e {
			return true
		}
	}
	return false
}
