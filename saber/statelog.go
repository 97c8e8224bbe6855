package saber

import (
	"log/slog"
	"time"

	"github.com/gammazero/deque"

	"saberd/config"
)

const transitionHistorySize = 64

// TransitionSink receives state changes for out-of-process reporting.
// The MQTT telemetry publisher implements it; the logger works the
// same with no sinks attached.
type TransitionSink interface {
	Transition(kind, from, to string)
	Status(powerState, mode string, batteryVoltage float64)
}

// TransitionRecord is one logged state change.
type TransitionRecord struct {
	At   time.Time
	Kind string
	From string
	To   string
}

// TransitionLogger compares the old and new snapshot at the end of
// each tick, logs every power-state and motion-mode change, keeps a
// bounded history of recent transitions, and emits a periodic status
// summary.
type TransitionLogger struct {
	interval time.Duration
	sinks    []TransitionSink

	history     deque.Deque[TransitionRecord]
	lastSummary time.Time

	now func() time.Time
}

func NewTransitionLogger(conf *config.Config, sinks ...TransitionSink) *TransitionLogger {
	l := &TransitionLogger{
		interval: conf.Saber.StateLogInterval,
		sinks:    sinks,
		now:      time.Now,
	}
	l.lastSummary = l.now()
	return l
}

// ProcessTick runs last in the tick order, with the previous tick's
// snapshot for comparison.
func (l *TransitionLogger) ProcessTick(old, snap *Snapshot) {
	now := l.now()

	if old.PowerState != snap.PowerState {
		l.record(now, "power", old.PowerState.String(), snap.PowerState.String())
	}
	if old.Mode != snap.Mode {
		l.record(now, "mode", old.Mode.String(), snap.Mode.String())
	}

	if l.interval > 0 && now.Sub(l.lastSummary) >= l.interval {
		l.lastSummary = now
		slog.Info("State summary",
			"state", snap.PowerState,
			"mode", snap.Mode,
			"battery", snap.BatteryVoltage,
			"animation", snap.AnimationIndex,
			"transitions", l.history.Len())
		for _, s := range l.sinks {
			s.Status(snap.PowerState.String(), snap.Mode.String(), snap.BatteryVoltage)
		}
	}
}

func (l *TransitionLogger) record(now time.Time, kind, from, to string) {
	slog.Info("Transition", "kind", kind, "from", from, "to", to)
	if l.history.Len() >= transitionHistorySize {
		l.history.PopFront()
	}
	l.history.PushBack(TransitionRecord{At: now, Kind: kind, From: from, To: to})
	for _, s := range l.sinks {
		s.Transition(kind, from, to)
	}
}

// History returns the recent transitions, oldest first.
func (l *TransitionLogger) History() []TransitionRecord {
	out := make([]TransitionRecord, 0, l.history.Len())
	for i := 0; i < l.history.Len(); i++ {
		out = append(out, l.history.At(i))
	}
	return out
}
