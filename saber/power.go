package saber

import (
	"log/slog"
	"time"

	"saberd/config"
	"saberd/platform"
)

// PowerState is the central power/activity state of the saber.
//
// The topology implemented here is the WAKING lineage: sleeping is one
// state with hardware sleep attached as a side effect, and WAKING is a
// short stabilization stop between SLEEPING and ACTIVATING. There is
// no light/deep sleep ladder.
type PowerState int

const (
	PowerBooting PowerState = iota
	PowerSleeping
	PowerWaking
	PowerActivating
	PowerActive
	PowerIdle
	PowerDeactivating
)

var powerStateNames = map[PowerState]string{
	PowerBooting:      "BOOTING",
	PowerSleeping:     "SLEEPING",
	PowerWaking:       "WAKING",
	PowerActivating:   "ACTIVATING",
	PowerActive:       "ACTIVE",
	PowerIdle:         "IDLE",
	PowerDeactivating: "DEACTIVATING",
}

func (s PowerState) String() string {
	if name, ok := powerStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConfigKey is the lower-case name used for this state in the
// animation tables of the configuration file.
func (s PowerState) ConfigKey() string {
	switch s {
	case PowerBooting:
		return "booting"
	case PowerSleeping:
		return "sleeping"
	case PowerWaking:
		return "waking"
	case PowerActivating:
		return "activating"
	case PowerActive:
		return "active"
	case PowerIdle:
		return "idle"
	case PowerDeactivating:
		return "deactivating"
	}
	return ""
}

// transitionTable is the adjacency relation of the machine as data: a
// requested transition is legal iff the target appears in the current
// state's row.
var transitionTable = map[PowerState][]PowerState{
	PowerBooting:      {PowerSleeping},
	PowerSleeping:     {PowerWaking},
	PowerWaking:       {PowerActivating},
	PowerActivating:   {PowerActive},
	PowerActive:       {PowerIdle, PowerDeactivating},
	PowerIdle:         {PowerActive, PowerDeactivating},
	PowerDeactivating: {PowerSleeping},
}

// Slots in the persistence capability.
const (
	StoreSlotAnimation  = 0
	StoreSlotPowerState = 1
)

// PowerStateMachine consumes the events of each tick, applies the
// inactivity timeouts, and advances the power state along the
// transition table. Transitions blocked by state locks are stored as
// the single pending transition and retried every tick until the
// locks clear.
type PowerStateMachine struct {
	current    PowerState
	previous   PowerState
	stateStart time.Time

	pending    PowerState
	hasPending bool

	registry lockRegistry

	store platform.Persistence

	idleTimeout         time.Duration
	autoShutdownTimeout time.Duration
	wakingDuration      time.Duration

	now func() time.Time
}

func NewPowerStateMachine(conf *config.Config, store platform.Persistence) *PowerStateMachine {
	m := &PowerStateMachine{
		current:             PowerBooting,
		previous:            PowerBooting,
		store:               store,
		idleTimeout:         conf.Saber.IdleTimeout,
		autoShutdownTimeout: conf.Saber.AutoShutdownTimeout,
		wakingDuration:      conf.Saber.WakingDuration,
		now:                 time.Now,
	}
	m.stateStart = m.now()
	return m
}

// Current returns the machine's state. Components later in the tick
// order should normally read the published snapshot field instead.
func (m *PowerStateMachine) Current() PowerState {
	return m.current
}

// StateStart returns when the current state was entered.
func (m *PowerStateMachine) StateStart() time.Time {
	return m.stateStart
}

// AddLock registers a state lock. It is rejected when its valid-state
// set excludes the current state; re-adding an existing name succeeds
// without duplicating.
func (m *PowerStateMachine) AddLock(l *StateLock) bool {
	return m.registry.add(l, m.current, m.now())
}

// HasLock reports whether a lock with the name is registered.
func (m *PowerStateMachine) HasLock(name string) bool {
	return m.registry.find(name) != nil
}

// Unlock clears the blocked flag of a named lock.
func (m *PowerStateMachine) Unlock(name string) bool {
	return m.registry.unlock(name)
}

// RemoveLock deregisters a lock by name. Removing twice is harmless.
func (m *PowerStateMachine) RemoveLock(name string) bool {
	return m.registry.remove(name)
}

// IsBlocking purges expired locks and reports whether any live lock
// valid for the current state still blocks.
func (m *PowerStateMachine) IsBlocking() bool {
	return m.registry.isBlocking(m.current, m.now())
}

// SetTunables applies the hot-reloadable subset of the configuration.
func (m *PowerStateMachine) SetTunables(t config.Tunables) {
	m.idleTimeout = t.IdleTimeout
	m.autoShutdownTimeout = t.AutoShutdownTimeout
}

// RestoreState installs a persisted state after a hard reset. Only
// the two resting states are worth restoring; anything else boots
// normally.
func (m *PowerStateMachine) RestoreState() {
	if m.store == nil {
		return
	}
	b, err := m.store.LoadByte(StoreSlotPowerState)
	if err != nil {
		slog.Debug("No persisted power state", "error", err)
		return
	}
	s := PowerState(b)
	if s == PowerSleeping || s == PowerIdle {
		slog.Info("Restored power state", "state", s)
		m.current = PowerSleeping
		m.stateStart = m.now()
	}
}

// ProcessTick runs the per-tick protocol: retry the pending transition,
// consume this tick's events, evaluate timeouts, advance the transit
// states, and publish the resulting state into the snapshot.
func (m *PowerStateMachine) ProcessTick(old, snap *Snapshot) {
	now := m.now()

	// 1. Retry a transition deferred by locks on an earlier tick. No
	// fresh request is needed; the stored target is applied on the
	// first tick where nothing blocks.
	if m.hasPending && !m.registry.isBlocking(m.current, now) {
		target := m.pending
		m.hasPending = false
		slog.Info("Executing pending power transition", "to", target)
		m.execute(target, snap)
	}

	// 2. Consume input events.
	if snap.HasEvent(EventPowerButtonShortPress) {
		switch m.current {
		case PowerSleeping:
			m.RequestTransition(PowerWaking, snap)
		case PowerActive, PowerIdle:
			m.RequestTransition(PowerDeactivating, snap)
		}
	}
	if snap.HasEvent(EventSwingStart) || snap.HasEvent(EventHitStart) {
		switch m.current {
		case PowerIdle:
			m.RequestTransition(PowerActive, snap)
		case PowerSleeping:
			// Motion while asleep only refreshes the inactivity clock.
			m.stateStart = now
		}
	}

	// 3. Timeouts.
	if m.current == PowerActive {
		last := m.stateStart
		if snap.TriggerTime.After(last) {
			last = snap.TriggerTime
		}
		if now.Sub(last) > m.idleTimeout {
			m.RequestTransition(PowerIdle, snap)
		}
	}
	if m.current == PowerIdle && now.Sub(m.stateStart) > m.autoShutdownTimeout {
		slog.Info("Auto shutdown after idle timeout")
		m.RequestTransition(PowerDeactivating, snap)
	}

	// 4. Automatic advances for the transit states. ACTIVATING and
	// DEACTIVATING are gated holding states: the request repeats every
	// tick but only applies once every coordinator lock has released.
	// A transit state entered this very tick is held untouched, so the
	// coordinators running later in the tick get to register their
	// locks before the first advance request.
	switch m.current {
	case PowerBooting:
		m.RequestTransition(PowerSleeping, snap)
	case PowerWaking:
		if now.Sub(m.stateStart) >= m.wakingDuration {
			m.RequestTransition(PowerActivating, snap)
		}
	case PowerActivating:
		if old.PowerState == PowerActivating {
			m.RequestTransition(PowerActive, snap)
		}
	case PowerDeactivating:
		if old.PowerState == PowerDeactivating {
			m.RequestTransition(PowerSleeping, snap)
		}
	}

	snap.PowerState = m.current
}

// RequestTransition asks for a transition to target. An illegal
// adjacency is rejected and logged. A legal request either applies
// immediately or, when a valid lock blocks, is stored as the single
// pending transition; a second request while one is pending overwrites
// it.
func (m *PowerStateMachine) RequestTransition(target PowerState, snap *Snapshot) bool {
	if !m.canTransitionTo(target) {
		slog.Error("Invalid power transition rejected", "from", m.current, "to", target)
		return false
	}
	if m.registry.isBlocking(m.current, m.now()) {
		if m.hasPending && m.pending != target {
			slog.Warn("Overwriting pending power transition",
				"old", m.pending, "new", target)
		}
		m.pending = target
		m.hasPending = true
		return false
	}
	return m.execute(target, snap)
}

func (m *PowerStateMachine) canTransitionTo(target PowerState) bool {
	for _, t := range transitionTable[m.current] {
		if t == target {
			return true
		}
	}
	return false
}

func (m *PowerStateMachine) execute(target PowerState, snap *Snapshot) bool {
	from := m.current
	m.previous = from
	m.current = target
	m.stateStart = m.now()
	m.hasPending = false

	// Locks scoped to the departed state must not survive into the
	// next one.
	m.registry.purgeInvalid(target)

	slog.Info("Power state transition", "from", from, "to", target)

	// Boundary side effects.
	switch target {
	case PowerActivating:
		snap.AddEvent(EventPowerOnStart)
	case PowerActive:
		if from == PowerActivating {
			snap.AddEvent(EventPowerOnStop)
			// The blade just finished igniting; motion tracking starts
			// from rest.
			snap.PrevMode = snap.Mode
			snap.Mode = ModeIdle
		}
	case PowerDeactivating:
		snap.AddEvent(EventPowerOffStart)
		// No swing or hit effects mid-shutdown.
		snap.PrevMode = snap.Mode
		snap.Mode = ModeOff
	case PowerSleeping:
		if from == PowerDeactivating {
			snap.AddEvent(EventPowerOffStop)
		}
		m.persistState()
	}

	snap.PowerState = m.current
	return true
}

func (m *PowerStateMachine) persistState() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveByte(StoreSlotPowerState, byte(m.current)); err != nil {
		slog.Warn("Failed to persist power state", "error", err)
	}
}
