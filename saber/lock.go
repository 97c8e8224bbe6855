package saber

import (
	"log/slog"
	"time"
)

// Lock names used by the coordinators. Locks are looked up by name so
// that creation is idempotent and release is targeted.
const (
	LockLEDActivation     = "activation_saber_animation"
	LockLEDDeactivation   = "deactivation_saber_animation"
	LockAudioActivation   = "activation_sound"
	LockAudioDeactivation = "deactivation_sound"
)

// StateLock is a named, time-boxed hold that blocks a pending power
// state transition until its owner releases it or the timeout elapses.
// A zero Timeout means the lock never expires on its own; a non-empty
// ValidStates set makes the lock inert outside those states.
type StateLock struct {
	Name        string
	Blocked     bool
	Timeout     time.Duration
	ValidStates []PowerState
	Created     time.Time
}

// NewStateLock creates a blocked lock scoped to the given states.
func NewStateLock(name string, timeout time.Duration, validStates ...PowerState) *StateLock {
	return &StateLock{
		Name:        name,
		Blocked:     true,
		Timeout:     timeout,
		ValidStates: validStates,
	}
}

// Expired reports whether the timeout has elapsed since creation.
func (l *StateLock) Expired(now time.Time) bool {
	if l.Timeout <= 0 {
		return false
	}
	return now.Sub(l.Created) > l.Timeout
}

// ValidFor reports whether the lock applies in the given state. A lock
// with no ValidStates applies everywhere.
func (l *StateLock) ValidFor(state PowerState) bool {
	if len(l.ValidStates) == 0 {
		return true
	}
	for _, s := range l.ValidStates {
		if s == state {
			return true
		}
	}
	return false
}

// lockRegistry holds the state locks owned by the power state machine.
// It is only ever reached through the machine's Add/Remove/Unlock API.
type lockRegistry struct {
	locks []*StateLock
}

func (r *lockRegistry) find(name string) *StateLock {
	for _, l := range r.locks {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// add registers a lock. A lock whose valid-state set excludes the
// current state is rejected. Adding a name that is already registered
// is a no-op that reports success, which gives coordinators idempotent
// create-if-absent semantics.
func (r *lockRegistry) add(l *StateLock, current PowerState, now time.Time) bool {
	if !l.ValidFor(current) {
		slog.Warn("State lock not valid for current state, rejecting",
			"lock", l.Name, "state", current)
		return false
	}
	if r.find(l.Name) != nil {
		return true
	}
	l.Created = now
	r.locks = append(r.locks, l)
	slog.Debug("Added state lock", "lock", l.Name, "blocked", l.Blocked, "timeout", l.Timeout)
	return true
}

// remove deletes a lock by name. Removing a name that is not
// registered is not an error; it reports false.
func (r *lockRegistry) remove(name string) bool {
	for i, l := range r.locks {
		if l.Name == name {
			r.locks = append(r.locks[:i], r.locks[i+1:]...)
			slog.Debug("Removed state lock", "lock", name)
			return true
		}
	}
	return false
}

// unlock clears the blocked flag of a named lock without removing it.
func (r *lockRegistry) unlock(name string) bool {
	if l := r.find(name); l != nil {
		if l.Blocked {
			slog.Debug("Unlocking state lock", "lock", name)
		}
		l.Blocked = false
		return true
	}
	return false
}

// expireStale removes locks whose timeout has elapsed. Expired locks
// are purged before they can be consulted for blocking; the timeout is
// the safety net against a coordinator that forgets to release.
func (r *lockRegistry) expireStale(now time.Time) {
	kept := r.locks[:0]
	for _, l := range r.locks {
		if l.Expired(now) {
			slog.Warn("State lock expired, removing", "lock", l.Name, "timeout", l.Timeout)
			continue
		}
		kept = append(kept, l)
	}
	r.locks = kept
}

// isBlocking purges expired locks, then reports whether any remaining
// lock that applies to the current state is still blocked.
func (r *lockRegistry) isBlocking(current PowerState, now time.Time) bool {
	r.expireStale(now)
	for _, l := range r.locks {
		if l.Blocked && l.ValidFor(current) {
			return true
		}
	}
	return false
}

// purgeInvalid drops locks that are scoped to states other than the
// current one. Called after a transition so that a coordinator's lock
// cannot outlive the state it was guarding.
func (r *lockRegistry) purgeInvalid(current PowerState) {
	kept := r.locks[:0]
	for _, l := range r.locks {
		if !l.ValidFor(current) {
			slog.Debug("Dropping state lock scoped to departed state", "lock", l.Name)
			continue
		}
		kept = append(kept, l)
	}
	r.locks = kept
}
