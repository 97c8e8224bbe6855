package saber

import (
	"log/slog"
	"math/rand"
	"time"

	"saberd/config"
	"saberd/platform"
)

// clipEntry is one playlist slot: a clip name and its duration as
// measured from the file at startup.
type clipEntry struct {
	name     string
	duration time.Duration
}

// AudioCoordinator drives sound playback from the snapshot. Clip
// durations are measured once at startup and published through the
// snapshot playlist map; completion of a clip is decided from the
// measured duration, not from asking the hardware whether it is still
// playing.
type AudioCoordinator struct {
	pf  platform.Platform
	psm *PowerStateMachine

	playlists    map[SoundCategory][]clipEntry
	safetyBuffer time.Duration

	// One-shot effect currently in flight.
	oneShot      bool
	oneShotUntil time.Time

	humming bool

	now func() time.Time
}

func NewAudioCoordinator(conf *config.Config, pf platform.Platform, psm *PowerStateMachine) *AudioCoordinator {
	a := &AudioCoordinator{
		pf:           pf,
		psm:          psm,
		playlists:    make(map[SoundCategory][]clipEntry),
		safetyBuffer: conf.Saber.LockSafetyBuffer,
		now:          time.Now,
	}
	for cat, names := range conf.Sounds.Categories {
		var entries []clipEntry
		for _, name := range names {
			d, err := pf.ClipDuration(name)
			if err != nil {
				slog.Warn("Could not measure clip duration",
					"clip", name, "error", err)
				d = fallbackClipTime
			}
			entries = append(entries, clipEntry{name: name, duration: d})
		}
		a.playlists[SoundCategory(cat)] = entries
		slog.Debug("Sound category loaded", "category", cat, "clips", len(entries))
	}
	return a
}

// SeedSnapshot publishes the initial playlist positions and durations.
// This runs before the first tick so the LED coordinator can already
// read the activation duration when the machine first enters
// Activating.
func (a *AudioCoordinator) SeedSnapshot(snap *Snapshot) {
	for cat, entries := range a.playlists {
		if len(entries) == 0 {
			continue
		}
		snap.Playlist[cat] = PlaylistPos{Index: 0, Duration: entries[0].duration}
	}
}

// ProcessTick plays and stops sounds according to this tick's state
// and events. It runs after the LED coordinator.
func (a *AudioCoordinator) ProcessTick(old, snap *Snapshot) {
	now := a.now()
	entered := old.PowerState != snap.PowerState

	if entered && (old.PowerState == PowerActivating || old.PowerState == PowerDeactivating) {
		a.psm.Unlock(LockAudioActivation)
		a.psm.RemoveLock(LockAudioActivation)
		a.psm.Unlock(LockAudioDeactivation)
		a.psm.RemoveLock(LockAudioDeactivation)
	}

	switch snap.PowerState {
	case PowerActivating:
		if entered {
			a.startTransit(snap, CategoryActivating, LockAudioActivation, PowerActivating, now)
		}
		if a.oneShot && !now.Before(a.oneShotUntil) {
			a.oneShot = false
			a.psm.Unlock(LockAudioActivation)
		}
	case PowerDeactivating:
		if entered {
			a.startTransit(snap, CategoryDeactivating, LockAudioDeactivation, PowerDeactivating, now)
		}
		if a.oneShot && !now.Before(a.oneShotUntil) {
			a.oneShot = false
			a.psm.Unlock(LockAudioDeactivation)
		}
	case PowerActive, PowerIdle:
		a.processEffects(snap, now)
	case PowerSleeping:
		if entered {
			a.pf.StopAudio()
			a.oneShot = false
			a.humming = false
		}
	}
}

// startTransit resets the category playlist to its first clip and
// plays it under a state lock sized to the measured duration.
func (a *AudioCoordinator) startTransit(snap *Snapshot, cat SoundCategory, lockName string, state PowerState, now time.Time) {
	entries := a.playlists[cat]
	if len(entries) == 0 {
		return
	}
	clip := entries[0]
	snap.Playlist[cat] = PlaylistPos{Index: 0, Duration: clip.duration}
	a.psm.AddLock(NewStateLock(lockName, clip.duration+a.safetyBuffer, state))
	a.play(clip, false, now)
}

func (a *AudioCoordinator) processEffects(snap *Snapshot, now time.Time) {
	switch {
	case snap.HasEvent(EventHitStart):
		a.playRoundRobin(snap, CategoryHit, now)
	case snap.HasEvent(EventSwingStart):
		a.playRoundRobin(snap, CategorySwing, now)
	case snap.HasEvent(EventActivityButtonLongPress):
		a.playRandomEffect(now)
	}

	if a.oneShot && !now.Before(a.oneShotUntil) {
		a.oneShot = false
		a.humming = false
	}

	// The idle hum loops whenever no one-shot effect is in flight.
	if !a.oneShot && !a.humming {
		if entries := a.playlists[CategoryIdle]; len(entries) > 0 {
			if err := a.pf.Play(entries[0].name, true); err != nil {
				slog.Warn("Audio playback failed", "clip", entries[0].name, "error", err)
				return
			}
			a.humming = true
		}
	}
}

// playRoundRobin plays the category's current clip and advances the
// published index, so the position always points at the next clip to
// play.
func (a *AudioCoordinator) playRoundRobin(snap *Snapshot, cat SoundCategory, now time.Time) {
	entries := a.playlists[cat]
	if len(entries) == 0 {
		return
	}
	pos := snap.Playlist[cat]
	if pos.Index >= len(entries) {
		pos.Index = 0
	}
	clip := entries[pos.Index]
	next := (pos.Index + 1) % len(entries)
	snap.Playlist[cat] = PlaylistPos{Index: next, Duration: entries[next].duration}
	a.play(clip, false, now)
}

// playRandomEffect picks a random hit or swing clip. The round-robin
// positions are left untouched.
func (a *AudioCoordinator) playRandomEffect(now time.Time) {
	cats := []SoundCategory{CategoryHit, CategorySwing}
	cat := cats[rand.Intn(len(cats))]
	entries := a.playlists[cat]
	if len(entries) == 0 {
		return
	}
	a.play(entries[rand.Intn(len(entries))], false, now)
}

func (a *AudioCoordinator) play(clip clipEntry, loop bool, now time.Time) {
	if err := a.pf.Play(clip.name, loop); err != nil {
		slog.Warn("Audio playback failed", "clip", clip.name, "error", err)
		return
	}
	a.oneShot = true
	a.oneShotUntil = now.Add(clip.duration)
	a.humming = false
}
