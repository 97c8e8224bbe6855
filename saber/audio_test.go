package saber

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudio(t *testing.T, clock *fakeClock, pf *fakePlatform, psm *PowerStateMachine) *AudioCoordinator {
	t.Helper()
	pf.durations["ignite1.wav"] = 1200 * time.Millisecond
	pf.durations["ignite2.wav"] = 900 * time.Millisecond
	pf.durations["retract1.wav"] = 800 * time.Millisecond
	pf.durations["clash1.wav"] = 300 * time.Millisecond
	pf.durations["clash2.wav"] = 350 * time.Millisecond
	pf.durations["clash3.wav"] = 400 * time.Millisecond
	pf.durations["swing1.wav"] = 500 * time.Millisecond
	pf.durations["swing2.wav"] = 550 * time.Millisecond
	pf.durations["hum.wav"] = 2 * time.Second
	a := NewAudioCoordinator(testConfig(), pf, psm)
	a.now = clock.now
	return a
}

func TestSeedSnapshotPublishesDurations(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	a := newTestAudio(t, clock, pf, psm)

	snap := NewSnapshot()
	a.SeedSnapshot(snap)
	assert.Equal(t, PlaylistPos{Index: 0, Duration: 1200 * time.Millisecond},
		snap.Playlist[CategoryActivating])
	assert.Equal(t, PlaylistPos{Index: 0, Duration: 800 * time.Millisecond},
		snap.Playlist[CategoryDeactivating])
	assert.Equal(t, PlaylistPos{Index: 0, Duration: 300 * time.Millisecond},
		snap.Playlist[CategoryHit])
}

func TestUnmeasurableClipGetsFallbackDuration(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	// No durations registered at all: every measurement fails.
	a := NewAudioCoordinator(testConfig(), pf, psm)
	a.now = clock.now

	snap := NewSnapshot()
	a.SeedSnapshot(snap)
	assert.Equal(t, fallbackClipTime, snap.Playlist[CategoryActivating].Duration)
}

func TestActivationSoundLocksForMeasuredDuration(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActivating
	a := newTestAudio(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerWaking
	snap := NewSnapshot()
	snap.PowerState = PowerActivating
	a.SeedSnapshot(snap)
	a.ProcessTick(old, snap)

	play, ok := pf.lastPlay()
	require.True(t, ok, "entering ACTIVATING should start the ignition sound")
	assert.Equal(t, "ignite1.wav", play.clip)
	assert.False(t, play.loop)
	require.True(t, psm.HasLock(LockAudioActivation))
	assert.True(t, psm.IsBlocking(), "the lock blocks until the clip has played out")

	// Before the measured duration the lock stays blocked.
	clock.advance(1100 * time.Millisecond)
	held := snap
	snap = held.Clone()
	snap.PowerState = PowerActivating
	a.ProcessTick(held, snap)
	assert.True(t, psm.IsBlocking())

	// Once the clip duration elapses the coordinator releases.
	clock.advance(200 * time.Millisecond)
	next := snap.Clone()
	next.PowerState = PowerActivating
	a.ProcessTick(snap, next)
	assert.False(t, psm.IsBlocking(), "lock should release when the clip finishes")
	assert.True(t, psm.HasLock(LockAudioActivation), "released, not yet removed")
}

func TestLeavingTransitDropsAudioLocks(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActivating
	a := newTestAudio(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerWaking
	snap := NewSnapshot()
	snap.PowerState = PowerActivating
	a.SeedSnapshot(snap)
	a.ProcessTick(old, snap)
	require.True(t, psm.HasLock(LockAudioActivation))

	psm.current = PowerActive
	next := snap.Clone()
	next.PowerState = PowerActive
	a.ProcessTick(snap, next)
	assert.False(t, psm.HasLock(LockAudioActivation),
		"leaving the transit state removes the lock whether or not it was released")
}

func TestHitSoundsRoundRobin(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActive
	a := newTestAudio(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerActive
	snap.Mode = ModeIdle
	a.SeedSnapshot(snap)

	// Five hits against a playlist of three cycle 1,2,3,1,2.
	want := []string{"clash1.wav", "clash2.wav", "clash3.wav", "clash1.wav", "clash2.wav"}
	for i, clip := range want {
		clock.advance(time.Second)
		next := snap.Clone()
		next.AddEvent(EventHitStart)
		a.ProcessTick(snap, next)
		play, ok := pf.lastPlay()
		require.True(t, ok)
		assert.Equal(t, clip, play.clip, fmt.Sprintf("hit %d should play the next clip in the rotation", i+1))
		snap = next
	}
	// The published position always points at the clip that plays next.
	assert.Equal(t, 2, snap.Playlist[CategoryHit].Index)
	assert.Equal(t, 400*time.Millisecond, snap.Playlist[CategoryHit].Duration)
}

func TestHumResumesAfterOneShot(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActive
	a := newTestAudio(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerActive
	snap.Mode = ModeIdle
	a.SeedSnapshot(snap)

	// First tick with nothing in flight starts the hum loop.
	next := snap.Clone()
	a.ProcessTick(snap, next)
	play, ok := pf.lastPlay()
	require.True(t, ok)
	assert.Equal(t, "hum.wav", play.clip)
	assert.True(t, play.loop, "the idle hum loops")
	snap = next

	// A swing effect supersedes the hum.
	clock.advance(time.Second)
	next = snap.Clone()
	next.AddEvent(EventSwingStart)
	a.ProcessTick(snap, next)
	play, _ = pf.lastPlay()
	assert.Equal(t, "swing1.wav", play.clip)
	snap = next

	// While the effect plays the hum is not restarted.
	clock.advance(100 * time.Millisecond)
	plays := len(pf.plays)
	next = snap.Clone()
	a.ProcessTick(snap, next)
	assert.Equal(t, plays, len(pf.plays), "no new playback while the one-shot runs")
	snap = next

	// After the effect's measured duration the hum comes back.
	clock.advance(500 * time.Millisecond)
	next = snap.Clone()
	a.ProcessTick(snap, next)
	play, _ = pf.lastPlay()
	assert.Equal(t, "hum.wav", play.clip)
	assert.True(t, play.loop)
}

func TestSleepSilencesEverything(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerSleeping
	a := newTestAudio(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerDeactivating
	snap := NewSnapshot()
	snap.PowerState = PowerSleeping
	a.ProcessTick(old, snap)
	assert.Equal(t, 1, pf.stops, "entering SLEEPING stops playback")

	// Staying asleep does not keep calling stop.
	next := snap.Clone()
	a.ProcessTick(snap, next)
	assert.Equal(t, 1, pf.stops)
}
