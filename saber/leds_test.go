package saber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saberd/animation"
	"saberd/platform"
)

func newTestLEDs(t *testing.T, clock *fakeClock, pf *fakePlatform, psm *PowerStateMachine) *LEDCoordinator {
	t.Helper()
	c, err := NewLEDCoordinator(testConfig(), pf, psm)
	require.NoError(t, err)
	c.now = clock.now
	return c
}

func litPixels(pf *fakePlatform) int {
	n := 0
	for _, px := range pf.pixels[platform.TargetStrip] {
		if !px.IsOff() {
			n++
		}
	}
	return n
}

func TestActivationWaveLocksAndReveals(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActivating
	c := newTestLEDs(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerWaking
	snap := NewSnapshot()
	snap.PowerState = PowerActivating
	snap.Playlist[CategoryActivating] = PlaylistPos{Index: 0, Duration: time.Second}

	c.ProcessTick(old, snap)
	require.True(t, psm.HasLock(LockLEDActivation), "entering ACTIVATING registers the reveal lock")
	assert.True(t, psm.IsBlocking())

	// Halfway through the sound the reveal is partial and still locked.
	clock.advance(500 * time.Millisecond)
	held := snap.Clone()
	held.PowerState = PowerActivating
	c.ProcessTick(snap, held)
	lit := litPixels(pf)
	assert.Greater(t, lit, 0, "the reveal should have lit some pixels by half time")
	assert.Less(t, lit, 10, "the reveal must not complete before the sound does")
	assert.True(t, psm.IsBlocking())

	// At the full duration every pixel is lit and the lock releases.
	clock.advance(500 * time.Millisecond)
	next := held.Clone()
	next.PowerState = PowerActivating
	c.ProcessTick(held, next)
	assert.Equal(t, 10, litPixels(pf), "the reveal completes exactly with the sound")
	assert.False(t, psm.IsBlocking(), "finished reveal releases the lock")
}

func TestActivationRevealsSelectedBladeColor(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActivating
	c := newTestLEDs(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerWaking
	snap := NewSnapshot()
	snap.PowerState = PowerActivating
	snap.AnimationIndex = 1
	snap.Playlist[CategoryActivating] = PlaylistPos{Index: 0, Duration: 100 * time.Millisecond}
	c.ProcessTick(old, snap)

	clock.advance(200 * time.Millisecond)
	next := snap.Clone()
	next.PowerState = PowerActivating
	c.ProcessTick(snap, next)
	want := animation.Color{R: 0, G: 255, B: 32}
	assert.Equal(t, want, pf.pixels[platform.TargetStrip][0],
		"the reveal uses the selected idle animation's color")
}

func TestDeactivationWaveDarkensFromTip(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerDeactivating
	c := newTestLEDs(t, clock, pf, psm)

	// Start with a fully lit blade.
	for i := range c.bufs[platform.TargetStrip] {
		c.bufs[platform.TargetStrip][i] = animation.Color{R: 0, G: 64, B: 255}
	}

	old := NewSnapshot()
	old.PowerState = PowerActive
	snap := NewSnapshot()
	snap.PowerState = PowerDeactivating
	snap.Playlist[CategoryDeactivating] = PlaylistPos{Index: 0, Duration: time.Second}
	c.ProcessTick(old, snap)
	require.True(t, psm.HasLock(LockLEDDeactivation))

	clock.advance(500 * time.Millisecond)
	held := snap.Clone()
	held.PowerState = PowerDeactivating
	c.ProcessTick(snap, held)
	strip := c.bufs[platform.TargetStrip]
	assert.True(t, strip[len(strip)-1].IsOff(), "the reverse wave darkens the tip first")
	assert.False(t, strip[0].IsOff(), "the base darkens last")

	clock.advance(500 * time.Millisecond)
	next := held.Clone()
	next.PowerState = PowerDeactivating
	c.ProcessTick(held, next)
	for i, px := range c.bufs[platform.TargetStrip] {
		assert.True(t, px.IsOff(), "pixel %d should be dark when the retract finishes", i)
	}
	assert.False(t, psm.IsBlocking())
}

func TestLeavingTransitDropsLEDLock(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActivating
	c := newTestLEDs(t, clock, pf, psm)

	old := NewSnapshot()
	old.PowerState = PowerWaking
	snap := NewSnapshot()
	snap.PowerState = PowerActivating
	snap.Playlist[CategoryActivating] = PlaylistPos{Index: 0, Duration: time.Second}
	c.ProcessTick(old, snap)
	require.True(t, psm.HasLock(LockLEDActivation))

	psm.current = PowerActive
	next := snap.Clone()
	next.PowerState = PowerActive
	next.Mode = ModeIdle
	c.ProcessTick(snap, next)
	assert.False(t, psm.HasLock(LockLEDActivation))
	assert.Nil(t, c.wave, "the reveal is dropped with its lock")
}

func TestAnimationCyclePersistsIndex(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActive
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerActive
	snap.Mode = ModeIdle

	next := snap.Clone()
	next.AddEvent(EventActivityButtonShortPress)
	c.ProcessTick(snap, next)
	assert.Equal(t, 1, next.AnimationIndex)
	assert.True(t, next.HasEvent(EventAnimationCycle))
	b, err := pf.LoadByte(StoreSlotAnimation)
	require.NoError(t, err)
	assert.Equal(t, byte(1), b, "the selected index is persisted")

	// The cycle wraps around.
	snap = next
	for i := 0; i < 2; i++ {
		next = snap.Clone()
		next.AddEvent(EventActivityButtonShortPress)
		c.ProcessTick(snap, next)
		snap = next
	}
	assert.Equal(t, 0, snap.AnimationIndex)
}

func TestAnimationCycleOnlyWhilePowered(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerSleeping
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerSleeping
	next := snap.Clone()
	next.AddEvent(EventActivityButtonShortPress)
	c.ProcessTick(snap, next)
	assert.Equal(t, 0, next.AnimationIndex)
	assert.False(t, next.HasEvent(EventAnimationCycle))
}

func TestSeedSnapshotRestoresAnimationIndex(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	require.NoError(t, pf.SaveByte(StoreSlotAnimation, 2))
	psm := newTestPSM(t, clock)
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	c.SeedSnapshot(snap)
	assert.Equal(t, 2, snap.AnimationIndex)

	// An out-of-range persisted index is ignored.
	require.NoError(t, pf.SaveByte(StoreSlotAnimation, 9))
	snap = NewSnapshot()
	c.SeedSnapshot(snap)
	assert.Equal(t, 0, snap.AnimationIndex)
}

func TestHitOverlayTemporarilyReplacesIdle(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerActive
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerActive
	snap.Mode = ModeIdle

	next := snap.Clone()
	next.AddEvent(EventHitStart)
	next.Mode = ModeHit
	c.ProcessTick(snap, next)
	want := animation.Color{R: 255, G: 255, B: 255}
	assert.Equal(t, want, pf.pixels[platform.TargetStrip][5], "the hit overlay paints the strip")
	snap = next

	// After the effect duration the idle animation is back.
	clock.advance(testConfig().Saber.HitEffectDuration + time.Millisecond)
	next = snap.Clone()
	next.Mode = ModeIdle
	c.ProcessTick(snap, next)
	assert.Equal(t, animation.Color{R: 0, G: 64, B: 255}, pf.pixels[platform.TargetStrip][5],
		"the idle animation returns after the overlay expires")
}

func TestIdleStateDimsBlade(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerIdle
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerIdle
	snap.Mode = ModeIdle
	next := snap.Clone()
	c.ProcessTick(snap, next)

	full := animation.Color{R: 0, G: 64, B: 255}
	want := full.Scale(idleDimFactor)
	assert.Equal(t, want, pf.pixels[platform.TargetStrip][0], "IDLE shows the blade dimmed")
}

func TestPressedIndicatorOverride(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerSleeping
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerSleeping
	next := snap.Clone()
	next.PowerButtonPressed = true
	c.ProcessTick(snap, next)
	assert.Equal(t, animation.Color{R: 255, G: 255, B: 255},
		pf.pixels[platform.TargetPowerButton][0],
		"a held button shows the pressed animation")
}

func TestShowOnlyFlushesOnChange(t *testing.T) {
	clock := newFakeClock()
	pf := newFakePlatform(10)
	psm := newTestPSM(t, clock)
	psm.current = PowerSleeping
	c := newTestLEDs(t, clock, pf, psm)

	snap := NewSnapshot()
	snap.PowerState = PowerSleeping
	next := snap.Clone()
	c.ProcessTick(snap, next)
	flushes := pf.showCount
	assert.Greater(t, flushes, 0, "the first frame is flushed")

	// A static frame is not re-flushed.
	snap = next
	next = snap.Clone()
	c.ProcessTick(snap, next)
	assert.Equal(t, flushes, pf.showCount, "an unchanged frame must not hit the hardware")
}
