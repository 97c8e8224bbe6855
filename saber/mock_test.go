package saber

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"saberd/animation"
	"saberd/config"
	"saberd/platform"
)

// fakeClock drives all time-dependent logic in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type playCall struct {
	clip string
	loop bool
}

// fakePlatform is an in-memory stand-in for the hardware.
type fakePlatform struct {
	mu sync.Mutex

	motionX, motionY, motionZ float64
	motionErr                 error

	buttonDown map[platform.ButtonID]bool
	buttonErr  error

	batteryRatio float64
	batteryErr   error

	pixels    map[platform.Target][]animation.Color
	showCount int

	plays     []playCall
	stops     int
	durations map[string]time.Duration

	store map[int]byte

	wakeCalls int
}

func newFakePlatform(numPixels int) *fakePlatform {
	return &fakePlatform{
		buttonDown: make(map[platform.ButtonID]bool),
		pixels: map[platform.Target][]animation.Color{
			platform.TargetStrip:          make([]animation.Color, numPixels),
			platform.TargetStatusPixel:    make([]animation.Color, 1),
			platform.TargetPowerButton:    make([]animation.Color, 1),
			platform.TargetActivityButton: make([]animation.Color, 1),
		},
		durations:    make(map[string]time.Duration),
		store:        make(map[int]byte),
		batteryRatio: 0.6,
	}
}

func (f *fakePlatform) Start() error { return nil }
func (f *fakePlatform) Stop()        {}

func (f *fakePlatform) ReadMotion() (float64, float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.motionX, f.motionY, f.motionZ, f.motionErr
}

func (f *fakePlatform) setMotionMagnitude(mag float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Squared X/Z magnitude, reported on the X axis.
	f.motionX, f.motionY, f.motionZ = math.Sqrt(mag), 0, 0
}

func (f *fakePlatform) ReadButtonRaw(id platform.ButtonID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buttonErr != nil {
		return false, f.buttonErr
	}
	return f.buttonDown[id], nil
}

func (f *fakePlatform) setButton(id platform.ButtonID, down bool) {
	f.mu.Lock()
	f.buttonDown[id] = down
	f.mu.Unlock()
}

func (f *fakePlatform) ReadBatteryRaw() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batteryRatio, f.batteryErr
}

func (f *fakePlatform) PixelCount(t platform.Target) int {
	return len(f.pixels[t])
}

func (f *fakePlatform) SetPixel(t platform.Target, idx int, c animation.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if buf, ok := f.pixels[t]; ok && idx >= 0 && idx < len(buf) {
		buf[idx] = c
	}
}

func (f *fakePlatform) Show() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showCount++
	return nil
}

func (f *fakePlatform) Play(clip string, loop bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, playCall{clip: clip, loop: loop})
	return nil
}

func (f *fakePlatform) StopAudio() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakePlatform) IsPlaying() bool { return false }

func (f *fakePlatform) ClipDuration(clip string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[clip]; ok {
		return d, nil
	}
	return 0, errors.New("no such clip")
}

func (f *fakePlatform) SaveByte(slot int, b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[slot] = b
	return nil
}

func (f *fakePlatform) LoadByte(slot int) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.store[slot]
	if !ok {
		return 0, fmt.Errorf("slot %d never written", slot)
	}
	return b, nil
}

func (f *fakePlatform) WaitForWake(timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakeCalls++
	return false
}

func (f *fakePlatform) lastPlay() (playCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.plays) == 0 {
		return playCall{}, false
	}
	return f.plays[len(f.plays)-1], true
}

// testConfig returns a small but complete configuration for tests.
func testConfig() *config.Config {
	conf := &config.Config{}
	conf.Saber = config.SaberConfig{
		NumPixels:           10,
		HitThreshold:        350,
		SwingThreshold:      125,
		HitEffectDuration:   400 * time.Millisecond,
		SwingEffectDuration: 600 * time.Millisecond,
		DebounceTime:        20 * time.Millisecond,
		LongPressTime:       time.Second,
		DoublePressTimeout:  500 * time.Millisecond,
		AccelReadInterval:   10 * time.Millisecond,
		BatteryReadInterval: 30 * time.Second,
		IdleTimeout:         2 * time.Minute,
		AutoShutdownTimeout: 10 * time.Minute,
		WakingDuration:      300 * time.Millisecond,
		LockSafetyBuffer:    500 * time.Millisecond,
		ActiveTickDelay:     10 * time.Millisecond,
		IdleTickDelay:       50 * time.Millisecond,
		SleepWakeTimeout:    5 * time.Second,
		StateLogInterval:    time.Minute,
	}
	conf.Animation = config.AnimationConfig{
		Strip: map[string]animation.Descriptor{
			"default": {Kind: animation.KindSolid},
		},
		StatusPixel: map[string]animation.Descriptor{
			"default": {Kind: animation.KindSolid, RGB: [3]byte{8, 8, 8}},
		},
		PowerButton: map[string]animation.Descriptor{
			"default": {Kind: animation.KindSolid, RGB: [3]byte{32, 16, 0}},
			"pressed": {Kind: animation.KindSolid, RGB: [3]byte{255, 255, 255}},
		},
		ActivityButton: map[string]animation.Descriptor{
			"default": {Kind: animation.KindSolid},
		},
		IdleCycle: []animation.Descriptor{
			{Kind: animation.KindSolid, RGB: [3]byte{0, 64, 255}},
			{Kind: animation.KindSolid, RGB: [3]byte{0, 255, 32}},
			{Kind: animation.KindSolid, RGB: [3]byte{255, 0, 0}},
		},
		HitOverlay:   animation.Descriptor{Kind: animation.KindSolid, RGB: [3]byte{255, 255, 255}},
		SwingOverlay: animation.Descriptor{Kind: animation.KindSolid, RGB: [3]byte{180, 180, 255}},
	}
	conf.Sounds = config.SoundsConfig{
		Dir: "sounds",
		Categories: map[string][]string{
			"activating":   {"ignite1.wav", "ignite2.wav"},
			"deactivating": {"retract1.wav"},
			"hit":          {"clash1.wav", "clash2.wav", "clash3.wav"},
			"swing":        {"swing1.wav", "swing2.wav"},
			"idle":         {"hum.wav"},
		},
	}
	return conf
}
