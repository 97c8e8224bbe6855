package platform

import (
	"errors"
	"time"

	"saberd/animation"
)

// ErrUnavailable is returned by capability methods a platform cannot
// serve (the TUI simulator has no battery ADC, for example). Callers
// treat it as "feature absent", not as a fault.
var ErrUnavailable = errors.New("capability not available on this platform")

// Target names an LED surface the platform can drive.
type Target string

const (
	TargetStrip          Target = "strip"
	TargetStatusPixel    Target = "status_pixel"
	TargetPowerButton    Target = "power_button"
	TargetActivityButton Target = "activity_button"
)

// Targets lists all LED surfaces in render order.
var Targets = []Target{TargetStrip, TargetStatusPixel, TargetPowerButton, TargetActivityButton}

// ButtonID names a physical button.
type ButtonID int

const (
	ButtonPower ButtonID = iota
	ButtonActivity
)

func (b ButtonID) String() string {
	switch b {
	case ButtonPower:
		return "power"
	case ButtonActivity:
		return "activity"
	}
	return "unknown"
}

// MotionSensor reads raw acceleration in units of g.
type MotionSensor interface {
	ReadMotion() (x, y, z float64, err error)
}

// Buttons reads the raw, undebounced level of a button. True means
// pressed.
type Buttons interface {
	ReadButtonRaw(id ButtonID) (bool, error)
}

// Battery reads the raw battery ADC ratio in [0,1]. Voltage scaling
// happens in the sensor coordinator.
type Battery interface {
	ReadBatteryRaw() (float64, error)
}

// LEDOutput drives the pixel surfaces. SetPixel writes into an
// internal buffer; Show pushes all buffered surfaces to the device in
// one operation.
type LEDOutput interface {
	PixelCount(t Target) int
	SetPixel(t Target, idx int, c animation.Color)
	Show() error
}

// AudioOutput plays WAV clips by file path. Play interrupts any clip
// already playing; with loop set the clip repeats until Stop or the
// next Play. ClipDuration reports the decoded length of a clip
// without playing it.
type AudioOutput interface {
	Play(path string, loop bool) error
	StopAudio()
	IsPlaying() bool
	ClipDuration(path string) (time.Duration, error)
}

// Persistence stores single bytes in numbered slots that survive a
// restart.
type Persistence interface {
	SaveByte(slot int, b byte) error
	LoadByte(slot int) (byte, error)
}

// Sleeper parks the process while the saber sleeps. WaitForWake
// returns when a button edge arrives or the timeout elapses, and
// reports which one it was.
type Sleeper interface {
	WaitForWake(timeout time.Duration) (woken bool)
}

// Platform bundles every capability behind one constructor-selected
// implementation: real hardware or the terminal simulator.
type Platform interface {
	MotionSensor
	Buttons
	Battery
	LEDOutput
	AudioOutput
	Persistence
	Sleeper

	// Start claims the underlying devices (or launches the TUI).
	Start() error

	// Stop releases all platform resources.
	Stop()
}
