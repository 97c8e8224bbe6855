package platform

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"saberd/animation"
	"saberd/config"
)

// LIS3DH registers.
const (
	lisRegWhoAmI   = 0x0F
	lisRegCtrl1    = 0x20
	lisRegCtrl4    = 0x23
	lisRegOutXL    = 0x28
	lisWhoAmI      = 0x33
	lisCtrl1Value  = 0x57 // 100 Hz, XYZ enabled
	lisCtrl4Value  = 0x10 // +/- 4 g
	lisAutoInc     = 0x80
	lisScale       = 4.0 * 9.81 / 32768.0
	stateFileSlots = 8
)

// RaspberryPiPlatform drives the real saber hardware: an APA102 pixel
// chain over SPI, an MCP3008 ADC for the analog activity button and
// the battery divider, a LIS3DH accelerometer over I2C, a GPIO power
// button, and portaudio playback.
type RaspberryPiPlatform struct {
	conf  *config.Config
	chain *chainLayout

	powerPin gpio.PinIO

	spiPort spi.PortCloser
	spiConn spi.Conn
	spiMu   sync.Mutex

	adcPort spi.PortCloser
	adcConn spi.Conn
	adcMu   sync.Mutex

	i2cBus   i2c.BusCloser
	accelDev *i2c.Dev

	audio *paPlayer

	frame []byte

	storeMu sync.Mutex
}

func NewRaspberryPiPlatform(conf *config.Config) (*RaspberryPiPlatform, error) {
	chain, err := newChainLayout(conf.Saber.NumPixels, conf.Hardware.BladeReversed)
	if err != nil {
		return nil, err
	}
	return &RaspberryPiPlatform{
		conf:  conf,
		chain: chain,
	}, nil
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO, SPI and I2C...")
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to init periph: %w", err)
	}

	s.powerPin = gpioreg.ByName(s.conf.Hardware.PowerButtonGPIO)
	if s.powerPin == nil {
		return fmt.Errorf("failed to find pin %s", s.conf.Hardware.PowerButtonGPIO)
	}
	if err := s.powerPin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("failed to configure power button pin: %w", err)
	}

	var err error
	s.spiPort, err = spireg.Open(s.conf.Hardware.SPIDev)
	if err != nil {
		return fmt.Errorf("failed to open led spi: %w", err)
	}
	s.spiConn, err = s.spiPort.Connect(
		physic.Frequency(s.conf.Hardware.SPIFrequency)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("failed to connect to led spi device: %w", err)
	}

	s.adcPort, err = spireg.Open(s.conf.Hardware.ADCSPIDev)
	if err != nil {
		return fmt.Errorf("failed to open adc spi: %w", err)
	}
	s.adcConn, err = s.adcPort.Connect(1350*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("failed to connect to adc: %w", err)
	}

	if err := s.initAccel(); err != nil {
		// The saber works without motion effects; the sensor
		// coordinator probes for this at startup.
		slog.Warn("Accelerometer init failed", "error", err)
	}

	s.audio, err = newPAPlayer(s.conf.Sounds.Dir)
	if err != nil {
		return err
	}

	s.frame = make([]byte, apa102FrameSize(len(s.chain.all())))
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	if s.audio != nil {
		s.audio.close()
		s.audio = nil
	}
	if s.spiPort != nil {
		if err := s.spiPort.Close(); err != nil {
			slog.Error("Error closing led spi port", "error", err)
		}
		s.spiPort = nil
	}
	if s.adcPort != nil {
		if err := s.adcPort.Close(); err != nil {
			slog.Error("Error closing adc spi port", "error", err)
		}
		s.adcPort = nil
	}
	if s.i2cBus != nil {
		if err := s.i2cBus.Close(); err != nil {
			slog.Error("Error closing i2c bus", "error", err)
		}
		s.i2cBus = nil
	}
	if s.powerPin != nil {
		s.powerPin.Halt()
		s.powerPin = nil
	}
}

func (s *RaspberryPiPlatform) initAccel() error {
	bus, err := i2creg.Open(s.conf.Hardware.I2CDev)
	if err != nil {
		return fmt.Errorf("failed to open i2c: %w", err)
	}
	dev := &i2c.Dev{Bus: bus, Addr: s.conf.Hardware.AccelAddr}

	id := make([]byte, 1)
	if err := dev.Tx([]byte{lisRegWhoAmI}, id); err != nil {
		bus.Close()
		return fmt.Errorf("accelerometer not responding: %w", err)
	}
	if id[0] != lisWhoAmI {
		bus.Close()
		return fmt.Errorf("unexpected accelerometer id 0x%02x", id[0])
	}
	if err := dev.Tx([]byte{lisRegCtrl1, lisCtrl1Value}, nil); err != nil {
		bus.Close()
		return fmt.Errorf("failed to configure accelerometer: %w", err)
	}
	if err := dev.Tx([]byte{lisRegCtrl4, lisCtrl4Value}, nil); err != nil {
		bus.Close()
		return fmt.Errorf("failed to configure accelerometer range: %w", err)
	}

	s.i2cBus = bus
	s.accelDev = dev
	return nil
}

// --- MotionSensor ---

func (s *RaspberryPiPlatform) ReadMotion() (float64, float64, float64, error) {
	if s.accelDev == nil {
		return 0, 0, 0, ErrUnavailable
	}
	raw := make([]byte, 6)
	if err := s.accelDev.Tx([]byte{lisRegOutXL | lisAutoInc}, raw); err != nil {
		return 0, 0, 0, fmt.Errorf("accelerometer read failed: %w", err)
	}
	x := float64(int16(binary.LittleEndian.Uint16(raw[0:2]))) * lisScale
	y := float64(int16(binary.LittleEndian.Uint16(raw[2:4]))) * lisScale
	z := float64(int16(binary.LittleEndian.Uint16(raw[4:6]))) * lisScale
	return x, y, z, nil
}

// --- Buttons ---

func (s *RaspberryPiPlatform) ReadButtonRaw(id ButtonID) (bool, error) {
	switch id {
	case ButtonPower:
		// Active low against the pull-up.
		return s.powerPin.Read() == gpio.Low, nil
	case ButtonActivity:
		ratio, err := s.readADC(byte(s.conf.Hardware.ActivitySPIChannel))
		if err != nil {
			return false, err
		}
		return ratio > s.conf.Hardware.ActivityThreshold, nil
	}
	return false, fmt.Errorf("unknown button %v", id)
}

// --- Battery ---

func (s *RaspberryPiPlatform) ReadBatteryRaw() (float64, error) {
	return s.readADC(byte(s.conf.Hardware.BatterySPIChannel))
}

// readADC samples one MCP3008 channel and returns the ratio in [0,1].
func (s *RaspberryPiPlatform) readADC(channel byte) (float64, error) {
	s.adcMu.Lock()
	defer s.adcMu.Unlock()

	write := []byte{1, (8 + channel) << 4, 0}
	read := make([]byte, len(write))
	if err := s.adcConn.Tx(write, read); err != nil {
		return 0, fmt.Errorf("adc transaction failed: %w", err)
	}
	value := ((int(read[1]) & 3) << 8) + int(read[2])
	return float64(value) / 1023.0, nil
}

// --- LEDOutput ---

func (s *RaspberryPiPlatform) PixelCount(t Target) int {
	return s.chain.count(t)
}

func (s *RaspberryPiPlatform) SetPixel(t Target, idx int, c animation.Color) {
	s.chain.set(t, idx, c)
}

func (s *RaspberryPiPlatform) Show() error {
	s.spiMu.Lock()
	defer s.spiMu.Unlock()

	pixels := s.chain.all()
	buildAPA102Frame(s.frame, pixels, byte(s.conf.Hardware.APA102Brightness))
	read := make([]byte, len(s.frame))
	if err := s.spiConn.Tx(s.frame, read); err != nil {
		return fmt.Errorf("spi transaction failed: %w", err)
	}
	return nil
}

func apa102FrameSize(pixels int) int {
	frameEnd := (pixels / 16) + 1
	return 4 + 4*pixels + frameEnd
}

// buildAPA102Frame encodes the pixel chain into the wire format:
// 4 zero start bytes, then per pixel a brightness byte followed by
// blue, green, red, then an all-ones end frame.
func buildAPA102Frame(frame []byte, pixels []animation.Color, brightness byte) {
	copy(frame[0:4], []byte{0x00, 0x00, 0x00, 0x00})
	bright := brightness | 0xE0

	offset := 4
	for _, p := range pixels {
		frame[offset] = bright
		frame[offset+1] = p.B
		frame[offset+2] = p.G
		frame[offset+3] = p.R
		offset += 4
	}
	for i := offset; i < len(frame); i++ {
		frame[i] = 0xFF
	}
}

// --- AudioOutput ---

func (s *RaspberryPiPlatform) Play(clip string, loop bool) error {
	return s.audio.Play(clip, loop)
}

func (s *RaspberryPiPlatform) StopAudio() {
	if s.audio != nil {
		s.audio.StopAudio()
	}
}

func (s *RaspberryPiPlatform) IsPlaying() bool {
	return s.audio != nil && s.audio.IsPlaying()
}

func (s *RaspberryPiPlatform) ClipDuration(clip string) (time.Duration, error) {
	return s.audio.ClipDuration(clip)
}

// --- Persistence ---

func (s *RaspberryPiPlatform) SaveByte(slot int, b byte) error {
	if slot < 0 || slot >= stateFileSlots {
		return fmt.Errorf("slot %d out of range", slot)
	}
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	data := make([]byte, stateFileSlots)
	if existing, err := os.ReadFile(s.conf.Hardware.StateFile); err == nil {
		copy(data, existing)
	}
	data[slot] = b
	return os.WriteFile(s.conf.Hardware.StateFile, data, 0o644)
}

func (s *RaspberryPiPlatform) LoadByte(slot int) (byte, error) {
	if slot < 0 || slot >= stateFileSlots {
		return 0, fmt.Errorf("slot %d out of range", slot)
	}
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	data, err := os.ReadFile(s.conf.Hardware.StateFile)
	if err != nil {
		return 0, err
	}
	if slot >= len(data) {
		return 0, fmt.Errorf("slot %d never written", slot)
	}
	return data[slot], nil
}

// --- Sleeper ---

// WaitForWake blocks on a power button edge, letting the process idle
// in the kernel instead of polling while the saber sleeps.
func (s *RaspberryPiPlatform) WaitForWake(timeout time.Duration) bool {
	return s.powerPin.WaitForEdge(timeout)
}
