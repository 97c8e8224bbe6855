package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"saberd/animation"
)

// Power-state keys usable in the per-target animation tables. "default"
// is the declared fallback for states with no entry of their own.
var validStateKeys = map[string]bool{
	"booting":      true,
	"sleeping":     true,
	"waking":       true,
	"activating":   true,
	"active":       true,
	"idle":         true,
	"deactivating": true,
	"pressed":      true,
	"default":      true,
}

// Sound categories the audio coordinator knows about.
var validSoundCategories = map[string]bool{
	"activating":   true,
	"deactivating": true,
	"hit":          true,
	"swing":        true,
	"idle":         true,
}

type Config struct {
	Configfile string `yaml:"-"`
	RealHW     bool   `yaml:"-"`

	Saber     SaberConfig      `yaml:"Saber"`
	Animation AnimationConfig  `yaml:"Animation"`
	Sounds    SoundsConfig     `yaml:"Sounds"`
	NightMode NightModeConfig  `yaml:"NightMode"`
	Telemetry TelemetryConfig  `yaml:"Telemetry"`
	Logging   LoggingConfig    `yaml:"Logging"`
	Hardware  HardwareConfig   `yaml:"Hardware"`
}

// SaberConfig carries the numeric thresholds and timing constants of
// the control core. The threshold and timeout fields are hot-reloadable
// through the config watcher; everything else is fixed at startup.
type SaberConfig struct {
	NumPixels      int     `yaml:"NumPixels"`
	HitThreshold   float64 `yaml:"HitThreshold"`
	SwingThreshold float64 `yaml:"SwingThreshold"`

	HitEffectDuration   time.Duration `yaml:"HitEffectDuration"`
	SwingEffectDuration time.Duration `yaml:"SwingEffectDuration"`

	DebounceTime       time.Duration `yaml:"DebounceTime"`
	LongPressTime      time.Duration `yaml:"LongPressTime"`
	DoublePressTimeout time.Duration `yaml:"DoublePressTimeout"`

	AccelReadInterval   time.Duration `yaml:"AccelReadInterval"`
	BatteryReadInterval time.Duration `yaml:"BatteryReadInterval"`

	IdleTimeout         time.Duration `yaml:"IdleTimeout"`
	AutoShutdownTimeout time.Duration `yaml:"AutoShutdownTimeout"`
	WakingDuration      time.Duration `yaml:"WakingDuration"`
	LockSafetyBuffer    time.Duration `yaml:"LockSafetyBuffer"`

	ActiveTickDelay  time.Duration `yaml:"ActiveTickDelay"`
	IdleTickDelay    time.Duration `yaml:"IdleTickDelay"`
	SleepWakeTimeout time.Duration `yaml:"SleepWakeTimeout"`

	StateLogInterval time.Duration `yaml:"StateLogInterval"`
}

// AnimationConfig holds one animation table per LED target, keyed by
// power-state name, plus the idle-cycle list and the motion overlays
// for the main strip.
type AnimationConfig struct {
	Strip          map[string]animation.Descriptor `yaml:"Strip"`
	StatusPixel    map[string]animation.Descriptor `yaml:"StatusPixel"`
	PowerButton    map[string]animation.Descriptor `yaml:"PowerButton"`
	ActivityButton map[string]animation.Descriptor `yaml:"ActivityButton"`

	IdleCycle    []animation.Descriptor `yaml:"IdleCycle"`
	HitOverlay   animation.Descriptor   `yaml:"HitOverlay"`
	SwingOverlay animation.Descriptor   `yaml:"SwingOverlay"`
}

// SoundsConfig maps each sound category to its ordered playlist of
// clip names. Clip names are resolved to files below Dir by the
// platform's audio backend.
type SoundsConfig struct {
	Dir        string              `yaml:"Dir"`
	Categories map[string][]string `yaml:"Categories"`
}

type NightModeConfig struct {
	Enabled   bool    `yaml:"Enabled"`
	Latitude  float64 `yaml:"Latitude"`
	Longitude float64 `yaml:"Longitude"`
	DimFactor float64 `yaml:"DimFactor"`
}

type TelemetryConfig struct {
	Enabled     bool          `yaml:"Enabled"`
	Broker      string        `yaml:"Broker"`
	ClientID    string        `yaml:"ClientID"`
	TopicPrefix string        `yaml:"TopicPrefix"`
	Timeout     time.Duration `yaml:"Timeout"`
	QueueSize   int           `yaml:"QueueSize"`
}

type LoggingConfig struct {
	Level         string `yaml:"Level"`
	Format        string `yaml:"Format"`
	File          string `yaml:"File"`
	BufferStartup bool   `yaml:"BufferStartup"`
}

// HardwareConfig is only consulted by the Raspberry Pi platform.
type HardwareConfig struct {
	PowerButtonGPIO    string `yaml:"PowerButtonGPIO"`
	ActivitySPIChannel int    `yaml:"ActivitySPIChannel"`
	BatterySPIChannel  int    `yaml:"BatterySPIChannel"`
	ActivityThreshold  float64 `yaml:"ActivityThreshold"`
	SPIDev             string `yaml:"SPIDev"`
	ADCSPIDev          string `yaml:"ADCSPIDev"`
	SPIFrequency       int    `yaml:"SPIFrequency"`
	APA102Brightness   int    `yaml:"APA102Brightness"`
	BladeReversed      bool   `yaml:"BladeReversed"`
	I2CDev             string `yaml:"I2CDev"`
	AccelAddr          uint16 `yaml:"AccelAddr"`
	AudioDevice        string `yaml:"AudioDevice"`
	StateFile          string `yaml:"StateFile"`
}

// Load reads and validates the configuration file. The configuration
// is immutable afterwards except for the tunables subset handled by
// the watcher.
func Load(cfile string, realhw bool) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := &Config{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile
	conf.RealHW = realhw

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate rejects malformed configurations at load time: unknown
// animation kinds, unknown state keys, unknown sound categories, and
// nonsensical numeric values.
func (c *Config) Validate() error {
	if c.Saber.NumPixels <= 0 {
		return fmt.Errorf("Saber.NumPixels must be positive")
	}
	if c.Saber.HitThreshold <= c.Saber.SwingThreshold {
		return fmt.Errorf("Saber.HitThreshold (%v) must be above Saber.SwingThreshold (%v)",
			c.Saber.HitThreshold, c.Saber.SwingThreshold)
	}

	tables := map[string]map[string]animation.Descriptor{
		"Strip":          c.Animation.Strip,
		"StatusPixel":    c.Animation.StatusPixel,
		"PowerButton":    c.Animation.PowerButton,
		"ActivityButton": c.Animation.ActivityButton,
	}
	for name, table := range tables {
		keys := maps.Keys(table)
		sort.Strings(keys)
		for _, key := range keys {
			if !validStateKeys[key] {
				return fmt.Errorf("Animation.%s: unknown state key %q", name, key)
			}
			if err := table[key].Validate(); err != nil {
				return fmt.Errorf("Animation.%s[%s]: %w", name, key, err)
			}
		}
	}
	for i, desc := range c.Animation.IdleCycle {
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("Animation.IdleCycle[%d]: %w", i, err)
		}
	}
	if len(c.Animation.IdleCycle) == 0 {
		return fmt.Errorf("Animation.IdleCycle must have at least one entry")
	}
	if err := c.Animation.HitOverlay.Validate(); err != nil {
		return fmt.Errorf("Animation.HitOverlay: %w", err)
	}
	if err := c.Animation.SwingOverlay.Validate(); err != nil {
		return fmt.Errorf("Animation.SwingOverlay: %w", err)
	}

	cats := maps.Keys(c.Sounds.Categories)
	sort.Strings(cats)
	for _, cat := range cats {
		if !validSoundCategories[cat] {
			return fmt.Errorf("Sounds.Categories: unknown category %q", cat)
		}
		if len(c.Sounds.Categories[cat]) == 0 {
			return fmt.Errorf("Sounds.Categories[%s]: empty playlist", cat)
		}
	}

	if c.NightMode.Enabled {
		if c.NightMode.DimFactor <= 0 || c.NightMode.DimFactor > 1 {
			return fmt.Errorf("NightMode.DimFactor must be in (0, 1]")
		}
	}
	return nil
}

// Tunables is the subset of the configuration that may change while
// the saber runs. It is applied atomically between ticks.
type Tunables struct {
	HitThreshold        float64
	SwingThreshold      float64
	IdleTimeout         time.Duration
	AutoShutdownTimeout time.Duration
}

func (c *Config) Tunables() Tunables {
	return Tunables{
		HitThreshold:        c.Saber.HitThreshold,
		SwingThreshold:      c.Saber.SwingThreshold,
		IdleTimeout:         c.Saber.IdleTimeout,
		AutoShutdownTimeout: c.Saber.AutoShutdownTimeout,
	}
}
