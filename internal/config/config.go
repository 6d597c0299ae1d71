// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/keypad-sync/internal/adc"
	"github.com/sweeney/keypad-sync/internal/gpio"
	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/pulse"
	"github.com/sweeney/keypad-sync/internal/supervisor"
	"github.com/sweeney/keypad-sync/internal/watchdog"
)

// Config represents the daemon configuration.
type Config struct {
	GPIO        gpio.Config       `yaml:"gpio"`
	Timing      TimingConfig      `yaml:"timing"`
	Voltage     VoltageConfig     `yaml:"voltage"`
	Watchdog    WatchdogConfig    `yaml:"watchdog"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// TimingConfig contains loop and pulse timings.
type TimingConfig struct {
	PulseWidth          time.Duration `yaml:"pulse_width"`
	SettleDelay         time.Duration `yaml:"settle_delay"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	VoltageRecheckPolls int           `yaml:"voltage_recheck_polls"`
}

// VoltageConfig contains supply monitoring parameters.
type VoltageConfig struct {
	ThresholdMillivolts uint16 `yaml:"threshold_mv"`
	RefMillivolts       uint16 `yaml:"ref_mv"`
	ZeroIsLow           bool   `yaml:"zero_is_low"` // treat an unavailable reading as LOW
	IIOPath             string `yaml:"iio_path"`
}

// WatchdogConfig contains hardware watchdog settings.
type WatchdogConfig struct {
	Enabled bool          `yaml:"enabled"`
	Device  string        `yaml:"device"`
	Timeout time.Duration `yaml:"timeout"`
}

// DiagnosticsConfig contains diagnostic logging settings.
type DiagnosticsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Level      string `yaml:"level"`
	SerialPort string `yaml:"serial_port"` // empty = console only
	Baud       int    `yaml:"baud"`
}

// MQTTConfig contains optional telemetry settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty = disabled
	ClientID string `yaml:"client_id"`
}

// HTTPConfig contains the optional status server address.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// Default returns a configuration matching the reference wiring.
func Default() *Config {
	return &Config{
		GPIO: gpio.DefaultConfig(),
		Timing: TimingConfig{
			PulseWidth:          pulse.DefaultWidth,
			SettleDelay:         supervisor.DefaultSettleDelay,
			PollInterval:        supervisor.DefaultPollInterval,
			VoltageRecheckPolls: supervisor.DefaultVoltageRecheckPolls,
		},
		Voltage: VoltageConfig{
			ThresholdMillivolts: logic.DefaultThresholdMillivolts,
			RefMillivolts:       adc.DefaultRefMillivolts,
			IIOPath:             adc.DefaultIIOPath,
		},
		Watchdog: WatchdogConfig{
			Enabled: true,
			Device:  watchdog.DefaultDevice,
			Timeout: watchdog.DefaultTimeout,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Level:   "info",
			Baud:    115200,
		},
		MQTT: MQTTConfig{
			ClientID: "keypad-sync",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}

	if c.Timing.PulseWidth == 0 {
		c.Timing.PulseWidth = def.Timing.PulseWidth
	}
	if c.Timing.SettleDelay == 0 {
		c.Timing.SettleDelay = def.Timing.SettleDelay
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = def.Timing.PollInterval
	}
	if c.Timing.VoltageRecheckPolls == 0 {
		c.Timing.VoltageRecheckPolls = def.Timing.VoltageRecheckPolls
	}

	if c.Voltage.ThresholdMillivolts == 0 {
		c.Voltage.ThresholdMillivolts = def.Voltage.ThresholdMillivolts
	}
	if c.Voltage.RefMillivolts == 0 {
		c.Voltage.RefMillivolts = def.Voltage.RefMillivolts
	}
	if c.Voltage.IIOPath == "" {
		c.Voltage.IIOPath = def.Voltage.IIOPath
	}

	if c.Watchdog.Device == "" {
		c.Watchdog.Device = def.Watchdog.Device
	}
	if c.Watchdog.Timeout == 0 {
		c.Watchdog.Timeout = def.Watchdog.Timeout
	}

	if c.Diagnostics.Level == "" {
		c.Diagnostics.Level = def.Diagnostics.Level
	}
	if c.Diagnostics.Baud == 0 {
		c.Diagnostics.Baud = def.Diagnostics.Baud
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
}

// Validate rejects configurations the hardware cannot run with.
func (c *Config) Validate() error {
	if err := c.GPIO.Validate(); err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	if c.Timing.PulseWidth < 0 || c.Timing.SettleDelay < 0 || c.Timing.PollInterval < 0 {
		return errors.New("timing: durations must not be negative")
	}
	if c.Timing.VoltageRecheckPolls < 0 {
		return errors.New("timing: voltage_recheck_polls must not be negative")
	}
	// Keep a healthy margin between the longest iteration (three pulses
	// plus one poll) and the watchdog deadline.
	worst := 3*c.Timing.PulseWidth + c.Timing.PollInterval
	if c.Watchdog.Enabled && c.Watchdog.Timeout > 0 && worst*4 > c.Watchdog.Timeout {
		return fmt.Errorf("watchdog: timeout %v too short for a worst-case iteration of %v", c.Watchdog.Timeout, worst)
	}
	return nil
}

// Supervisor converts the timing, voltage and toggle settings.
func (c *Config) Supervisor() supervisor.Config {
	return supervisor.Config{
		PulseWidth:          c.Timing.PulseWidth,
		SettleDelay:         c.Timing.SettleDelay,
		PollInterval:        c.Timing.PollInterval,
		VoltageRecheckPolls: c.Timing.VoltageRecheckPolls,
		Voltage: logic.VoltagePolicy{
			ThresholdMillivolts: c.Voltage.ThresholdMillivolts,
			ZeroIsLow:           c.Voltage.ZeroIsLow,
		},
		Watchdog:    c.Watchdog.Enabled,
		Diagnostics: c.Diagnostics.Enabled,
	}
}
