package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fkcurrie/hub75-bcm/pkg/hub75"
)

// BoardConfig selects the peripheral base address
type BoardConfig struct {
	// Model overrides device tree detection, e.g. "Raspberry Pi 4"
	Model string `yaml:"model,omitempty"`
	// PeripheralBase overrides the base address derived from the model
	PeripheralBase uint64 `yaml:"peripheral_base,omitempty"`
	// Device is the memory device to map registers from
	Device string `yaml:"device"`
	// Chip is the GPIO character device checked for claimed pins
	Chip string `yaml:"chip"`
}

// PanelConfig describes the panel and how hard to drive it
type PanelConfig struct {
	hub75.Geometry `yaml:",inline"`
	Slowdown       int    `yaml:"slowdown"`
	BaseDwellNs    uint32 `yaml:"base_dwell_ns"`
}

// ScrollConfig controls horizontal scrolling
type ScrollConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PreviewConfig controls the websocket frame preview
type PreviewConfig struct {
	// Addr is the listen address; empty disables the preview
	Addr string `yaml:"addr"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config represents the application configuration
type Config struct {
	Board   BoardConfig   `yaml:"board"`
	Panel   PanelConfig   `yaml:"panel"`
	Pins    hub75.PinMap  `yaml:"pins"`
	Scroll  ScrollConfig  `yaml:"scroll"`
	Preview PreviewConfig `yaml:"preview"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Board: BoardConfig{
			Device: "/dev/mem",
			Chip:   "gpiochip0",
		},
		Panel: PanelConfig{
			Geometry:    hub75.DefaultGeometry,
			Slowdown:    1,
			BaseDwellNs: hub75.DefaultBaseDwell,
		},
		Pins: hub75.DefaultPins,
		Scroll: ScrollConfig{
			Enabled:  true,
			Interval: hub75.DefaultScrollInterval,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads the configuration from a file. Settings missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the panel, scroll and log settings
func (c *Config) Validate() error {
	var errs []error
	if err := c.HUB75().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Panel.Slowdown < 0 {
		errs = append(errs, fmt.Errorf("slowdown must not be negative, got %d", c.Panel.Slowdown))
	}
	if c.Scroll.Enabled && c.Scroll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scroll interval must be positive, got %s", c.Scroll.Interval))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Board.Device == "" {
		errs = append(errs, errors.New("board device must be set"))
	}
	return errors.Join(errs...)
}

// HUB75 returns the driver configuration
func (c *Config) HUB75() hub75.Config {
	return hub75.Config{
		Pins:      c.Pins,
		Geometry:  c.Panel.Geometry,
		Slowdown:  c.Panel.Slowdown,
		BaseDwell: c.Panel.BaseDwellNs,
	}
}

// ScrollInterval returns the interval the render loop should use, zero when
// scrolling is off
func (c *Config) ScrollInterval() time.Duration {
	if !c.Scroll.Enabled {
		return 0
	}
	return c.Scroll.Interval
}
