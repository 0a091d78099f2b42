package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultLayout  = "icoca"
)

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source string `yaml:"source"`
}

type Monitor struct {
	Timeout        time.Duration `yaml:"timeout"`
	RetryOnTimeout bool          `yaml:"retry_on_timeout"`
}

type Card struct {
	Balance bool   `yaml:"balance"`
	Layout  string `yaml:"layout"`
	// Unpower powers the card down on disconnect instead of leaving it.
	Unpower bool `yaml:"unpower"`
}

// Layout places a little-endian 16-bit balance inside one service record.
type Layout struct {
	ServiceCode uint16 `yaml:"service_code"`
	LowOffset   int    `yaml:"low_offset"`
	HighOffset  int    `yaml:"high_offset"`
}

type Config struct {
	Log     Log               `yaml:"log"`
	Monitor Monitor           `yaml:"monitor"`
	Card    Card              `yaml:"card"`
	Layouts map[string]Layout `yaml:"layouts"`
}

func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
			Source: "short",
		},
		Monitor: Monitor{
			Timeout: DefaultTimeout,
		},
		Card: Card{
			Balance: true,
			Layout:  DefaultLayout,
		},
		Layouts: map[string]Layout{
			DefaultLayout: {ServiceCode: 0x008B, LowOffset: 11, HighOffset: 12},
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Layouts from the file are merged with the built-in ones.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.timeout must be positive, got %s", c.Monitor.Timeout))
	}
	if _, err := c.Layout(); err != nil {
		errs = append(errs, err)
	}
	for name, l := range c.Layouts {
		if l.LowOffset < 0 || l.HighOffset < 0 {
			errs = append(errs, fmt.Errorf("layout %s: offsets must not be negative", name))
		}
		if l.LowOffset == l.HighOffset {
			errs = append(errs, fmt.Errorf("layout %s: low and high offset are both %d", name, l.LowOffset))
		}
	}
	return errors.Join(errs...)
}

// Layout returns the layout selected by card.layout.
func (c *Config) Layout() (Layout, error) {
	l, ok := c.Layouts[c.Card.Layout]
	if !ok {
		return Layout{}, fmt.Errorf("unknown card layout %q", c.Card.Layout)
	}
	return l, nil
}
