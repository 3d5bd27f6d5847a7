package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the djtag probe settings.
type Config struct {
	Adapter     string        `yaml:"adapter"`
	VendorID    uint16        `yaml:"vendor_id"`
	ProductID   uint16        `yaml:"product_id"`
	Timeout     time.Duration `yaml:"timeout"`
	ReadSize    int           `yaml:"read_size"`
	LogLevel    string        `yaml:"log_level"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Adapter:   "usb",
		VendorID:  0x1209,
		ProductID: 0xC0CA,
		Timeout:   100 * time.Millisecond,
		ReadSize:  64,
		LogLevel:  "info",
	}
}

// DefaultPath returns the default config file path: ~/.djtag/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".djtag", "config.yaml")
	}
	return filepath.Join(home, ".djtag", "config.yaml")
}

// Load reads the configuration from the given YAML file path. A missing file
// yields Default with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings a probe session cannot use.
func (c *Config) Validate() error {
	switch c.Adapter {
	case "usb", "simulator", "sim":
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ReadSize <= 0 {
		return fmt.Errorf("read_size must be positive, got %d", c.ReadSize)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Save writes c as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
