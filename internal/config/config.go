// Package config loads the client settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the client settings.
type Config struct {
	APIURL       string        `yaml:"api_url"`
	DataDir      string        `yaml:"data_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIURL:       "http://localhost:8080",
		DataDir:      defaultDataDir(),
		PollInterval: 3 * time.Second,
		HTTPTimeout:  30 * time.Second,
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "rngenius")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "rngenius")
	}
	return ".rngenius"
}

// DefaultPath returns the config file looked up when none is given:
// RNGENIUS_CONFIG, else $XDG_CONFIG_HOME/rngenius/config.yaml.
func DefaultPath() string {
	if path := os.Getenv("RNGENIUS_CONFIG"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "rngenius", "config.yaml")
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load builds the settings. An empty path means DefaultPath, which may be
// missing; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) overlayEnv() error {
	c.APIURL = getEnv("RNGENIUS_API_URL", getEnv("EXPO_PUBLIC_API_URL", c.APIURL))
	c.DataDir = getEnv("RNGENIUS_DATA_DIR", c.DataDir)
	c.MetricsAddr = getEnv("RNGENIUS_METRICS_ADDR", c.MetricsAddr)

	var err error
	if c.PollInterval, err = getEnvAsDuration("RNGENIUS_POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.HTTPTimeout, err = getEnvAsDuration("RNGENIUS_HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	switch {
	case c.APIURL == "":
		return errors.New("api url is required")
	case c.DataDir == "":
		return errors.New("data dir is required")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// PlainStorePath is the SQLite file for profile and snapshots.
func (c Config) PlainStorePath() string {
	return filepath.Join(c.DataDir, "device.db")
}

// SecureStorePath is the SQLite file holding sealed tokens.
func (c Config) SecureStorePath() string {
	return filepath.Join(c.DataDir, "secure.db")
}

// DeviceKeyPath is the key file the secure store derives its key from.
func (c Config) DeviceKeyPath() string {
	return filepath.Join(c.DataDir, "device.key")
}
