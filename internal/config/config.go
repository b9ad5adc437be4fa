package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.fieldsync/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	DeviceID       string  `toml:"device_id"`
	CollectorID    string  `toml:"collector_id"`
	Remote         Remote  `toml:"remote"`
	Sync           Sync    `toml:"sync"`
	Network        Network `toml:"network"`
	HTTP           HTTP    `toml:"http"`
	Log            Log     `toml:"log"`
}

type Remote struct {
	Driver         string   `toml:"driver"`
	BaseURL        string   `toml:"base_url"`
	RequestTimeout Duration `toml:"request_timeout"`
	S3             S3       `toml:"s3"`
}

type S3 struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	PathStyle       bool   `toml:"path_style"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

type Sync struct {
	Interval    Duration `toml:"interval"`
	MaxRetries  int      `toml:"max_retries"`
	BackoffBase Duration `toml:"backoff_base"`
	BackoffMax  Duration `toml:"backoff_max"`
}

type Network struct {
	ProbeURL      string   `toml:"probe_url"`
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
}

type HTTP struct {
	Addr string `toml:"addr"`
}

type Log struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Duration is a time.Duration written as a Go duration string ("2m", "10s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Remote: Remote{
			Driver:         "http",
			RequestTimeout: Duration{30 * time.Second},
		},
		Sync: Sync{
			Interval:    Duration{2 * time.Minute},
			MaxRetries:  3,
			BackoffBase: Duration{5 * time.Second},
			BackoffMax:  Duration{5 * time.Minute},
		},
		Network: Network{
			ProbeInterval: Duration{10 * time.Second},
			ProbeTimeout:  Duration{5 * time.Second},
		},
		HTTP: HTTP{Addr: "127.0.0.1:8765"},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads config from the given path on top of the defaults. Returns
// an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks values that would otherwise fail deep inside the daemon.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case "", "http", "s3":
	default:
		return fmt.Errorf("remote.driver: unknown driver %q", c.Remote.Driver)
	}
	if c.Remote.Driver == "s3" && c.Remote.S3.Bucket == "" {
		return errors.New("remote.s3.bucket is required for the s3 driver")
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync.max_retries must not be negative")
	}
	return nil
}

// ProbeURL returns the reachability probe target: the explicit setting, or
// the remote base URL's /health endpoint.
func (c *Config) ProbeURL() string {
	if c.Network.ProbeURL != "" {
		return c.Network.ProbeURL
	}
	if c.Remote.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.Remote.BaseURL, "/") + "/health"
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
