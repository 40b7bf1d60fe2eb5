package multinodetop

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a configuration value is out of range
var ErrInvalidConfig = errors.New("multinodetop: invalid configuration")

const (
	BACKEND_AUTO       = "auto"
	BACKEND_JSON       = "json"
	BACKEND_EXPORTER   = "exporter"
	BACKEND_PROMETHEUS = "prometheus"
)

var backends = []string{BACKEND_AUTO, BACKEND_JSON, BACKEND_EXPORTER, BACKEND_PROMETHEUS}

// Config holds the dashboard configuration
type Config struct {
	DataURL  string        `mapstructure:"data_url"`
	Backend  string        `mapstructure:"backend"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Window   int           `mapstructure:"window"`
	Plain    bool          `mapstructure:"plain"`
	LogFile  string        `mapstructure:"log_file"`
	Listen   string        `mapstructure:"listen"`

	// WorkerRows is the height of the plain report's worker table before it
	// wraps into another column. Zero means one column.
	WorkerRows int `mapstructure:"worker_rows"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_url", DEFAULT_DATA_URL)
	v.SetDefault("backend", BACKEND_AUTO)
	v.SetDefault("interval", PollDuration().String())
	v.SetDefault("timeout", FetchTimeout().String())
	v.SetDefault("window", RETENTION_WINDOW)
	v.SetDefault("plain", false)
	v.SetDefault("log_file", "")
	v.SetDefault("listen", "")
	v.SetDefault("worker_rows", 0)
}

// AddConfigPaths points v at the optional multinodetop.yaml locations
func AddConfigPaths(v *viper.Viper) {
	v.SetConfigName("multinodetop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "multinodetop"))
	}
	v.AddConfigPath("/etc/multinodetop/")
}

// LoadConfig reads the optional config file and decodes v into a Config.
// A missing config file is not an error.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DataURL == "" {
		return fmt.Errorf("%w: data_url is required", ErrInvalidConfig)
	}
	if _, err := c.URL(); err != nil {
		return err
	}
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("%w: backend %q is not one of %v", ErrInvalidConfig, c.Backend, backends)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}
	if c.Window < 1 {
		return fmt.Errorf("%w: window must be at least 1, got %d", ErrInvalidConfig, c.Window)
	}
	if c.WorkerRows < 0 {
		return fmt.Errorf("%w: worker_rows must not be negative, got %d", ErrInvalidConfig, c.WorkerRows)
	}
	return nil
}

// URL parses DataURL, accepting a bare host:port by assuming http
func (c *Config) URL() (*url.URL, error) {
	raw := c.DataURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: data_url %q is not a valid URL", ErrInvalidConfig, c.DataURL)
	}
	return u, nil
}
