// Package poolconfig loads pool configuration from a YAML file, the way
// the teacher SDK's pkg/config loads its own top-level Config: defaults,
// then file overrides, then a handful of environment overrides for the
// fields most likely to be tuned per-deployment.
package poolconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nilsbauer/connpool/pkg/manager"

	connpool "github.com/nilsbauer/connpool"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML as a human string
// ("5m", "30s") via time.ParseDuration, instead of yaml.v3's default of
// treating it as a bare integer nanosecond count.
type Duration time.Duration

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// FileConfig is the YAML-serializable shape of a pool configuration.
type FileConfig struct {
	MaxSize           uint32   `yaml:"max_size"`
	MinIdle           uint32   `yaml:"min_idle"`
	MaxLifetime       Duration `yaml:"max_lifetime"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	ReaperRate        Duration `yaml:"reaper_rate"`
	TestOnCheckOut    bool     `yaml:"test_on_check_out"`
}

// DefaultFileConfig mirrors connpool.DefaultConfig's values.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		MaxSize:           10,
		MinIdle:           0,
		ConnectionTimeout: Duration(30 * time.Second),
		ReaperRate:        Duration(30 * time.Second),
	}
}

// Load reads and parses a YAML pool configuration file, applying
// environment overrides afterward.
func Load(filename string) (*FileConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool config file: %w", err)
	}

	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pool config file: %w", err)
	}

	cfg.loadFromEnv()
	return cfg, nil
}

// loadFromEnv overrides the handful of operationally-tunable fields from
// the environment.
func (c *FileConfig) loadFromEnv() {
	if v := os.Getenv("POOL_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.MaxSize = uint32(n)
		}
	}
	if v := os.Getenv("POOL_MIN_IDLE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.MinIdle = uint32(n)
		}
	}
	if v := os.Getenv("POOL_CONNECTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConnectionTimeout = Duration(d)
		}
	}
}

// ToBuilder turns the parsed file config into a connpool.Builder for the
// given Manager.
func ToBuilder[C comparable](c *FileConfig, m manager.Manager[C]) *connpool.Builder[C] {
	return connpool.NewBuilder[C](m).
		MaxSize(c.MaxSize).
		MinIdle(c.MinIdle).
		MaxLifetime(c.MaxLifetime.AsDuration()).
		IdleTimeout(c.IdleTimeout.AsDuration()).
		ConnectionTimeout(c.ConnectionTimeout.AsDuration()).
		ReaperRate(c.ReaperRate.AsDuration()).
		TestOnCheckOut(c.TestOnCheckOut)
}
