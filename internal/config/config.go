// Package config loads the daemon configuration from a YAML file via koanf.
//
// Configuration is read from /etc/rootipc/config.yaml by default. Every key
// is optional; missing values fall back to the defaults of the packages they
// configure.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location for the daemon configuration file.
const DefaultConfigPath = "/etc/rootipc/config.yaml"

// Config holds the daemon configuration.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// BaseDir is the parent directory the channel directory is created under.
	// Default: os.TempDir().
	BaseDir string `koanf:"base_dir" yaml:"base_dir"`

	// SocketPath enables the single-file mailbox when set.
	SocketPath string `koanf:"socket_path" yaml:"socket_path"`

	// LogLevel is one of "debug", "info", "warn", "error". Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// SuPath overrides su discovery.
	SuPath string `koanf:"su_path" yaml:"su_path"`

	// ReadAttempts bounds how often an incomplete command file is re-read.
	// Default: 5.
	ReadAttempts int `koanf:"read_attempts" yaml:"read_attempts"`

	// ReadDelayMs is the pause between read attempts. Default: 10.
	ReadDelayMs int `koanf:"read_delay_ms" yaml:"read_delay_ms"`

	// PollIntervalMs is the mailbox poll period. Default: 100.
	PollIntervalMs int `koanf:"poll_interval_ms" yaml:"poll_interval_ms"`

	// JournalPath is the bbolt file that records traffic. Empty disables it.
	JournalPath string `koanf:"journal_path" yaml:"journal_path"`

	// JournalKeep caps the number of journal entries kept. Default: 10000.
	JournalKeep int `koanf:"journal_keep" yaml:"journal_keep"`

	// ReaperSchedule is the cron spec for sweeping stale responses.
	// Default: "@every 5m".
	ReaperSchedule string `koanf:"reaper_schedule" yaml:"reaper_schedule"`

	// ResponseMaxAgeSec is how long an uncollected response survives.
	// Default: 600.
	ResponseMaxAgeSec int `koanf:"response_max_age_s" yaml:"response_max_age_s"`
}

// Validation errors returned by Load.
var (
	ErrInvalidReadAttempts = errors.New("read_attempts must be positive")
	ErrInvalidReadDelay    = errors.New("read_delay_ms must not be negative")
	ErrInvalidPollInterval = errors.New("poll_interval_ms must be positive")
	ErrInvalidMaxAge       = errors.New("response_max_age_s must be positive")
	ErrRelativePath        = errors.New("paths must be absolute")
)

// Load reads configuration from the specified YAML file path, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.BaseDir == "" {
		c.BaseDir = os.TempDir()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReadAttempts == 0 {
		c.ReadAttempts = 5
	}
	if c.ReadDelayMs == 0 {
		c.ReadDelayMs = 10
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = 100
	}
	if c.JournalKeep == 0 {
		c.JournalKeep = 10000
	}
	if c.ReaperSchedule == "" {
		c.ReaperSchedule = "@every 5m"
	}
	if c.ResponseMaxAgeSec == 0 {
		c.ResponseMaxAgeSec = 600
	}
}

func (c *Config) validate() error {
	if c.ReadAttempts <= 0 {
		return ErrInvalidReadAttempts
	}
	if c.ReadDelayMs < 0 {
		return ErrInvalidReadDelay
	}
	if c.PollIntervalMs <= 0 {
		return ErrInvalidPollInterval
	}
	if c.ResponseMaxAgeSec <= 0 {
		return ErrInvalidMaxAge
	}
	for _, p := range []string{c.BaseDir, c.SocketPath, c.JournalPath} {
		if p != "" && !filepath.IsAbs(p) {
			return fmt.Errorf("%w: %s", ErrRelativePath, p)
		}
	}
	return nil
}

// Save writes the configuration to path with 0644 permissions.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// ReadDelay returns ReadDelayMs as a duration.
func (c *Config) ReadDelay() time.Duration {
	return time.Duration(c.ReadDelayMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ResponseMaxAge returns ResponseMaxAgeSec as a duration.
func (c *Config) ResponseMaxAge() time.Duration {
	return time.Duration(c.ResponseMaxAgeSec) * time.Second
}

// SocketEnabled reports whether the mailbox is configured.
func (c *Config) SocketEnabled() bool {
	return c.SocketPath != ""
}

// JournalEnabled reports whether traffic is journaled.
func (c *Config) JournalEnabled() bool {
	return c.JournalPath != ""
}
