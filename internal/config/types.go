package config

import (
	"os"
	"path/filepath"
	"time"
)

const appName = "portly"

// Config represents the portly configuration document.
type Config struct {
	// Timeout bounds every external command.
	Timeout string `yaml:"timeout,omitempty" validate:"omitempty,duration"`
	// GracePeriod is how long a terminated command may take to exit before it is killed.
	GracePeriod string     `yaml:"grace_period,omitempty" validate:"omitempty,duration"`
	Elevation   Elevation  `yaml:"elevation,omitempty"`
	Tools       Tools      `yaml:"tools,omitempty"`
	Classifier  Classifier `yaml:"classifier,omitempty"`
	Log         Log        `yaml:"log,omitempty"`
	Cache       Cache      `yaml:"cache,omitempty"`
}

// Elevation selects the helper that runs privileged commands.
type Elevation struct {
	Helper string `yaml:"helper,omitempty" validate:"omitempty,executable"`
	// Args are inserted between the helper and the command. Leaving them
	// unset with the default helper selects its default arguments.
	Args []string `yaml:"args,omitempty" validate:"omitempty,dive,required"`
}

// Tools names the Portage executables.
type Tools struct {
	Emerge string `yaml:"emerge,omitempty" validate:"omitempty,executable"`
	Eix    string `yaml:"eix,omitempty" validate:"omitempty,executable"`
	Equery string `yaml:"equery,omitempty" validate:"omitempty,executable"`
}

// Classifier overrides the diagnostic phrase tables. A list that is set
// replaces the built-in one.
type Classifier struct {
	Denied []string `yaml:"denied,omitempty" validate:"omitempty,dive,required"`
	Benign []string `yaml:"benign,omitempty" validate:"omitempty,dive,required"`
}

// Log configures diagnostic logging.
type Log struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Human bool   `yaml:"human,omitempty"`
	// File receives the log instead of stderr. The TUI discards logs without one.
	File string `yaml:"file,omitempty"`
}

// Cache locates the package list snapshot.
type Cache struct {
	Path string `yaml:"path,omitempty"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Timeout:     "300s",
		GracePeriod: "2s",
		Elevation:   Elevation{Helper: "pkexec"},
		Tools:       Tools{Emerge: "emerge", Eix: "eix", Equery: "equery"},
		Log:         Log{Level: "warn", Human: true},
		Cache:       Cache{Path: DefaultCachePath()},
	}
}

// TimeoutDuration returns the parsed command timeout, zero when unset.
func (c *Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// GracePeriodDuration returns the parsed grace period, zero when unset.
func (c *Config) GracePeriodDuration() time.Duration {
	return parseDuration(c.GracePeriod)
}

func parseDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// DefaultPath returns $XDG_CONFIG_HOME/portly/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appName, "config.yaml")
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// DefaultCachePath returns $XDG_CACHE_HOME/portly/snapshot.json or its platform equivalent.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "snapshot.json")
	}
	return filepath.Join(dir, appName, "snapshot.json")
}
