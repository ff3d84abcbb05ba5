// Package config provides configuration loading and management for tclink.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultStateDir is the per-repository state directory.
	DefaultStateDir = ".tclink"
	// EnvPrefix prefixes environment overrides, e.g. TCLINK_LINKER_WORKERS.
	EnvPrefix = "TCLINK"
)

// DefaultPath is the config file location relative to the repository root.
var DefaultPath = filepath.Join(DefaultStateDir, "config.json")

// Config is the root configuration.
type Config struct {
	StateDir  string          `json:"state_dir"  mapstructure:"state_dir"`
	Database  string          `json:"database"   mapstructure:"database"`
	Linker    LinkerConfig    `json:"linker"     mapstructure:"linker"`
	Output    OutputConfig    `json:"output"     mapstructure:"output"`
	Retention RetentionPolicy `json:"retention"  mapstructure:"retention"`
	UI        UIConfig        `json:"ui"         mapstructure:"ui"`
}

// LinkerConfig tunes the acceptance criteria linker.
type LinkerConfig struct {
	Workers    int      `json:"workers"                mapstructure:"workers"`
	KnownACIDs []string `json:"known_ac_ids,omitempty" mapstructure:"known_ac_ids"`
}

// OutputConfig controls how linked documents are written.
type OutputConfig struct {
	Format string `json:"format" mapstructure:"format"`
}

// RetentionPolicy defines how many old link runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// UIConfig configures the web UI.
type UIConfig struct {
	Port int `json:"port" mapstructure:"port"`
}

// RunsDir returns the directory holding per-run artifacts.
func (c Config) RunsDir() string {
	return filepath.Join(c.StateDir, "runs")
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("database", "")
	v.SetDefault("linker.workers", 1)
	v.SetDefault("linker.known_ac_ids", []string{})
	v.SetDefault("output.format", "auto")
	v.SetDefault("retention.keep_last", 50)
	v.SetDefault("retention.keep_days", 30)
	v.SetDefault("ui.port", 8080)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the config file named by the "config" key (relative paths are
// resolved against repoRoot), applies defaults and TCLINK_* environment
// overrides, and validates the result. A missing file yields the defaults.
func Load(v *viper.Viper, repoRoot string) (Config, error) {
	path := v.GetString("config")
	if path == "" {
		path = DefaultPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var settings map[string]any
		if err := json.Unmarshal(data, &settings); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := ValidateSettings(settings); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(repoRoot); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize(repoRoot string) error {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if !filepath.IsAbs(c.StateDir) {
		c.StateDir = filepath.Join(repoRoot, c.StateDir)
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.StateDir, "tclink.db")
	} else if !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(repoRoot, c.Database)
	}
	if c.Linker.Workers <= 0 {
		c.Linker.Workers = 1
	}
	ids := make([]string, 0, len(c.Linker.KnownACIDs))
	for _, id := range c.Linker.KnownACIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.Linker.KnownACIDs = ids
	switch c.Output.Format {
	case "", "auto":
		c.Output.Format = "auto"
	case "json", "yaml":
	default:
		return fmt.Errorf("output.format must be one of auto, json, yaml; got %q", c.Output.Format)
	}
	if c.Retention.KeepLast < 0 || c.Retention.KeepDays < 0 {
		return fmt.Errorf("retention values must be >= 0")
	}
	return nil
}
