// Package config holds the shell's user settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"jcsh/internal/history"
	"jcsh/internal/jobs"
	"jcsh/internal/log"
)

// Config is the root of config.yaml.
type Config struct {
	Prompt  string        `mapstructure:"prompt" yaml:"prompt"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	File    string `mapstructure:"file" yaml:"file"`
	Limit   int    `mapstructure:"limit" yaml:"limit"` // lines kept on disk
}

type JobsConfig struct {
	Max int `mapstructure:"max" yaml:"max"` // job ids are 0..max-1
}

type LogConfig struct {
	Debug bool   `mapstructure:"debug" yaml:"debug"`
	File  string `mapstructure:"file" yaml:"file"`
}

const DefaultPrompt = "jcsh> "

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Prompt: DefaultPrompt,
		History: HistoryConfig{
			Enabled: true,
			File:    history.DefaultPath(),
			Limit:   history.DefaultLimit,
		},
		Jobs: JobsConfig{
			Max: jobs.DefaultMaxJobs,
		},
		Log: LogConfig{
			File: DefaultLogPath(),
		},
	}
}

// DefaultLogPath is where the debug log goes when log.file is unset.
func DefaultLogPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "jcsh", "debug.log")
	}
	return filepath.Join(os.TempDir(), "jcsh-debug.log")
}

// DefaultPath returns ~/.config/jcsh/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "jcsh", "config.yaml")
}

// SetDefaults registers every key of Defaults with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("prompt", d.Prompt)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.file", d.History.File)
	v.SetDefault("history.limit", d.History.Limit)
	v.SetDefault("jobs.max", d.Jobs.Max)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.file", d.Log.File)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c Config) Validate() error {
	if c.History.Limit <= 0 {
		return fmt.Errorf("%w: history.limit must be positive, got %d", ErrInvalid, c.History.Limit)
	}
	if c.Jobs.Max <= 0 {
		return fmt.Errorf("%w: jobs.max must be positive, got %d", ErrInvalid, c.Jobs.Max)
	}
	if c.History.Enabled && c.History.File == "" {
		return fmt.Errorf("%w: history.file is required when history is enabled", ErrInvalid)
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating
// parent directories as needed.
func WriteDefault(path string) error {
	log.Debug(log.CatConfig, "writing default config", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "path", path)
		return fmt.Errorf("creating config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Defaults()); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", path)
		return fmt.Errorf("writing config file: %w", err)
	}
	log.Info(log.CatConfig, "created default config", "path", path)
	return nil
}
