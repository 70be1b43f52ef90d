// Package config resolves sloth settings from flags, SLOTH_* environment
// variables, sloth.yaml in the config directory, and built-in defaults,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zboralski/sloth/internal/heap"
)

const (
	configFileName = "sloth"
	configFileType = "yaml"
	envPrefix      = "SLOTH"

	KeyCapacity = "capacity"
	KeyDebug    = "debug"
	KeyTrace    = "trace"
	KeyMaxInsn  = "max_insn"
	KeyEntry    = "entry"
	KeyColor    = "color"

	DefaultCapacity = heap.DefaultCapacity
	MaxCapacity     = heap.MaxCapacity
	DefaultMaxInsn  = 500
	DefaultEntry    = "main"
)

var (
	ErrCapacity = errors.New("capacity out of range")
	ErrMaxInsn  = errors.New("max_insn must not be negative")
	ErrEntry    = errors.New("entry must not be empty")
)

// flagKeys maps flag names to config keys where a flag sets a key directly.
var flagKeys = map[string]string{
	"capacity": KeyCapacity,
	"debug":    KeyDebug,
	"num":      KeyMaxInsn,
	"entry":    KeyEntry,
}

// Config is the effective configuration.
type Config struct {
	Capacity int    `yaml:"capacity"`
	Debug    bool   `yaml:"debug"`
	Trace    bool   `yaml:"trace"`
	MaxInsn  int    `yaml:"max_insn"`
	Entry    string `yaml:"entry"`
	Color    bool   `yaml:"color"`

	// File is the config file that was read, empty when none was found.
	File string `yaml:"-"`
}

// DefaultDir returns $XDG_CONFIG_HOME/sloth, falling back to ~/.config/sloth.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sloth")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "sloth")
	}
	return filepath.Join(home, ".config", "sloth")
}

// Load resolves the configuration. dir may be empty to use DefaultDir; flags
// may be nil. A missing sloth.yaml is not an error.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	v := viper.New()
	v.SetDefault(KeyCapacity, DefaultCapacity)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyTrace, true)
	v.SetDefault(KeyMaxInsn, DefaultMaxInsn)
	v.SetDefault(KeyEntry, DefaultEntry)
	v.SetDefault(KeyColor, true)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Capacity: v.GetInt(KeyCapacity),
		Debug:    v.GetBool(KeyDebug),
		Trace:    v.GetBool(KeyTrace),
		MaxInsn:  v.GetInt(KeyMaxInsn),
		Entry:    v.GetString(KeyEntry),
		Color:    v.GetBool(KeyColor),
		File:     v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	// Negative switches only override when given.
	if f := flags.Lookup("no-trace"); f != nil && f.Changed {
		v.Set(KeyTrace, f.Value.String() != "true")
	}
	if f := flags.Lookup("no-color"); f != nil && f.Changed {
		v.Set(KeyColor, f.Value.String() != "true")
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Capacity < 1 || c.Capacity > MaxCapacity {
		return fmt.Errorf("%w: %d not in 1..%d", ErrCapacity, c.Capacity, MaxCapacity)
	}
	if c.MaxInsn < 0 {
		return fmt.Errorf("%w: %d", ErrMaxInsn, c.MaxInsn)
	}
	if c.Entry == "" {
		return ErrEntry
	}
	return nil
}

// YAML renders the configuration as it would appear in sloth.yaml.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}
