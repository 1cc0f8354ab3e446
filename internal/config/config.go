// Package config loads pardoc configuration.
//
// Values come from, in increasing priority: built-in defaults, an optional
// YAML file, an optional .env file and PARDOC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "PARDOC_"

// DefaultEnvFile is read when Loader.EnvFile is empty. It may be missing.
const DefaultEnvFile = ".env"

// Config is the full pardoc configuration.
type Config struct {
	// Root is the data directory every backend stores under.
	Root string `yaml:"root"`

	// Backend selects the paragraph store: file, sqlite or badger.
	Backend string `yaml:"backend"`

	// LockDir holds the per-document lock files. Defaults to <root>/locks.
	LockDir string `yaml:"lock_dir"`

	// ModifierGroup is written to every changelog entry.
	ModifierGroup int `yaml:"modifier_group"`

	// MaxReferenceDepth bounds reference chains.
	MaxReferenceDepth int `yaml:"max_reference_depth"`

	// Strict makes whole-document updates fail on any structural issue,
	// not only critical ones.
	Strict bool `yaml:"strict"`

	Log Log `yaml:"log"`

	// MetricsFile, when set, receives the prometheus metrics in text format
	// after every command.
	MetricsFile string `yaml:"metrics_file"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:              "pardoc-data",
		Backend:           BackendFile,
		MaxReferenceDepth: 64,
		Strict:            true,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks field values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendSQLite, BackendBadger)),
		validation.Field(&c.ModifierGroup, validation.Min(0)),
		validation.Field(&c.MaxReferenceDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.Log),
	)
}

// Validate checks field values.
func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.Required, validation.In("text", "json")),
	)
}

// Loader reads configuration from its sources.
type Loader struct {
	// File is an optional YAML file. It must exist when set.
	File string

	// EnvFile is a dotenv file. Empty means DefaultEnvFile, which may be
	// missing.
	EnvFile string

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads the configuration with the default Loader and the given YAML
// file.
func Load(file string) (Config, error) {
	return Loader{File: file}.Load()
}

// Load merges every source over the defaults and validates the result.
func (l Loader) Load() (Config, error) {
	cfg := Default()

	if l.File != "" {
		data, err := os.ReadFile(l.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", l.File, err)
		}
	}

	dotenv, err := l.readEnvFile()
	if err != nil {
		return Config{}, err
	}
	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	// The process environment wins over the .env file.
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}

	if cfg.LockDir == "" {
		cfg.LockDir = filepath.Join(cfg.Root, "locks")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l Loader) readEnvFile() (map[string]string, error) {
	path := l.EnvFile
	if path == "" {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) && l.EnvFile == "" {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	strs := map[string]*string{
		"ROOT":         &c.Root,
		"BACKEND":      &c.Backend,
		"LOCK_DIR":     &c.LockDir,
		"LOG_LEVEL":    &c.Log.Level,
		"LOG_FORMAT":   &c.Log.Format,
		"METRICS_FILE": &c.MetricsFile,
	}
	for key, dst := range strs {
		if v, ok := env(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"MODIFIER_GROUP":      &c.ModifierGroup,
		"MAX_REFERENCE_DEPTH": &c.MaxReferenceDepth,
	}
	for key, dst := range ints {
		v, ok := env(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := env(EnvPrefix + "STRICT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSTRICT: %w", EnvPrefix, err)
		}
		c.Strict = b
	}
	return nil
}
