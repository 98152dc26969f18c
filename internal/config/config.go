// Package config resolves runtime settings.
//
// Sources are applied in order, later ones winning: built-in defaults, a YAML
// file, a .env file, E2PC_* environment variables. Command-line flags are
// applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvDatabase    = "E2PC_DB"
	EnvListen      = "E2PC_LISTEN"
	EnvServer      = "E2PC_SERVER"
	EnvCatalog     = "E2PC_CATALOG"
	EnvMaxAttempts = "E2PC_MAX_ATTEMPTS"
	EnvMaxSteps    = "E2PC_MAX_STEPS"
	EnvLogLevel    = "E2PC_LOG_LEVEL"
	EnvLogFormat   = "E2PC_LOG_FORMAT"
)

// Config holds every runtime setting.
type Config struct {
	// Database is the SQLite file, or ":memory:".
	Database string `yaml:"database"`
	// Listen is the HTTP listen address for serve.
	Listen string `yaml:"listen"`
	// Server is the base URL client commands talk to.
	Server string `yaml:"server"`
	// Catalog is an optional CUE catalog file; empty means the built-in one.
	Catalog string `yaml:"catalog"`
	// MaxAttempts bounds retries after a stream version conflict.
	MaxAttempts int `yaml:"max_attempts"`
	// MaxSteps bounds the protocol commands of one transaction.
	MaxSteps int `yaml:"max_steps"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:    "eventual2pc.db",
		Listen:      ":8080",
		Server:      "http://localhost:8080",
		MaxAttempts: 5,
		MaxSteps:    1000,
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Options tells Load where to look.
type Options struct {
	// File is a YAML config file. Empty skips it; a missing named file is
	// an error.
	File string
	// DotEnv is a .env file. A missing file is ignored.
	DotEnv string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := readYAML(opts.File, &cfg); err != nil {
			return Config{}, err
		}
	}

	dotenv := map[string]string{}
	if opts.DotEnv != "" {
		m, err := godotenv.Read(opts.DotEnv)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", opts.DotEnv, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	// Real environment variables win over the .env file.
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvDatabase, &cfg.Database},
		{EnvListen, &cfg.Listen},
		{EnvServer, &cfg.Server},
		{EnvCatalog, &cfg.Catalog},
		{EnvLogLevel, &cfg.Log.Level},
		{EnvLogFormat, &cfg.Log.Format},
	}
	for _, s := range strs {
		if v, ok := env(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvMaxAttempts, &cfg.MaxAttempts},
		{EnvMaxSteps, &cfg.MaxSteps},
	}
	for _, i := range ints {
		v, ok := env(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", i.key, v)
		}
		*i.dst = n
	}
	return nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.Database == "":
		return errors.New("config: database is required")
	case c.MaxAttempts < 1:
		return fmt.Errorf("config: max_attempts must be at least 1, got %d", c.MaxAttempts)
	case c.MaxSteps < 1:
		return fmt.Errorf("config: max_steps must be at least 1, got %d", c.MaxSteps)
	case !slices.Contains(validLevels, strings.ToLower(c.Log.Level)):
		return fmt.Errorf("config: log.level %q must be one of %v", c.Log.Level, validLevels)
	case !slices.Contains(validFormats, c.Log.Format):
		return fmt.Errorf("config: log.format %q must be one of %v", c.Log.Format, validFormats)
	}
	return nil
}

// NewLogger builds the slog logger described by c, writing to w.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q must be one of %v", c.Format, validFormats)
	}
}
