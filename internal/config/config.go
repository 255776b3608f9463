// Package config loads the lxring YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/registry"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the whole file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Registry RegistryConfig `yaml:"registry"`
	Stores   []StoreConfig  `yaml:"stores"`
	Server   ServerConfig   `yaml:"server"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RegistryConfig bounds the stores a registry may create.
type RegistryConfig struct {
	MinCapacity Size `yaml:"min_capacity"`
	MaxCapacity Size `yaml:"max_capacity"`
	MaxStores   int  `yaml:"max_stores"`
}

// Limits converts to registry limits.
func (r RegistryConfig) Limits() registry.Limits {
	return registry.Limits{
		MinCapacity: int(r.MinCapacity),
		MaxCapacity: int(r.MaxCapacity),
		MaxStores:   r.MaxStores,
	}
}

// StoreConfig is a store created at startup.
type StoreConfig struct {
	Name     string `yaml:"name"`
	Capacity Size   `yaml:"capacity"`
}

// ServerConfig configures `lxring serve`.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// DefaultCapacity is used by POST /stores when none is given.
	DefaultCapacity Size          `yaml:"default_capacity"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	// TailVersion is the header version tail clients get by default.
	TailVersion string `yaml:"tail_version"`
}

// Default returns a configuration that works without a file.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Registry: RegistryConfig{MinCapacity: 16 << 10, MaxCapacity: 1 << 20, MaxStores: 16},
		Stores:   []StoreConfig{{Name: "main", Capacity: 256 << 10}},
		Server: ServerConfig{
			Listen:          "127.0.0.1:7070",
			DefaultCapacity: 64 << 10,
			WriteTimeout:    10 * time.Second,
			TailVersion:     "v2",
		},
	}
}

// Load reads path over the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// A stores list in the input replaces the default one.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalid, c.Log.Format))
	}

	lim := c.Registry
	if lim.MinCapacity <= 0 || lim.MaxCapacity < lim.MinCapacity {
		errs = append(errs, fmt.Errorf("%w: registry capacity range [%d, %d]", ErrInvalid, lim.MinCapacity, lim.MaxCapacity))
	}
	if lim.MaxStores <= 0 {
		errs = append(errs, fmt.Errorf("%w: registry.max_stores %d", ErrInvalid, lim.MaxStores))
	}
	if len(c.Stores) > lim.MaxStores && lim.MaxStores > 0 {
		errs = append(errs, fmt.Errorf("%w: %d stores configured, max_stores is %d", ErrInvalid, len(c.Stores), lim.MaxStores))
	}
	seen := make(map[string]bool, len(c.Stores))
	for i, s := range c.Stores {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%w: stores[%d] has no name", ErrInvalid, i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%w: store %q listed twice", ErrInvalid, s.Name))
		}
		seen[s.Name] = true
		if !c.fits(int(s.Capacity)) {
			errs = append(errs, fmt.Errorf("%w: store %q capacity %d", ErrInvalid, s.Name, s.Capacity))
		}
	}

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("%w: server.listen is empty", ErrInvalid))
	}
	if !c.fits(int(c.Server.DefaultCapacity)) {
		errs = append(errs, fmt.Errorf("%w: server.default_capacity %d", ErrInvalid, c.Server.DefaultCapacity))
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: server.write_timeout %s", ErrInvalid, c.Server.WriteTimeout))
	}
	if _, err := entry.ParseVersion(c.Server.TailVersion); err != nil {
		errs = append(errs, fmt.Errorf("%w: server.tail_version: %v", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

func (c *Config) fits(capacity int) bool {
	return capacity >= int(c.Registry.MinCapacity) &&
		capacity <= int(c.Registry.MaxCapacity) &&
		capacity&(capacity-1) == 0
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
}

// NewLogger builds the process logger.
func NewLogger(w io.Writer, cfg LogConfig) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: log format %q", ErrInvalid, cfg.Format)
	}
	return slog.New(h), nil
}

// NewRegistry creates a registry with the configured limits and stores.
func (c *Config) NewRegistry(log *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(c.Registry.Limits(), registry.WithLogger(log))
	for _, s := range c.Stores {
		if _, err := reg.Create(s.Name, int(s.Capacity)); err != nil {
			return nil, fmt.Errorf("config: store %q: %w", s.Name, err)
		}
	}
	return reg, nil
}
