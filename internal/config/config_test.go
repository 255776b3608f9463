package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	reg, err := cfg.NewRegistry(slog.Default())
	require.NoError(t, err)
	s, err := reg.Lookup("main")
	require.NoError(t, err)
	assert.Equal(t, 256<<10, s.Capacity())
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
log:
  level: debug
  format: json
registry:
  min_capacity: 16KiB
  max_capacity: 1MiB
  max_stores: 4
stores:
  - name: main
    capacity: 64KiB
  - name: events
    capacity: 16384
server:
  listen: ":9090"
  write_timeout: 3s
  tail_version: v1
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Registry.MaxStores)
	require.Len(t, cfg.Stores, 2)
	assert.Equal(t, Size(64<<10), cfg.Stores[0].Capacity)
	assert.Equal(t, Size(16384), cfg.Stores[1].Capacity)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 3*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, Size(64<<10), cfg.Server.DefaultCapacity, "unset fields keep defaults")
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("log:\n  colour: true\n"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	_, err := Parse(strings.NewReader(`
log:
  level: loud
  format: xml
stores:
  - name: main
    capacity: 3000
  - name: main
    capacity: 16KiB
  - capacity: 4MiB
server:
  tail_version: v9
`))
	require.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{
		`log level "loud"`,
		`log.format "xml"`,
		`store "main" capacity 3000`,
		`store "main" listed twice`,
		`stores[2] has no name`,
		`server.tail_version`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lxring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: \"0.0.0.0:1\"\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:1", cfg.Server.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewRegistryRejectsBadStore(t *testing.T) {
	cfg := Default()
	cfg.Stores = append(cfg.Stores, StoreConfig{Name: "bad name", Capacity: 16 << 10})
	_, err := cfg.NewRegistry(slog.Default())
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := map[string]Size{
		"1024":   1024,
		"64KiB":  64 << 10,
		"1MiB":   1 << 20,
		"2M":     2 << 20,
		"16 K":   16 << 10,
		"1.5KiB": 1536,
		"8mb":    8 << 20,
	}
	for in, want := range tests {
		got, err := ParseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"big", "-1", "", "2TiB", "99999999999999999999MiB"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
	assert.Equal(t, "64KiB", Size(64<<10).String())
	assert.Equal(t, "1MiB", Size(1<<20).String())
	assert.Equal(t, "1000", Size(1000).String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, LogConfig{Level: "nope"})
	assert.Error(t, err)
}
