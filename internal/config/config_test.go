package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, Config{
		Database:     "agreement.db",
		TickInterval: time.Second,
		DefaultDelay: 0,
		Workers:      4,
		LogLevel:     slog.LevelInfo,
	}, cfg)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agreement.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
database:      "/var/lib/agreement/state.db"
tick_interval: "250ms"
default_delay: "72h"
workers:       8
log_level:     "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/agreement/state.db", cfg.Database)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 72*time.Hour, cfg.DefaultDelay)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParse_PartialUsesDefaults(t *testing.T) {
	cfg, err := Parse("partial.cue", []byte(`workers: 2`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "agreement.db", cfg.Database)
	assert.Equal(t, time.Second, cfg.TickInterval)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse("config.json", []byte(`{"database": "x.db", "log_level": "warn"}`))
	require.NoError(t, err)
	assert.Equal(t, "x.db", cfg.Database)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `colour: "blue"`},
		{"zero workers", `workers: 0`},
		{"string workers", `workers: "many"`},
		{"bad level", `log_level: "loud"`},
		{"empty database", `database: ""`},
		{"bad duration", `tick_interval: "soon"`},
		{"zero tick", `tick_interval: "0s"`},
		{"negative delay", `default_delay: "-1s"`},
		{"syntax", `workers: [`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			require.Error(t, err)
			var cfgErr *Error
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
