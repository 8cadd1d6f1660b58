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

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikilua.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikilua.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
executor:
  timeout: 2s
  memory_limit: 16mb
  max_depth: 8
cache:
  module_bytes: 1gb
workers: 2
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, Size(16<<20), cfg.Executor.MemoryLimit)
	assert.Equal(t, 8, cfg.Executor.MaxDepth)
	assert.Equal(t, Size(1<<30), cfg.Cache.ModuleBytes)
	assert.Equal(t, 2, cfg.Workers)

	// untouched fields keep their defaults
	assert.Equal(t, Default().Executor.Quantum, cfg.Executor.Quantum)
	assert.Equal(t, Default().Cache.OutputBytes, cfg.Cache.OutputBytes)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Len(t, cfg.ExecutorOptions(slog.Default()), 5)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "executor:\n  timeot: 2s\n"},
		{"bad size", "cache:\n  module_bytes: lots\n"},
		{"zero workers", "workers: 0\n"},
		{"negative timeout", "executor:\n  timeout: -1s\n"},
		{"bad level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wikilua.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
		str  string
	}{
		{"1048576", 1 << 20, "1mb"},
		{"64MB", 64 << 20, "64mb"},
		{" 512 kb ", 512 << 10, "512kb"},
		{"2gb", 2 << 30, "2gb"},
		{"100b", 100, "100"},
		{"0", 0, "0"},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.str, got.String(), tt.in)
	}

	_, err := ParseSize("12 parsecs")
	assert.Error(t, err)
}
