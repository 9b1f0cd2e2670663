package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "always", cfg.Capture.Fsync)
	assert.Equal(t, 1024, cfg.Capture.QueueSize)
	assert.Equal(t, "block", cfg.Capture.QueuePolicy)
	assert.Equal(t, 1<<20, cfg.Capture.BodyMaxBytes)
	assert.Empty(t, cfg.Capture.File)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
addr: ":8080"
log_level: debug
capture:
  file: /tmp/flows.jsonl
  fsync: interval
  flush_interval_ms: 250
  queue_size: 64
  queue_policy: drop
  redact_headers: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/flows.jsonl", cfg.Capture.File)
	assert.Equal(t, "interval", cfg.Capture.Fsync)
	assert.Equal(t, 250, cfg.Capture.FlushIntervalMs)
	assert.Equal(t, 64, cfg.Capture.QueueSize)
	assert.Equal(t, "drop", cfg.Capture.QueuePolicy)
	assert.True(t, cfg.Capture.RedactHeaders)
	// untouched keys keep defaults
	assert.Equal(t, 1<<20, cfg.Capture.BodyMaxBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SNIAFF_ADDR", ":7070")
	t.Setenv("SNIAFF_CAPTURE_FILE", "/var/log/capture.jsonl")
	t.Setenv("SNIAFF_CAPTURE_QUEUE_SIZE", "16")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "/var/log/capture.jsonl", cfg.Capture.File)
	assert.Equal(t, 16, cfg.Capture.QueueSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
