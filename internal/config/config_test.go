package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uint16(0x1209), cfg.VendorID)
	assert.Equal(t, uint16(0xC0CA), cfg.ProductID)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("adapter: simulator\ntimeout: 250ms\nread_size: 32\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "simulator", cfg.Adapter)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 32, cfg.ReadSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint16(0x1209), cfg.VendorID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad adapter", "adapter: ftdi\n"},
		{"zero read size", "read_size: 0\n"},
		{"bad level", "log_level: loud\n"},
		{"not yaml", "adapter: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Adapter = "sim"
	cfg.MetricsAddr = ":9100"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
