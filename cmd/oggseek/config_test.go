package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data string) string {
	path := filepath.Join(t.TempDir(), "oggseek.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, `
log_level: debug
listen: ":9000"
ogg:
  page_step: 2048
  fuzz: 250ms
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":9000", cfg.Listen)
	require.Equal(t, int64(2048), cfg.Ogg.PageStep)
	require.Equal(t, 250*time.Millisecond, cfg.Ogg.Fuzz)
	// untouched keys keep their defaults
	require.Equal(t, 6, cfg.Ogg.MaxBackoff)
	require.Equal(t, int64(5000), cfg.Ogg.EndScanStep)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigUnknownKey(t *testing.T) {
	_, err := loadConfig(writeFile(t, "page_stepp: 1\n"))
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	log.Info("hidden")
	require.Zero(t, buf.Len())
	log.Warn("shown", "k", 1)
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"k":1`)
}
