package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vdkogg/oggseek/format/ogg"
)

type config struct {
	LogLevel string     `yaml:"log_level"`
	Listen   string     `yaml:"listen"`
	Ogg      ogg.Config `yaml:"ogg"`
}

func defaultConfig() config {
	return config{
		LogLevel: "info",
		Ogg:      ogg.DefaultConfig(),
	}
}

// loadConfig reads a YAML config file. Keys missing from the file keep
// their defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
