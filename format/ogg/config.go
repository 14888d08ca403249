package ogg

import (
	"log/slog"
	"time"
)

// Config holds the tuning of the seek and range scans.
type Config struct {
	// PageStep is the byte distance of the first backoff step of a
	// bisection guess, and the margin kept before the bracket end.
	PageStep int64 `yaml:"page_step"`
	// MaxBackoff caps the number of backoff doublings.
	MaxBackoff int `yaml:"max_backoff"`
	// Fuzz is how far before the target a bisection may land.
	Fuzz time.Duration `yaml:"fuzz"`
	// EndScanStep is the first step of the backward end time scan.
	EndScanStep int64 `yaml:"end_scan_step"`

	Logger *slog.Logger `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		PageStep:    5000,
		MaxBackoff:  6,
		Fuzz:        500 * time.Millisecond,
		EndScanStep: 5000,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageStep <= 0 {
		c.PageStep = def.PageStep
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.Fuzz <= 0 {
		c.Fuzz = def.Fuzz
	}
	if c.EndScanStep <= 0 {
		c.EndScanStep = def.EndScanStep
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
