package tracking

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the temporal consistency parameters.
type Config struct {
	// Window is how far back observations are kept.
	Window time.Duration

	// MatchRatio is the fraction of windowed observations that must contain
	// a matching face for it to count as stable.
	MatchRatio float64

	// MinSamples is the minimum number of observations in the window before
	// any face can be accepted. The observation being filtered is counted.
	MinSamples int

	// MatchTolerance is the per-dimension tolerance as a fraction of the
	// larger side of the reference box.
	MatchTolerance float64
}

// DefaultConfig returns the recommended configuration: 1s window, 80%
// agreement, at least 5 samples (5 ticks at 15Hz).
func DefaultConfig() Config {
	return Config{
		Window:         1000 * time.Millisecond,
		MatchRatio:     0.8,
		MinSamples:     5,
		MatchTolerance: 0.2,
	}
}

// StrictConfig trades latency for fewer false positives.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.MatchRatio = 0.9
	cfg.MinSamples = 8
	return cfg
}

// ResponsiveConfig draws faces sooner at the cost of more flicker.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = 600 * time.Millisecond
	cfg.MatchRatio = 0.6
	cfg.MinSamples = 3
	return cfg
}

// Preset names accepted by Preset.
const (
	PresetDefault    = "default"
	PresetStrict     = "strict"
	PresetResponsive = "responsive"
)

// ErrUnknownPreset is returned by Preset for an unrecognized name.
var ErrUnknownPreset = errors.New("tracking: unknown preset")

// Preset returns the named configuration. An empty name is the default.
func Preset(name string) (Config, error) {
	switch name {
	case "", PresetDefault:
		return DefaultConfig(), nil
	case PresetStrict:
		return StrictConfig(), nil
	case PresetResponsive:
		return ResponsiveConfig(), nil
	default:
		return Config{}, fmt.Errorf("%w %q", ErrUnknownPreset, name)
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MatchRatio <= 0 {
		c.MatchRatio = d.MatchRatio
	}
	if c.MinSamples < 0 {
		c.MinSamples = 0
	}
	if c.MatchTolerance <= 0 {
		c.MatchTolerance = d.MatchTolerance
	}
	return c
}
