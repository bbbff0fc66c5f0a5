package tracking

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Window != time.Second {
		t.Errorf("Expected Window=1s, got %v", cfg.Window)
	}
	if cfg.MatchRatio != 0.8 {
		t.Errorf("Expected MatchRatio=0.8, got %v", cfg.MatchRatio)
	}
	if cfg.MinSamples != 5 {
		t.Errorf("Expected MinSamples=5, got %v", cfg.MinSamples)
	}
	if cfg.MatchTolerance != DefaultTolerance {
		t.Errorf("Expected MatchTolerance=%v, got %v", DefaultTolerance, cfg.MatchTolerance)
	}
}

func TestPresetConfigs_ValidRange(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"Default", DefaultConfig()},
		{"Strict", StrictConfig()},
		{"Responsive", ResponsiveConfig()},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			if tc.cfg.MatchRatio <= 0 || tc.cfg.MatchRatio > 1 {
				t.Errorf("MatchRatio out of range: %v", tc.cfg.MatchRatio)
			}
			if tc.cfg.MinSamples < 1 {
				t.Errorf("MinSamples should be at least 1, got %d", tc.cfg.MinSamples)
			}
			if tc.cfg.Window <= 0 {
				t.Errorf("Window should be positive, got %v", tc.cfg.Window)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Window != time.Second || cfg.MatchRatio != 0.8 || cfg.MatchTolerance != 0.2 {
		t.Errorf("zero config should take defaults, got %+v", cfg)
	}
	// MinSamples of zero is a legitimate choice and is kept.
	if cfg.MinSamples != 0 {
		t.Errorf("MinSamples should stay 0, got %d", cfg.MinSamples)
	}
}

func TestPreset(t *testing.T) {
	tests := []struct {
		name string
		want Config
	}{
		{"", DefaultConfig()},
		{PresetDefault, DefaultConfig()},
		{PresetStrict, StrictConfig()},
		{PresetResponsive, ResponsiveConfig()},
	}

	for _, tt := range tests {
		got, err := Preset(tt.name)
		if err != nil {
			t.Fatalf("Preset(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Preset(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
	}

	if _, err := Preset("paranoid"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("Preset(paranoid) error = %v, want ErrUnknownPreset", err)
	}
}
