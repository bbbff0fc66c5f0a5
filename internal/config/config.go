// Package config provides configuration helpers for go-blursafe commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-blursafe/pkg/tracking"
)

// Prefix is prepended to every variable name Load reads.
const Prefix = "BLURSAFE_"

// Default server configuration.
const (
	DefaultPort      = 8080
	DefaultServerURL = "http://localhost:8080"
)

// Config is the daemon configuration.
type Config struct {
	Port     int
	LogLevel string
	Debug    bool

	// Detection
	Backend        string // "remote" or "local"
	Engine         string // "faces" or "poses"
	Cadence        float64
	RetryDelay     time.Duration
	Timeout        time.Duration
	ScrollThrottle time.Duration
	StalePolicy    string // "apply" or "discard"

	// Temporal filter. The preset supplies defaults for the fields below.
	TrackingPreset string // "default", "strict" or "responsive"
	MinSamples     int
	MatchRatio     float64
	Window         time.Duration

	// Overlay
	Strategy     string // "cover" or "outline"
	DebugMarkers bool

	// Local backend
	ModelPath   string
	Confidence  float64
	MaxFrameAge time.Duration

	StatusDebounce time.Duration
}

// Load reads BLURSAFE_* variables, falling back to defaults. PORT and
// LOG_LEVEL are honored when the prefixed form is unset.
func Load() (Config, error) {
	var errs []string
	note := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	cfg := Config{
		LogLevel:    String("LOG_LEVEL", os.Getenv("LOG_LEVEL")),
		Backend:     String("BACKEND", "remote"),
		Engine:      String("ENGINE", "faces"),
		StalePolicy: String("STALE_POLICY", "apply"),
		Strategy:    String("STRATEGY", "cover"),
		ModelPath:   String("MODEL_PATH", "models/face_detection_yunet.onnx"),

		TrackingPreset: String("TRACKING_PRESET", tracking.PresetDefault),
	}

	track, err := tracking.Preset(cfg.TrackingPreset)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	port := DefaultPort
	if p := os.Getenv("PORT"); p != "" {
		port, err = strconv.Atoi(p)
		note(wrap("PORT", err))
	}
	cfg.Port, err = Int("PORT", port)
	note(err)
	cfg.Debug, err = Bool("DEBUG", false)
	note(err)
	cfg.Cadence, err = Float("CADENCE_HZ", 15)
	note(err)
	cfg.RetryDelay, err = Duration("RETRY_DELAY", time.Second)
	note(err)
	cfg.Timeout, err = Duration("TIMEOUT", 5*time.Second)
	note(err)
	cfg.ScrollThrottle, err = Duration("SCROLL_THROTTLE", 100*time.Millisecond)
	note(err)
	cfg.MinSamples, err = Int("MIN_SAMPLES", track.MinSamples)
	note(err)
	cfg.MatchRatio, err = Float("MATCH_RATIO", track.MatchRatio)
	note(err)
	cfg.Window, err = Duration("WINDOW", track.Window)
	note(err)
	cfg.DebugMarkers, err = Bool("DEBUG_MARKERS", false)
	note(err)
	cfg.Confidence, err = Float("CONFIDENCE", 0.5)
	note(err)
	cfg.MaxFrameAge, err = Duration("MAX_FRAME_AGE", time.Second)
	note(err)
	cfg.StatusDebounce, err = Duration("STATUS_DEBOUNCE", 250*time.Millisecond)
	note(err)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.Cadence <= 0:
		return fmt.Errorf("config: cadence must be positive, got %v", c.Cadence)
	case c.MatchRatio <= 0 || c.MatchRatio > 1:
		return fmt.Errorf("config: match ratio must be in (0, 1], got %v", c.MatchRatio)
	case c.MinSamples < 0:
		return fmt.Errorf("config: min samples must not be negative, got %d", c.MinSamples)
	}
	if _, err := tracking.Preset(c.TrackingPreset); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := oneOf("backend", c.Backend, "remote", "local"); err != nil {
		return err
	}
	if err := oneOf("engine", c.Engine, "faces", "poses"); err != nil {
		return err
	}
	if err := oneOf("stale policy", c.StalePolicy, "apply", "discard"); err != nil {
		return err
	}
	return oneOf("strategy", c.Strategy, "cover", "outline")
}

// Tracking returns the filter configuration: the preset with the explicit
// MinSamples, MatchRatio and Window applied.
func (c Config) Tracking() tracking.Config {
	track, err := tracking.Preset(c.TrackingPreset)
	if err != nil {
		track = tracking.DefaultConfig()
	}
	track.MinSamples = c.MinSamples
	track.MatchRatio = c.MatchRatio
	track.Window = c.Window
	return track
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func oneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s %q not one of %s", name, v, strings.Join(allowed, ", "))
}

func wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

// String returns BLURSAFE_<key> or def if unset.
func String(key, def string) string {
	if v := os.Getenv(Prefix + key); v != "" {
		return v
	}
	return def
}

// Int returns BLURSAFE_<key> as an int or def if unset.
func Int(key string, def int) (int, error) {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	return n, wrap(Prefix+key, err)
}

// Float returns BLURSAFE_<key> as a float or def if unset.
func Float(key string, def float64) (float64, error) {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, wrap(Prefix+key, err)
}

// Bool returns BLURSAFE_<key> as a bool or def if unset.
func Bool(key string, def bool) (bool, error) {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	return b, wrap(Prefix+key, err)
}

// Duration returns BLURSAFE_<key> as a duration or def if unset.
// Bare numbers are read as milliseconds.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(Prefix + key)
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	return d, wrap(Prefix+key, err)
}

// ServerURL returns the daemon URL for CLI clients from BLURSAFE_URL.
func ServerURL() string {
	return strings.TrimRight(String("URL", DefaultServerURL), "/")
}
