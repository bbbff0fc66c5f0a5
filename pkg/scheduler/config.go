package scheduler

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-blursafe/pkg/tracking"
)

// StalePolicy decides what happens to a result that does not answer the
// outstanding request.
type StalePolicy string

const (
	// StaleApply applies any result for a live session, even one that
	// arrives after its request timed out.
	StaleApply StalePolicy = "apply"

	// StaleDiscard drops results whose token does not match the request
	// currently in flight.
	StaleDiscard StalePolicy = "discard"
)

// ParseStalePolicy maps a name to a policy, defaulting to StaleApply.
func ParseStalePolicy(s string) StalePolicy {
	if StalePolicy(s) == StaleDiscard {
		return StaleDiscard
	}
	return StaleApply
}

// Config holds scheduler timing and behaviour.
type Config struct {
	// Cadence is the default tick rate in Hz.
	Cadence float64

	// RetryDelay is the backoff for a tick that found the session busy.
	RetryDelay time.Duration

	// Timeout forces a Requesting session back to Idle.
	Timeout time.Duration

	// ScrollThrottle is the minimum spacing of scroll-driven reflows.
	ScrollThrottle time.Duration

	Op       Op
	Stale    StalePolicy
	Tracking tracking.Config

	Clock  clock.Clock
	Logger *slog.Logger

	// OnEvent is called for every session event. It runs with the
	// scheduler lock held and must not call back into the scheduler.
	OnEvent func(Event)
}

// DefaultConfig returns 15Hz ticks, a 1s busy retry and a 5s safety timeout.
func DefaultConfig() Config {
	return Config{
		Cadence:        15,
		RetryDelay:     1000 * time.Millisecond,
		Timeout:        5000 * time.Millisecond,
		ScrollThrottle: 100 * time.Millisecond,
		Op:             OpDetectFaces,
		Stale:          StaleApply,
		Tracking:       tracking.DefaultConfig(),
	}
}

// Option configures a Scheduler.
type Option func(*Config)

// WithCadence sets the default tick rate.
func WithCadence(hz float64) Option {
	return func(c *Config) { c.Cadence = hz }
}

// WithRetryDelay sets the busy-retry backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithTimeout sets the safety timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithScrollThrottle sets the scroll reflow spacing.
func WithScrollThrottle(d time.Duration) Option {
	return func(c *Config) { c.ScrollThrottle = d }
}

// WithOp selects face or pose detection.
func WithOp(op Op) Option {
	return func(c *Config) { c.Op = op }
}

// WithStalePolicy sets the stale result policy.
func WithStalePolicy(p StalePolicy) Option {
	return func(c *Config) { c.Stale = p }
}

// WithTracking sets the temporal filter parameters.
func WithTracking(t tracking.Config) Option {
	return func(c *Config) { c.Tracking = t }
}

// WithClock injects a clock. Tests pass a *clock.Mock.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEventHandler registers an event callback.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Config) { c.OnEvent = fn }
}

// EventKind names a session event.
type EventKind string

const (
	EventArmed     EventKind = "armed"
	EventDisarmed  EventKind = "disarmed"
	EventRequested EventKind = "requested"
	EventResult    EventKind = "result"
	EventError     EventKind = "error"
	EventSkip      EventKind = "skip"
	EventTimeout   EventKind = "timeout"
	EventStale     EventKind = "stale"
)

// Event describes something that happened to a session.
type Event struct {
	Kind    EventKind `json:"kind"`
	Handle  Handle    `json:"handle"`
	VideoID string    `json:"video_id"`
	Token   uint64    `json:"token,omitempty"`
	Faces   int       `json:"faces,omitempty"`
	Stable  int       `json:"stable,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}
