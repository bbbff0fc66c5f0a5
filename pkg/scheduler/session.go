package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-blursafe/pkg/tracking"
)

// Handle identifies a session. It is opaque to callers and is also the key
// of the session's overlay region.
type Handle string

func newHandle() Handle {
	return Handle(uuid.New().String())
}

// State is a session's processing state.
type State int

const (
	// Idle: no request in flight.
	Idle State = iota
	// Requesting: one request dispatched, waiting for a result or timeout.
	Requesting
	// WaitingRetry: idle with a busy-retry queued.
	WaitingRetry
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case WaitingRetry:
		return "waiting_retry"
	default:
		return "unknown"
	}
}

// MarshalText lets State show up as a name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Requesting, WaitingRetry} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("scheduler: unknown state %q", text)
}

// Stats counts what happened to a session.
type Stats struct {
	Ticks    int `json:"ticks"`
	Skipped  int `json:"skipped"`
	Requests int `json:"requests"`
	Results  int `json:"results"`
	Errors   int `json:"errors"`
	Skips    int `json:"skips"`
	Timeouts int `json:"timeouts"`
	Stale    int `json:"stale"`
	Retries  int `json:"retries"`
}

type session struct {
	handle  Handle
	video   VideoSource
	cadence float64
	armedAt time.Time

	requesting bool
	token      uint64
	seq        uint64

	ticker  *task
	retry   *task
	timeout *task

	history  *tracking.History
	stable   int
	lastSeen time.Time
	stats    Stats
}

func (s *session) state() State {
	switch {
	case s.requesting:
		return Requesting
	case s.retry != nil:
		return WaitingRetry
	default:
		return Idle
	}
}

// stop cancels every pending task.
func (s *session) stop() {
	s.ticker.Stop()
	s.retry.Stop()
	s.timeout.Stop()
	s.ticker, s.retry, s.timeout = nil, nil, nil
}

// Session is a read-only snapshot of one session.
type Session struct {
	Handle   Handle    `json:"handle"`
	VideoID  string    `json:"video_id"`
	State    State     `json:"state"`
	Token    uint64    `json:"token"`
	Cadence  float64   `json:"cadence_hz"`
	ArmedAt  time.Time `json:"armed_at"`
	LastSeen time.Time `json:"last_result,omitempty"`
	Stable   int       `json:"stable_faces"`
	History  int       `json:"history"`
	Stats    Stats     `json:"stats"`
}

func (s *session) snapshot(now time.Time) Session {
	return Session{
		Handle:   s.handle,
		VideoID:  s.video.ID(),
		State:    s.state(),
		Token:    s.token,
		Cadence:  s.cadence,
		ArmedAt:  s.armedAt,
		LastSeen: s.lastSeen,
		Stable:   s.stable,
		History:  s.history.Len(now),
		Stats:    s.stats,
	}
}
