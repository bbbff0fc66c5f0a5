// Package scheduler runs the per-video detection state machine.
//
// Each armed video gets a session that ticks at a fixed cadence. A tick that
// passes the readiness guards dispatches one detection request; the result
// is smoothed by the temporal filter and drawn by the overlay renderer. At
// most one request is in flight per video, a busy tick queues a single
// retry, and a safety timeout returns a hung session to Idle.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/debug"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
	"github.com/teslashibe/go-blursafe/pkg/tracking"
)

var (
	ErrUnknownVideo = errors.New("scheduler: unknown video")
	ErrStaleResult  = errors.New("scheduler: stale result")
	ErrNilVideo     = errors.New("scheduler: nil video source")

	// ErrSkip marks a dispatch the engine declined for a transient reason,
	// such as a model still loading. The session returns to Idle quietly.
	ErrSkip = errors.New("scheduler: request skipped")
)

// Scheduler owns every session. All entry points are serialized by one
// mutex, including timer callbacks.
type Scheduler struct {
	config     Config
	clock      clock.Clock
	logger     *slog.Logger
	dispatcher Dispatcher
	renderer   *overlay.Renderer
	filter     *tracking.Filter

	mu       sync.Mutex
	sessions map[Handle]*session
	byVideo  map[string]Handle
	seq      uint64

	scrolled     *task
	scrollQueued bool
}

// New creates a scheduler dispatching through d and drawing with r.
func New(d Dispatcher, r *overlay.Renderer, opts ...Option) *Scheduler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	def := DefaultConfig()
	if cfg.Cadence <= 0 {
		cfg.Cadence = def.Cadence
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ScrollThrottle <= 0 {
		cfg.ScrollThrottle = def.ScrollThrottle
	}
	if cfg.Op == "" {
		cfg.Op = OpDetectFaces
	}
	if cfg.Stale == "" {
		cfg.Stale = StaleApply
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("scheduler")
	}

	return &Scheduler{
		config:     cfg,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		dispatcher: d,
		renderer:   r,
		filter:     tracking.NewFilter(cfg.Tracking),
		sessions:   make(map[Handle]*session),
		byVideo:    make(map[string]Handle),
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.config
}

// Renderer returns the overlay renderer.
func (s *Scheduler) Renderer() *overlay.Renderer {
	return s.renderer
}

func interval(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// Arm registers video and starts ticking it at cadenceHz (the configured
// default when <= 0). Arming an already armed video returns its handle; a
// different cadence replaces the cadence task. The fail-safe full cover is
// drawn immediately.
func (s *Scheduler) Arm(video VideoSource, cadenceHz float64) (Handle, error) {
	if video == nil {
		return "", ErrNilVideo
	}
	if cadenceHz <= 0 {
		cadenceHz = s.config.Cadence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.byVideo[video.ID()]; ok {
		sess := s.sessions[h]
		sess.video = video
		if sess.cadence != cadenceHz {
			sess.ticker.Stop()
			sess.cadence = cadenceHz
			sess.ticker = s.startTicker(h, cadenceHz)
			s.logger.Debug("cadence replaced", "video", video.ID(), "hz", cadenceHz)
		}
		return h, nil
	}

	h := newHandle()
	sess := &session{
		handle:  h,
		video:   video,
		cadence: cadenceHz,
		armedAt: s.clock.Now(),
		history: s.filter.NewHistory(),
	}
	s.sessions[h] = sess
	s.byVideo[video.ID()] = h

	if err := s.renderer.Render(string(h), video.ID(), geometry.Resolve(video), nil); err != nil {
		s.logger.Warn("initial cover failed", "video", video.ID(), "error", err)
	}
	sess.ticker = s.startTicker(h, cadenceHz)

	s.logger.Info("video armed", "video", video.ID(), "handle", h, "hz", cadenceHz)
	s.emit(sess, Event{Kind: EventArmed})
	return h, nil
}

func (s *Scheduler) startTicker(h Handle, hz float64) *task {
	return every(s.clock, interval(hz), func(t *task) {
		if t.stopped() {
			return
		}
		s.Tick(h)
	})
}

// Disarm stops and removes the session for videoID and clears its overlay.
func (s *Scheduler) Disarm(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.byVideo[videoID]
	if !ok {
		return fmt.Errorf("disarm %s: %w", videoID, ErrUnknownVideo)
	}
	return s.disarm(s.sessions[h])
}

func (s *Scheduler) disarm(sess *session) error {
	sess.stop()
	delete(s.sessions, sess.handle)
	delete(s.byVideo, sess.video.ID())
	sess.history.Clear()

	s.logger.Info("video disarmed", "video", sess.video.ID(), "handle", sess.handle)
	s.emit(sess, Event{Kind: EventDisarmed})

	if err := s.renderer.Clear(string(sess.handle)); err != nil {
		return err
	}
	return nil
}

// Reset disarms every session.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if err := s.disarm(sess); err != nil {
			s.logger.Warn("overlay clear failed", "video", sess.video.ID(), "error", err)
		}
	}
	s.scrolled.Stop()
	s.scrolled = nil
	s.scrollQueued = false
}

// Close is Reset.
func (s *Scheduler) Close() error {
	s.Reset()
	return nil
}

// Sessions returns a snapshot of every session ordered by arm time.
func (s *Scheduler) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	out := lo.MapToSlice(s.sessions, func(_ Handle, sess *session) Session {
		return sess.snapshot(now)
	})
	sortSessions(out)
	return out
}

// Session returns the snapshot for videoID.
func (s *Scheduler) Session(videoID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.byVideo[videoID]
	if !ok {
		return Session{}, false
	}
	return s.sessions[h].snapshot(s.clock.Now()), true
}

// State returns the state of h.
func (s *Scheduler) State(h Handle) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[h]
	if !ok {
		return Idle, false
	}
	return sess.state(), true
}

// Len returns the number of armed videos.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Scheduler) emit(sess *session, e Event) {
	if s.config.OnEvent == nil {
		return
	}
	e.Handle = sess.handle
	e.VideoID = sess.video.ID()
	e.At = s.clock.Now()
	s.config.OnEvent(e)
}

func (s *Scheduler) trace(sess *session, format string, args ...any) {
	debug.Log("scheduler[%s]: "+format+"\n", append([]any{sess.video.ID()}, args...)...)
}
