package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Tick evaluates one cadence interval for h. Ticks for unknown handles are
// ignored.
func (s *Scheduler) Tick(h Handle) {
	s.mu.Lock()
	req, ok := s.tick(h)
	s.mu.Unlock()

	if ok {
		s.dispatch(req)
	}
}

// tick runs the guard sequence and, when every guard passes, moves the
// session to Requesting and returns the request to send.
func (s *Scheduler) tick(h Handle) (Request, bool) {
	sess, ok := s.sessions[h]
	if !ok {
		return Request{}, false
	}
	sess.stats.Ticks++
	v := sess.video

	if !v.Present() {
		s.trace(sess, "skip: not present")
		sess.stats.Skipped++
		return Request{}, false
	}

	if sess.requesting {
		if sess.retry == nil {
			sess.stats.Retries++
			sess.retry = after(s.clock, s.config.RetryDelay, func(t *task) { s.fireRetry(h, t) })
			s.trace(sess, "busy: retry in %s", s.config.RetryDelay)
		}
		return Request{}, false
	}

	if reason, ready := ready(v); !ready {
		s.trace(sess, "skip: %s", reason)
		sess.stats.Skipped++
		return Request{}, false
	}

	sess.requesting = true
	sess.token++
	s.seq++
	sess.seq = s.seq
	sess.stats.Requests++
	token := sess.token
	sess.timeout = after(s.clock, s.config.Timeout, func(t *task) { s.fireTimeout(h, token, t) })

	s.emit(sess, Event{Kind: EventRequested, Token: token})
	return Request{Op: s.config.Op, VideoID: v.ID(), Handle: h, Token: token}, true
}

// ready checks the readiness guards that are silently skipped on failure.
func ready(v VideoSource) (string, bool) {
	if !v.HasCurrentData() {
		return "no current data", false
	}
	rect := v.DisplayRect()
	if rect.Empty() {
		return "zero size", false
	}
	if !rect.Within(v.Viewport()) {
		return "outside viewport", false
	}
	if !v.Playback().Advancing() {
		return "not playing", false
	}
	return "", true
}

func (s *Scheduler) dispatch(req Request) {
	err := s.dispatcher.Dispatch(req)
	if err == nil {
		return
	}
	res := Result{VideoID: req.VideoID, Token: req.Token, Err: err}
	if errors.Is(err, ErrSkip) {
		res = Result{VideoID: req.VideoID, Token: req.Token, Skip: err.Error()}
	} else {
		s.logger.Warn("dispatch failed", "video", req.VideoID, "error", err)
	}
	if herr := s.HandleResult(res); herr != nil {
		s.logger.Debug("dispatch failure not applied", "video", req.VideoID, "error", herr)
	}
}

func (s *Scheduler) fireRetry(h Handle, t *task) {
	s.mu.Lock()
	sess, ok := s.sessions[h]
	if !ok || sess.retry != t {
		s.mu.Unlock()
		return
	}
	sess.retry = nil
	req, send := s.tick(h)
	s.mu.Unlock()

	if send {
		s.dispatch(req)
	}
}

func (s *Scheduler) fireTimeout(h Handle, token uint64, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[h]
	if !ok || sess.timeout != t || !sess.requesting || sess.token != token {
		return
	}
	sess.requesting = false
	sess.timeout = nil
	sess.stats.Timeouts++

	s.logger.Warn("detection timed out", "video", sess.video.ID(), "token", token, "after", s.config.Timeout)
	s.emit(sess, Event{Kind: EventTimeout, Token: token})
}

// HandleResult applies an engine response. Success and failure both clear
// the busy flag and cancel the safety timeout; only success touches the
// history and the overlay. An error or skip without a video id goes to the
// most recently dispatched request still in flight.
func (s *Scheduler) HandleResult(res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.VideoID == "" && (res.Err != nil || res.Skip != "") {
		sess, ok := s.latestRequesting()
		if !ok {
			return fmt.Errorf("unaddressed failure: %w", ErrUnknownVideo)
		}
		res.VideoID = sess.video.ID()
		if res.Token == 0 {
			res.Token = sess.token
		}
	}

	h, ok := s.byVideo[res.VideoID]
	if !ok {
		return fmt.Errorf("result for %s: %w", res.VideoID, ErrUnknownVideo)
	}
	sess := s.sessions[h]

	if s.config.Stale == StaleDiscard && (!sess.requesting || res.Token != sess.token) {
		sess.stats.Stale++
		s.trace(sess, "stale result token=%d current=%d", res.Token, sess.token)
		s.emit(sess, Event{Kind: EventStale, Token: res.Token})
		return fmt.Errorf("result %d for %s: %w", res.Token, res.VideoID, ErrStaleResult)
	}

	sess.requesting = false
	sess.timeout.Stop()
	sess.timeout = nil

	switch {
	case res.Err != nil:
		sess.stats.Errors++
		s.logger.Warn("detection failed", "video", res.VideoID, "error", res.Err)
		s.emit(sess, Event{Kind: EventError, Token: res.Token, Detail: res.Err.Error()})
		return nil
	case res.Skip != "":
		sess.stats.Skips++
		s.trace(sess, "engine skipped: %s", res.Skip)
		s.emit(sess, Event{Kind: EventSkip, Token: res.Token, Detail: res.Skip})
		return nil
	}

	now := s.clock.Now()
	stable := s.filter.Observe(sess.history, res.Faces, now)
	sess.stats.Results++
	sess.stable = len(stable)
	sess.lastSeen = now

	t := geometry.Resolve(sess.video)
	s.trace(sess, "result faces=%d stable=%d scale=%.2f", len(res.Faces), len(stable), t.Scale)
	s.emit(sess, Event{Kind: EventResult, Token: res.Token, Faces: len(res.Faces), Stable: len(stable)})

	return s.renderer.Render(string(h), res.VideoID, t, stable)
}

func (s *Scheduler) latestRequesting() (*session, bool) {
	var latest *session
	for _, sess := range s.sessions {
		if sess.requesting && (latest == nil || sess.seq > latest.seq) {
			latest = sess
		}
	}
	return latest, latest != nil
}

// Resize recomputes geometry for every session that currently shows at
// least one face.
func (s *Scheduler) Resize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reflow()
}

// Scroll is Resize throttled to one pass per ScrollThrottle. The first call
// reflows immediately. Calls inside the window collapse into one trailing
// pass when it ends.
func (s *Scheduler) Scroll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scrolled != nil {
		s.scrollQueued = true
		return
	}
	s.scrolled = after(s.clock, s.config.ScrollThrottle, func(t *task) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.scrolled != t {
			return
		}
		s.scrolled = nil
		if s.scrollQueued {
			s.scrollQueued = false
			s.reflow()
		}
	})
	s.reflow()
}

func (s *Scheduler) reflow() {
	for h, sess := range s.sessions {
		key := string(h)
		if !s.renderer.HasFaces(key) {
			continue
		}
		if err := s.renderer.Reflow(key, geometry.Resolve(sess.video)); err != nil {
			s.logger.Warn("reflow failed", "video", sess.video.ID(), "error", err)
		}
	}
}

func sortSessions(out []Session) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArmedAt.Equal(out[j].ArmedAt) {
			return out[i].VideoID < out[j].VideoID
		}
		return out[i].ArmedAt.Before(out[j].ArmedAt)
	})
}
