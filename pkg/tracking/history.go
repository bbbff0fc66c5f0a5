package tracking

import (
	"time"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Observation is one detection result.
type Observation struct {
	Timestamp time.Time
	Faces     []geometry.FaceBox
}

// History is a rolling, oldest-first window of observations for one video.
// Entries older than the window are pruned lazily on every access.
// History is not safe for concurrent use; the scheduler serializes access.
type History struct {
	window  time.Duration
	entries []Observation
}

// NewHistory creates an empty history with the given window.
func NewHistory(window time.Duration) *History {
	if window <= 0 {
		window = DefaultConfig().Window
	}
	return &History{window: window}
}

// Window returns the configured window.
func (h *History) Window() time.Duration {
	return h.window
}

// Record appends a new observation and prunes. It should be called once per
// detection result, before filtering, so the current observation can back
// future acceptances.
func (h *History) Record(faces []geometry.FaceBox, now time.Time) {
	cp := make([]geometry.FaceBox, len(faces))
	copy(cp, faces)
	h.entries = append(h.entries, Observation{Timestamp: now, Faces: cp})
	h.Prune(now)
}

// Prune drops every entry with timestamp < now - window.
func (h *History) Prune(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.entries) && h.entries[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// Copy down so the backing array doesn't grow without bound.
	n := copy(h.entries, h.entries[i:])
	for j := n; j < len(h.entries); j++ {
		h.entries[j] = Observation{}
	}
	h.entries = h.entries[:n]
}

// Entries prunes and returns a copy of the current window.
func (h *History) Entries(now time.Time) []Observation {
	h.Prune(now)
	out := make([]Observation, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len prunes and returns the number of entries in the window.
func (h *History) Len(now time.Time) int {
	h.Prune(now)
	return len(h.entries)
}

// Clear removes all entries.
func (h *History) Clear() {
	h.entries = nil
}
