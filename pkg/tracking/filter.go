package tracking

import (
	"time"

	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/pkg/debug"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Filter decides which reported faces are stable enough to draw.
// There is no face identity: every cycle matches from scratch against the
// history window.
type Filter struct {
	config Config
}

// NewFilter creates a filter. Zero config fields take defaults.
func NewFilter(config Config) *Filter {
	return &Filter{config: config.withDefaults()}
}

// Config returns the effective configuration.
func (f *Filter) Config() Config {
	return f.config
}

// NewHistory creates a history using the filter's window.
func (f *Filter) NewHistory() *History {
	return NewHistory(f.config.Window)
}

// MatchRatio returns the fraction of windowed observations containing a
// face matching face. An empty history yields 0.
func (f *Filter) MatchRatio(h *History, face geometry.FaceBox, now time.Time) float64 {
	h.Prune(now)
	total := len(h.entries)
	if total == 0 {
		return 0
	}
	matching := lo.CountBy(h.entries, func(o Observation) bool {
		return lo.ContainsBy(o.Faces, func(other geometry.FaceBox) bool {
			return MatchesWithin(face, other, f.config.MatchTolerance)
		})
	})
	return float64(matching) / float64(total)
}

// Accept reports whether face has been seen consistently enough.
func (f *Filter) Accept(h *History, face geometry.FaceBox, now time.Time) bool {
	if h.Len(now) < f.config.MinSamples {
		return false
	}
	ratio := f.MatchRatio(h, face, now)
	ok := ratio >= f.config.MatchRatio
	debug.TrackLog("filter: face=(%.0f,%.0f,%.0fx%.0f) ratio=%.2f accepted=%v\n",
		face.X, face.Y, face.Width, face.Height, ratio, ok)
	return ok
}

// Stable returns the subset of faces that Accept approves.
func (f *Filter) Stable(h *History, faces []geometry.FaceBox, now time.Time) []geometry.FaceBox {
	return lo.Filter(faces, func(face geometry.FaceBox, _ int) bool {
		return f.Accept(h, face, now)
	})
}

// Observe records faces and returns the stable subset in one step.
func (f *Filter) Observe(h *History, faces []geometry.FaceBox, now time.Time) []geometry.FaceBox {
	h.Record(faces, now)
	return f.Stable(h, faces, now)
}
