// Package overlay builds and publishes the occlusion layer drawn over each
// tracked video.
package overlay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Strategy selects how faces are drawn.
type Strategy string

const (
	// StrategyCover hides the whole video except cut-outs at stable faces.
	// Missing data means full coverage.
	StrategyCover Strategy = "cover"

	// StrategyOutline draws only box outlines with no cover mask. This is
	// the legacy variant and it fails open.
	StrategyOutline Strategy = "outline"
)

// ParseStrategy maps a name to a Strategy, defaulting to cover.
func ParseStrategy(s string) Strategy {
	if Strategy(s) == StrategyOutline {
		return StrategyOutline
	}
	return StrategyCover
}

// Marker is a per-face debug marker in CSS pixels relative to the overlay.
type Marker struct {
	Box   geometry.FaceBox `json:"box"`
	Label string           `json:"label"`
}

// Region is everything a target needs to draw one video's overlay.
type Region struct {
	Key      string             `json:"key"`
	VideoID  string             `json:"video_id"`
	Rect     geometry.Rect      `json:"rect"`
	Strategy Strategy           `json:"strategy"`
	Polygon  []Point            `json:"polygon,omitempty"`
	ClipPath string             `json:"clip_path,omitempty"`
	Outlines []geometry.FaceBox `json:"outlines,omitempty"`
	Markers  []Marker           `json:"markers,omitempty"`
	Faces    int                `json:"faces"`
}

// Target owns the shared overlay root. Each key identifies one session's
// subtree and a target must never touch another key's subtree.
type Target interface {
	// Update replaces whatever was drawn for region.Key: previous shape and
	// markers are removed before the new ones are drawn.
	Update(region Region) error

	// Remove deletes everything drawn for key.
	Remove(key string) error
}

// Config controls rendering.
type Config struct {
	Strategy     Strategy
	DebugMarkers bool
	Logger       *slog.Logger
}

// DefaultConfig returns the fail-safe cover strategy without markers.
func DefaultConfig() Config {
	return Config{Strategy: StrategyCover}
}

type rendered struct {
	videoID string
	faces   []geometry.FaceBox
}

// Renderer turns stable faces plus a transform into regions for a Target.
type Renderer struct {
	config Config
	target Target
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]rendered
}

// NewRenderer creates a renderer drawing onto target.
func NewRenderer(config Config, target Target) *Renderer {
	if config.Strategy == "" {
		config.Strategy = StrategyCover
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Component("overlay")
	}
	return &Renderer{
		config: config,
		target: target,
		logger: logger,
		last:   make(map[string]rendered),
	}
}

// Strategy returns the configured strategy.
func (r *Renderer) Strategy() Strategy {
	return r.config.Strategy
}

// Build computes the region for faces without publishing it.
func (r *Renderer) Build(key, videoID string, t geometry.Transform, faces []geometry.FaceBox) Region {
	region := Region{
		Key:      key,
		VideoID:  videoID,
		Rect:     t.Rect,
		Strategy: r.config.Strategy,
		Faces:    len(faces),
	}

	switch r.config.Strategy {
	case StrategyOutline:
		region.Outlines = lo.Map(faces, func(f geometry.FaceBox, _ int) geometry.FaceBox {
			return t.ToDisplay(f)
		})
	default:
		holes := lo.Map(faces, func(f geometry.FaceBox, _ int) geometry.Percent {
			return t.ToPercent(f)
		})
		region.Polygon = CoverPolygon(holes)
		region.ClipPath = ClipPath(region.Polygon)
	}

	if r.config.DebugMarkers {
		region.Markers = lo.Map(faces, func(f geometry.FaceBox, i int) Marker {
			return Marker{Box: t.ToDisplay(f), Label: fmt.Sprintf("face %d", i+1)}
		})
	}
	return region
}

// Render publishes the overlay for key, replacing the previous cycle's shape.
func (r *Renderer) Render(key, videoID string, t geometry.Transform, faces []geometry.FaceBox) error {
	region := r.Build(key, videoID, t, faces)

	r.mu.Lock()
	r.last[key] = rendered{videoID: videoID, faces: append([]geometry.FaceBox(nil), faces...)}
	r.mu.Unlock()

	if err := r.target.Update(region); err != nil {
		return fmt.Errorf("overlay update %s: %w", videoID, err)
	}
	return nil
}

// Reflow re-renders the last face set for key with a fresh transform.
// It is a no-op for keys that were never rendered.
func (r *Renderer) Reflow(key string, t geometry.Transform) error {
	r.mu.Lock()
	prev, ok := r.last[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Render(key, prev.videoID, t, prev.faces)
}

// HasFaces reports whether the last render for key drew at least one face.
func (r *Renderer) HasFaces(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last[key].faces) > 0
}

// Faces returns a copy of the faces last rendered for key.
func (r *Renderer) Faces(key string) []geometry.FaceBox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geometry.FaceBox(nil), r.last[key].faces...)
}

// Clear removes the overlay for key.
func (r *Renderer) Clear(key string) error {
	r.mu.Lock()
	delete(r.last, key)
	r.mu.Unlock()

	if err := r.target.Remove(key); err != nil {
		return fmt.Errorf("overlay remove %s: %w", key, err)
	}
	return nil
}
