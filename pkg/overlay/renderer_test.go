package overlay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

var transform = geometry.Transform{
	Rect:  geometry.Rect{Left: 10, Top: 20, Width: 960, Height: 540},
	Scale: 2,
}

func newTestRenderer(cfg Config) (*Renderer, *MemoryTarget) {
	cfg.Logger = log.Discard()
	target := NewMemoryTarget()
	return NewRenderer(cfg, target), target
}

func TestRenderer_CoverZeroFaces(t *testing.T) {
	r, target := newTestRenderer(DefaultConfig())

	require.NoError(t, r.Render("k1", "video-1", transform, nil))

	region, ok := target.Region("k1")
	require.True(t, ok)
	assert.Equal(t, StrategyCover, region.Strategy)
	assert.Equal(t, FullCover(), region.Polygon)
	assert.Equal(t, transform.Rect, region.Rect)
	assert.Equal(t, 0, region.Faces)
	assert.False(t, r.HasFaces("k1"))
}

func TestRenderer_CoverWithFace(t *testing.T) {
	r, target := newTestRenderer(DefaultConfig())
	face := geometry.FaceBox{X: 200, Y: 100, Width: 300, Height: 300}

	require.NoError(t, r.Render("k1", "video-1", transform, []geometry.FaceBox{face}))

	region, _ := target.Region("k1")
	require.Len(t, region.Polygon, 11)
	// Display box is (100,50,150,150) inside a 960x540 overlay.
	hole := region.Polygon[5]
	assert.InDelta(t, 100.0/960*100, hole.X, 1e-9)
	assert.InDelta(t, 50.0/540*100, hole.Y, 1e-9)
	assert.True(t, r.HasFaces("k1"))
	assert.Empty(t, region.Markers)
}

func TestRenderer_OutlineStrategy(t *testing.T) {
	r, target := newTestRenderer(Config{Strategy: StrategyOutline})
	face := geometry.FaceBox{X: 200, Y: 100, Width: 300, Height: 300}

	require.NoError(t, r.Render("k1", "video-1", transform, []geometry.FaceBox{face}))

	region, _ := target.Region("k1")
	assert.Empty(t, region.Polygon)
	assert.Equal(t, []geometry.FaceBox{{X: 100, Y: 50, Width: 150, Height: 150}}, region.Outlines)
}

func TestRenderer_DebugMarkers(t *testing.T) {
	r, target := newTestRenderer(Config{DebugMarkers: true})
	faces := []geometry.FaceBox{
		{X: 0, Y: 0, Width: 20, Height: 20},
		{X: 100, Y: 100, Width: 20, Height: 20},
	}

	require.NoError(t, r.Render("k1", "video-1", transform, faces))

	region, _ := target.Region("k1")
	require.Len(t, region.Markers, 2)
	assert.Equal(t, "face 2", region.Markers[1].Label)
	assert.Equal(t, geometry.FaceBox{X: 50, Y: 50, Width: 10, Height: 10}, region.Markers[1].Box)
}

func TestRenderer_ReplacesPreviousCycle(t *testing.T) {
	r, target := newTestRenderer(DefaultConfig())
	face := geometry.FaceBox{X: 200, Y: 100, Width: 300, Height: 300}

	require.NoError(t, r.Render("k1", "video-1", transform, []geometry.FaceBox{face}))
	require.NoError(t, r.Render("k1", "video-1", transform, nil))

	region, _ := target.Region("k1")
	assert.Equal(t, FullCover(), region.Polygon)
	assert.Len(t, target.Regions(), 1)
}

func TestRenderer_SessionsAreIsolated(t *testing.T) {
	r, target := newTestRenderer(DefaultConfig())
	face := geometry.FaceBox{X: 200, Y: 100, Width: 300, Height: 300}

	require.NoError(t, r.Render("k1", "video-1", transform, []geometry.FaceBox{face}))
	require.NoError(t, r.Render("k2", "video-2", transform, nil))
	require.NoError(t, r.Clear("k2"))

	_, ok := target.Region("k2")
	assert.False(t, ok)
	region, ok := target.Region("k1")
	require.True(t, ok)
	assert.Equal(t, 1, region.Faces)
}

func TestRenderer_Reflow(t *testing.T) {
	r, target := newTestRenderer(DefaultConfig())
	face := geometry.FaceBox{X: 200, Y: 100, Width: 300, Height: 300}

	// Never rendered: no-op.
	require.NoError(t, r.Reflow("missing", transform))
	updates, _ := target.Counts()
	assert.Equal(t, 0, updates)

	require.NoError(t, r.Render("k1", "video-1", transform, []geometry.FaceBox{face}))

	moved := geometry.Transform{Rect: geometry.Rect{Left: 300, Top: 0, Width: 480, Height: 270}, Scale: 4}
	require.NoError(t, r.Reflow("k1", moved))

	region, _ := target.Region("k1")
	assert.Equal(t, moved.Rect, region.Rect)
	assert.Equal(t, "video-1", region.VideoID)
	assert.Equal(t, []geometry.FaceBox{face}, r.Faces("k1"))
}

type failingTarget struct{}

func (failingTarget) Update(Region) error { return errors.New("gone") }
func (failingTarget) Remove(string) error { return errors.New("gone") }

func TestRenderer_TargetErrorsWrapped(t *testing.T) {
	r := NewRenderer(Config{Logger: log.Discard()}, failingTarget{})

	err := r.Render("k1", "video-1", transform, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video-1")
	assert.Error(t, r.Clear("k1"))
}

func TestTee(t *testing.T) {
	a, b := NewMemoryTarget(), NewMemoryTarget()
	tee := Tee{a, b}

	require.NoError(t, tee.Update(Region{Key: "k"}))
	_, okA := a.Region("k")
	_, okB := b.Region("k")
	assert.True(t, okA && okB)

	assert.Error(t, Tee{a, failingTarget{}}.Remove("k"))
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyOutline, ParseStrategy("outline"))
	assert.Equal(t, StrategyCover, ParseStrategy("cover"))
	assert.Equal(t, StrategyCover, ParseStrategy(""))
	assert.Equal(t, StrategyCover, ParseStrategy("nonsense"))
}
