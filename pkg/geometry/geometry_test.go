package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeVideo struct {
	intrinsic Size
	rect      Rect
}

func (f fakeVideo) IntrinsicSize() Size { return f.intrinsic }
func (f fakeVideo) DisplayRect() Rect   { return f.rect }

func TestResolve_Scale(t *testing.T) {
	tests := []struct {
		name      string
		intrinsic Size
		rect      Rect
		want      float64
	}{
		{"half size", Size{1920, 1080}, Rect{Width: 960, Height: 540}, 2},
		{"native size", Size{640, 360}, Rect{Width: 640, Height: 360}, 1},
		{"unknown intrinsic", Size{}, Rect{Width: 640, Height: 360}, 1},
		{"zero width rect", Size{1920, 1080}, Rect{}, 1},
		{"upscaled", Size{320, 240}, Rect{Width: 640, Height: 480}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Resolve(fakeVideo{intrinsic: tt.intrinsic, rect: tt.rect})
			assert.InDelta(t, tt.want, tr.Scale, 1e-9)
			assert.Equal(t, tt.rect, tr.Rect)
		})
	}
}

func TestTransform_ToDisplay(t *testing.T) {
	tr := Resolve(fakeVideo{
		intrinsic: Size{1920, 1080},
		rect:      Rect{Left: 40, Top: 80, Width: 960, Height: 540},
	})

	got := tr.ToDisplay(FaceBox{X: 200, Y: 100, Width: 300, Height: 300})
	assert.Equal(t, FaceBox{X: 100, Y: 50, Width: 150, Height: 150}, got)
}

func TestTransform_ToPercent(t *testing.T) {
	tr := Transform{Rect: Rect{Width: 200, Height: 100}, Scale: 2}

	got := tr.ToPercent(FaceBox{X: 40, Y: 20, Width: 80, Height: 40})
	assert.InDelta(t, 10.0, got.Left, 1e-9)
	assert.InDelta(t, 10.0, got.Top, 1e-9)
	assert.InDelta(t, 30.0, got.Right, 1e-9)
	assert.InDelta(t, 30.0, got.Bottom, 1e-9)

	// Boxes that spill past the video edge are clamped.
	got = tr.ToPercent(FaceBox{X: 360, Y: 180, Width: 100, Height: 100})
	assert.Equal(t, 100.0, got.Right)
	assert.Equal(t, 100.0, got.Bottom)
}

func TestRect_Within(t *testing.T) {
	vp := Size{Width: 1280, Height: 720}

	assert.True(t, Rect{Left: 0, Top: 0, Width: 1280, Height: 720}.Within(vp))
	assert.True(t, Rect{Left: 100, Top: 100, Width: 640, Height: 360}.Within(vp))
	assert.False(t, Rect{Left: -1, Top: 100, Width: 640, Height: 360}.Within(vp))
	assert.False(t, Rect{Left: 700, Top: 100, Width: 640, Height: 360}.Within(vp))
	assert.False(t, Rect{Left: 0, Top: 500, Width: 640, Height: 360}.Within(vp))
}

func TestFaceBox_CenterArea(t *testing.T) {
	b := FaceBox{X: 10, Y: 20, Width: 30, Height: 40}
	x, y := b.Center()
	assert.Equal(t, 25.0, x)
	assert.Equal(t, 40.0, y)
	assert.Equal(t, 1200.0, b.Area())
}
