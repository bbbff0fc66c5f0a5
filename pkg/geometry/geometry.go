// Package geometry maps a video's intrinsic pixel space to its on-page
// displayed rectangle.
package geometry

import "math"

// FaceBox is a face bounding box in the video's intrinsic pixel space.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box
func (b FaceBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the area of the box
func (b FaceBox) Area() float64 {
	return b.Width * b.Height
}

// Rect is an on-page rectangle in CSS pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Empty reports whether the rect has no positive area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r lies fully inside a viewport of the given size
// anchored at the origin.
func (r Rect) Within(viewport Size) bool {
	return r.Left >= 0 && r.Top >= 0 &&
		r.Right() <= viewport.Width && r.Bottom() <= viewport.Height
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewable is anything with an intrinsic size and a displayed rectangle.
type Viewable interface {
	IntrinsicSize() Size
	DisplayRect() Rect
}

// Transform is the intrinsic-to-display mapping for one render cycle.
// Scale is intrinsic width divided by displayed width.
type Transform struct {
	Rect  Rect    `json:"rect"`
	Scale float64 `json:"scale"`
}

// Resolve computes the current transform for v. It must be called every
// cycle since page layout can change at any time.
func Resolve(v Viewable) Transform {
	rect := v.DisplayRect()
	return Transform{Rect: rect, Scale: ScaleFor(v.IntrinsicSize(), rect)}
}

// ScaleFor returns intrinsic width / displayed width, or 1 when either is
// unknown or zero.
func ScaleFor(intrinsic Size, rect Rect) float64 {
	if intrinsic.Width <= 0 || rect.Width <= 0 {
		return 1
	}
	return intrinsic.Width / rect.Width
}

// ToDisplay converts an intrinsic face box into CSS pixels relative to the
// top-left corner of the displayed rect.
func (t Transform) ToDisplay(b FaceBox) FaceBox {
	s := t.Scale
	if s <= 0 {
		s = 1
	}
	return FaceBox{
		X:      b.X / s,
		Y:      b.Y / s,
		Width:  b.Width / s,
		Height: b.Height / s,
	}
}

// Percent is a face box in percentages of the overlay.
type Percent struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// ToPercent converts an intrinsic face box into overlay percentages,
// clamped to [0, 100].
func (t Transform) ToPercent(b FaceBox) Percent {
	d := t.ToDisplay(b)
	if t.Rect.Empty() {
		return Percent{}
	}
	return Percent{
		Left:   clampPct(d.X / t.Rect.Width * 100),
		Top:    clampPct(d.Y / t.Rect.Height * 100),
		Right:  clampPct((d.X + d.Width) / t.Rect.Width * 100),
		Bottom: clampPct((d.Y + d.Height) / t.Rect.Height * 100),
	}
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
