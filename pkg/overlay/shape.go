package overlay

import (
	"fmt"
	"slices"
	"strings"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Point is a polygon vertex in percent of the overlay box.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FullCover returns the four overlay corners, clockwise from top-left.
func FullCover() []Point {
	return []Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
}

// CoverPolygon builds a single polygon that covers the whole overlay except
// for one rectangular hole per face.
//
// Each hole is joined to the left edge by a zero-width bridge: walk in from
// (0, top) to the hole, trace its corners against the outer winding, and walk
// back out. Holes are spliced bottom-most first so the return walk up the
// left edge stays monotonic. With no faces the result is FullCover.
func CoverPolygon(holes []geometry.Percent) []Point {
	pts := FullCover()
	if len(holes) == 0 {
		return pts
	}

	ordered := slices.Clone(holes)
	slices.SortStableFunc(ordered, func(a, b geometry.Percent) int {
		switch {
		case a.Top > b.Top:
			return -1
		case a.Top < b.Top:
			return 1
		}
		return 0
	})

	for _, h := range ordered {
		pts = append(pts,
			Point{0, h.Top},
			Point{h.Left, h.Top},
			Point{h.Left, h.Bottom},
			Point{h.Right, h.Bottom},
			Point{h.Right, h.Top},
			Point{h.Left, h.Top},
			Point{0, h.Top},
		)
	}
	return pts
}

// ClipPath renders points as a CSS polygon() value.
func ClipPath(pts []Point) string {
	var b strings.Builder
	b.WriteString("polygon(")
	for i, p := range pts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s%% %s%%", trimFloat(p.X), trimFloat(p.Y))
	}
	b.WriteString(")")
	return b.String()
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
