package tracking

import (
	"math"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// DefaultTolerance is the fraction of the reference box's larger side that
// every dimension must stay within.
const DefaultTolerance = 0.2

// Matches reports whether b is the same face as a. Every one of x, y,
// width and height must differ by strictly less than
// max(a.Width, a.Height) * 0.2. The threshold comes from a, so the
// relation is only approximately symmetric.
func Matches(a, b geometry.FaceBox) bool {
	return MatchesWithin(a, b, DefaultTolerance)
}

// MatchesWithin is Matches with a custom tolerance.
func MatchesWithin(a, b geometry.FaceBox, tolerance float64) bool {
	threshold := math.Max(a.Width, a.Height) * tolerance
	return math.Abs(a.X-b.X) < threshold &&
		math.Abs(a.Y-b.Y) < threshold &&
		math.Abs(a.Width-b.Width) < threshold &&
		math.Abs(a.Height-b.Height) < threshold
}
