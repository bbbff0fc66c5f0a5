package tracking

import (
	"testing"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

func TestMatches_Reflexive(t *testing.T) {
	boxes := []geometry.FaceBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 200, Y: 100, Width: 300, Height: 300},
		{X: 5.5, Y: 7.25, Width: 40, Height: 64},
	}
	for _, b := range boxes {
		if !Matches(b, b) {
			t.Errorf("Matches(%v, %v) should be true", b, b)
		}
	}
}

func TestMatches_Threshold(t *testing.T) {
	a := geometry.FaceBox{X: 100, Y: 100, Width: 50, Height: 100} // threshold = 20

	tests := []struct {
		name string
		b    geometry.FaceBox
		want bool
	}{
		{"small shift", geometry.FaceBox{X: 110, Y: 95, Width: 55, Height: 110}, true},
		{"just under threshold", geometry.FaceBox{X: 119.9, Y: 100, Width: 50, Height: 100}, true},
		{"exactly threshold x", geometry.FaceBox{X: 120, Y: 100, Width: 50, Height: 100}, false},
		{"too far y", geometry.FaceBox{X: 100, Y: 125, Width: 50, Height: 100}, false},
		{"width differs", geometry.FaceBox{X: 100, Y: 100, Width: 75, Height: 100}, false},
		{"height differs", geometry.FaceBox{X: 100, Y: 100, Width: 50, Height: 79}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(a, tt.b); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_ThresholdFromFirstArgument(t *testing.T) {
	a := geometry.FaceBox{X: 0, Y: 0, Width: 100, Height: 100} // threshold 20
	c := geometry.FaceBox{X: 19, Y: 0, Width: 85, Height: 85}  // threshold 17

	if !Matches(a, c) {
		t.Error("a should match c with a's threshold")
	}
	if Matches(c, a) {
		t.Error("c should not match a with c's smaller threshold")
	}
}
