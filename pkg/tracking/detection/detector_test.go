package detection

import (
	"math"
	"testing"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{
			name:    "center of image",
			det:     Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			expectX: 0.5,
			expectY: 0.5,
		},
		{
			name:    "top left corner",
			det:     Detection{X: 0, Y: 0, W: 0.2, H: 0.2},
			expectX: 0.1,
			expectY: 0.1,
		},
		{
			name:    "bottom right corner",
			det:     Detection{X: 0.8, Y: 0.8, W: 0.2, H: 0.2},
			expectX: 0.9,
			expectY: 0.9,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestDetection_Area(t *testing.T) {
	tests := []struct {
		name   string
		det    Detection
		expect float64
	}{
		{
			name:   "quarter of image",
			det:    Detection{X: 0, Y: 0, W: 0.5, H: 0.5},
			expect: 0.25,
		},
		{
			name:   "small face",
			det:    Detection{X: 0, Y: 0, W: 0.1, H: 0.2},
			expect: 0.02,
		},
		{
			name:   "full image",
			det:    Detection{X: 0, Y: 0, W: 1.0, H: 1.0},
			expect: 1.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			area := tc.det.Area()
			// Use tolerance for floating-point comparison
			diff := area - tc.expect
			if diff < -0.0001 || diff > 0.0001 {
				t.Errorf("Area: got %.4f, want %.4f", area, tc.expect)
			}
		})
	}
}

func TestDetection_FaceBox(t *testing.T) {
	d := Detection{X: 0.25, Y: 0.5, W: 0.1, H: 0.2, Confidence: 0.9}
	got := d.FaceBox(geometry.Size{Width: 1920, Height: 1080})

	want := geometry.FaceBox{X: 480, Y: 540, Width: 192, Height: 216}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 ||
		math.Abs(got.Width-want.Width) > 1e-9 || math.Abs(got.Height-want.Height) > 1e-9 {
		t.Errorf("FaceBox: got %+v, want %+v", got, want)
	}
}

func TestFaceBoxes_DropsLowConfidence(t *testing.T) {
	dets := []Detection{
		{X: 0.1, Y: 0.1, W: 0.1, H: 0.1, Confidence: 0.9},
		{X: 0.5, Y: 0.5, W: 0.1, H: 0.1, Confidence: 0.2},
		{X: 0.7, Y: 0.2, W: 0.1, H: 0.1, Confidence: 0.5},
	}

	boxes := FaceBoxes(dets, geometry.Size{Width: 100, Height: 100}, 0.5)
	if len(boxes) != 2 {
		t.Fatalf("FaceBoxes: got %d boxes, want 2", len(boxes))
	}
	if math.Abs(boxes[1].X-70) > 1e-9 {
		t.Errorf("FaceBoxes: second box X = %v, want 70", boxes[1].X)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}

	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}

	if cfg.InputWidth <= 0 {
		t.Errorf("DefaultConfig: InputWidth should be positive, got %d", cfg.InputWidth)
	}

	if cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: InputHeight should be positive, got %d", cfg.InputHeight)
	}
}
