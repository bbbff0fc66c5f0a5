// Package detection provides face detection backends and the conversion of
// raw detector output (boxes or pose keypoints) into intrinsic face boxes.
package detection

import (
	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// FaceBox scales the normalized detection to a frame of the given
// intrinsic size.
func (d Detection) FaceBox(intrinsic geometry.Size) geometry.FaceBox {
	return geometry.FaceBox{
		X:      d.X * intrinsic.Width,
		Y:      d.Y * intrinsic.Height,
		Width:  d.W * intrinsic.Width,
		Height: d.H * intrinsic.Height,
	}
}

// FaceBoxes converts every detection at or above minConfidence.
func FaceBoxes(dets []Detection, intrinsic geometry.Size, minConfidence float64) []geometry.FaceBox {
	kept := lo.Filter(dets, func(d Detection, _ int) bool {
		return d.Confidence >= minConfidence
	})
	return lo.Map(kept, func(d Detection, _ int) geometry.FaceBox {
		return d.FaceBox(intrinsic)
	})
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in the image and returns their positions
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
	MaxFaces         int     // Upper bound on faces reported per frame
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		MaxFaces:         10,
	}
}
