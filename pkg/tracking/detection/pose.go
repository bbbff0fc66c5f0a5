package detection

import (
	"math"

	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
)

// Keypoint is a single named pose landmark in intrinsic pixels.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Pose is one detected person.
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
	Score     float64    `json:"score"`
}

// Pose derivation constants.
const (
	// MinKeypointScore is the exclusive lower bound for a usable keypoint.
	MinKeypointScore = 0.3

	// MinFaceKeypoints is how many head keypoints must survive.
	MinFaceKeypoints = 2

	// poseWidthPadding widens the keypoint span by 25% on each side.
	poseWidthPadding = 1.5

	// poseAspect is height / width of the derived box.
	poseAspect = 1.5
)

var headKeypoints = map[string]bool{
	"nose":      true,
	"left_eye":  true,
	"right_eye": true,
	"left_ear":  true,
	"right_ear": true,
}

// FaceFromPose derives a face box from the head keypoints of a pose.
// It returns false when fewer than two head keypoints score above 0.3.
func FaceFromPose(p Pose) (geometry.FaceBox, bool) {
	pts := lo.Filter(p.Keypoints, func(k Keypoint, _ int) bool {
		return headKeypoints[k.Name] && k.Score > MinKeypointScore
	})
	if len(pts) < MinFaceKeypoints {
		return geometry.FaceBox{}, false
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, k := range pts {
		minX = math.Min(minX, k.X)
		maxX = math.Max(maxX, k.X)
		minY = math.Min(minY, k.Y)
		maxY = math.Max(maxY, k.Y)
	}

	baseWidth := maxX - minX
	width := baseWidth * poseWidthPadding
	height := width * poseAspect
	centerY := (minY + maxY) / 2

	return geometry.FaceBox{
		X:      math.Max(0, minX-(width-baseWidth)/2),
		Y:      math.Max(0, centerY-height/2),
		Width:  width,
		Height: height,
	}, true
}

// FacesFromPoses derives a face box for every pose that has enough head
// keypoints. Poses without one are skipped.
func FacesFromPoses(poses []Pose) []geometry.FaceBox {
	return lo.FilterMap(poses, func(p Pose, _ int) (geometry.FaceBox, bool) {
		return FaceFromPose(p)
	})
}
