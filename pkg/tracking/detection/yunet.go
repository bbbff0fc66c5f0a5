package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-blursafe/pkg/debug"
)

// Sentinel errors for detector setup and input problems.
var (
	ErrModelNotFound = errors.New("detection: model file not found")
	ErrEmptyFrame    = errors.New("detection: empty frame")
)

// YuNet output layout: 0-3 box, 4-13 five landmarks, 14 score.
const (
	yunetColX     = 0
	yunetColY     = 1
	yunetColW     = 2
	yunetColH     = 3
	yunetColScore = 14

	yunetNMSThresh = 0.3
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // FaceDetectorYN is not reentrant
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	// Input size is reset per frame in Detect.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		yunetNMSThresh,
		topK(cfg.MaxFaces),
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect decodes a JPEG frame and returns normalized face detections.
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyFrame
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	return d.DetectMat(img)
}

// DetectMat runs detection on an already decoded BGR image.
func (d *YuNetDetector) DetectMat(img gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, h := float64(img.Cols()), float64(img.Rows())
	if w == 0 || h == 0 {
		return nil, ErrEmptyFrame
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	detections := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		score := float64(faces.GetFloatAt(r, yunetColScore))
		if score < d.config.ConfidenceThresh {
			continue
		}
		detections = append(detections, Detection{
			X:          float64(faces.GetFloatAt(r, yunetColX)) / w,
			Y:          float64(faces.GetFloatAt(r, yunetColY)) / h,
			W:          float64(faces.GetFloatAt(r, yunetColW)) / w,
			H:          float64(faces.GetFloatAt(r, yunetColH)) / h,
			Confidence: score,
		})
		if d.config.MaxFaces > 0 && len(detections) == d.config.MaxFaces {
			break
		}
	}

	if len(detections) > 0 {
		debug.TrackLog("yunet: %d face(s) in %.0fx%.0f frame\n", len(detections), w, h)
	}
	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// topK bounds how many candidates the detector keeps before NMS.
func topK(maxFaces int) int {
	if maxFaces <= 0 {
		return 5000
	}
	return maxFaces * 10
}
