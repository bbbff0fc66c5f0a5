package engine

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
)

// PreviewConfig controls preview rendering.
type PreviewConfig struct {
	Strategy    overlay.Strategy
	BlurKernel  int // odd
	JPEGQuality int
}

// DefaultPreviewConfig returns a heavy blur at quality 80.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{Strategy: overlay.StrategyCover, BlurKernel: 51, JPEGQuality: 80}
}

var outlineColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// Preview draws what the page shows onto a frame: with the cover strategy
// everything is blurred except the face cut-outs; with the outline strategy
// faces are boxed on the unblurred frame. faces are in intrinsic pixels and
// are scaled to the frame size.
func Preview(jpeg []byte, faces []geometry.FaceBox, intrinsic geometry.Size, cfg PreviewConfig) ([]byte, error) {
	if len(jpeg) == 0 {
		return nil, ErrNoFrame
	}
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrZeroDimensions
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	rects := make([]image.Rectangle, 0, len(faces))
	for _, f := range faces {
		r := frameRect(f, intrinsic, bounds).Intersect(bounds)
		if !r.Empty() {
			rects = append(rects, r)
		}
	}

	out := img
	if cfg.Strategy == overlay.StrategyOutline {
		for _, r := range rects {
			gocv.Rectangle(&out, r, outlineColor, 2)
		}
	} else {
		blurred := gocv.NewMat()
		defer blurred.Close()
		k := oddKernel(cfg.BlurKernel)
		gocv.GaussianBlur(img, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
		for _, r := range rects {
			src := img.Region(r)
			dst := blurred.Region(r)
			src.CopyTo(&dst)
			src.Close()
			dst.Close()
		}
		out = blurred
	}

	quality := cfg.JPEGQuality
	if quality <= 0 {
		quality = DefaultPreviewConfig().JPEGQuality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// frameRect scales an intrinsic face box into frame pixels.
func frameRect(f geometry.FaceBox, intrinsic geometry.Size, frame image.Rectangle) image.Rectangle {
	sx, sy := 1.0, 1.0
	if intrinsic.Width > 0 && intrinsic.Height > 0 {
		sx = float64(frame.Dx()) / intrinsic.Width
		sy = float64(frame.Dy()) / intrinsic.Height
	}
	return image.Rect(
		int(f.X*sx),
		int(f.Y*sy),
		int((f.X+f.Width)*sx),
		int((f.Y+f.Height)*sy),
	)
}

func oddKernel(k int) int {
	if k <= 1 {
		k = DefaultPreviewConfig().BlurKernel
	}
	if k%2 == 0 {
		k++
	}
	return k
}
