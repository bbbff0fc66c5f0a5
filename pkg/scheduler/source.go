package scheduler

import "github.com/teslashibe/go-blursafe/pkg/geometry"

// Playback is a snapshot of a video's playback state.
type Playback struct {
	Paused      bool    `json:"paused"`
	Ended       bool    `json:"ended"`
	CurrentTime float64 `json:"current_time"`
}

// Advancing reports whether the video is actually producing new frames.
func (p Playback) Advancing() bool {
	return !p.Paused && !p.Ended && p.CurrentTime > 0
}

// VideoSource is the scheduler's view of one video element.
type VideoSource interface {
	geometry.Viewable

	// ID is stable for the lifetime of the element.
	ID() string

	// Present reports whether the element is still attached to the page.
	Present() bool

	// HasCurrentData reports whether a frame is buffered at the current
	// position.
	HasCurrentData() bool

	// Viewport is the visible area the display rect is measured against.
	Viewport() geometry.Size

	Playback() Playback
}

// Op is the kind of detection requested from the engine.
type Op string

const (
	OpDetectFaces Op = "detect_faces"
	OpDetectPoses Op = "detect_poses"
)

// Request is one detection request.
type Request struct {
	Op      Op     `json:"op"`
	VideoID string `json:"video_id"`
	Handle  Handle `json:"handle"`
	Token   uint64 `json:"token"`
}

// Dispatcher sends requests to a detection engine. Dispatch must not block
// waiting for the result; the engine reports back through
// Scheduler.HandleResult.
type Dispatcher interface {
	Dispatch(req Request) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(req Request) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(req Request) error { return f(req) }

// Result is an engine response for one video. Exactly one of Faces (success),
// Err or Skip is meaningful. Faces may be empty on success.
type Result struct {
	VideoID string
	Token   uint64
	Faces   []geometry.FaceBox
	Err     error
	Skip    string
}

// Failed reports whether the result carries no detections to apply.
func (r Result) Failed() bool {
	return r.Err != nil || r.Skip != ""
}
