// Package engine connects the scheduler to detection backends.
//
// Remote forwards requests to the model running inside the page. Local runs
// YuNet server-side on frames the page uploads. Both report back through
// the same Event stream.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
	"github.com/teslashibe/go-blursafe/pkg/tracking/detection"
)

// Errors reported for a single detection. The messages match what page
// engines send so both backends look the same on the dashboard.
var (
	ErrNotInitialized  = errors.New("Model not initialized")
	ErrVideoNotFound   = errors.New("Video element not found")
	ErrNoDimensions    = errors.New("Video dimensions not available")
	ErrZeroDimensions  = errors.New("Video has zero dimensions")
	ErrNotPlaying      = errors.New("Video is not playing")
	ErrUnsupportedOp   = errors.New("engine: unsupported operation")
	ErrClosed          = errors.New("engine: closed")
	ErrUnknownBackend  = errors.New("engine: unknown backend")
	ErrNoFrame         = errors.New("engine: no frame for video")
	ErrStaleFrame      = errors.New("engine: frame too old")
	errSenderNotSet    = errors.New("engine: no sender")
	errResultWithoutID = errors.New("engine: result without video id")
)

// Backend names.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// EventType identifies an engine event.
type EventType int

const (
	EventReady EventType = iota
	EventResult
	EventError
	EventSkip
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Event is one message from an engine.
type Event struct {
	Type    EventType
	VideoID string
	Token   uint64
	Faces   []geometry.FaceBox
	Poses   []detection.Pose
	Message string
}

// Result converts the event into a scheduler result. Poses are reduced to
// face boxes here so the scheduler only ever sees faces.
func (e Event) Result() (scheduler.Result, bool) {
	res := scheduler.Result{VideoID: e.VideoID, Token: e.Token}
	switch e.Type {
	case EventResult:
		res.Faces = e.Faces
		if len(e.Poses) > 0 {
			res.Faces = append(res.Faces, detection.FacesFromPoses(e.Poses)...)
		}
	case EventError:
		res.Err = errors.New(e.Message)
	case EventSkip:
		res.Skip = e.Message
		if res.Skip == "" {
			res.Skip = "skipped"
		}
	default:
		return scheduler.Result{}, false
	}
	return res, true
}

// Sink receives engine events. It may be called from any goroutine.
type Sink func(Event)

// Engine is a detection backend.
type Engine interface {
	scheduler.Dispatcher

	// Init (re)loads the model. A Ready event follows once the engine can
	// take requests.
	Init(ctx context.Context) error

	// Ready reports whether requests will be served.
	Ready() bool

	// Name is the backend name.
	Name() string

	Close() error
}

// skip wraps err so the scheduler treats it as a transient skip.
func skip(err error) error {
	return fmt.Errorf("%w: %w", scheduler.ErrSkip, err)
}
