package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
	"github.com/teslashibe/go-blursafe/pkg/tracking/detection"
)

// Sender delivers a message to the page.
type Sender interface {
	Send(msg *protocol.Message) error
}

// Remote drives the model that runs inside the page.
type Remote struct {
	sender Sender
	init   protocol.EngineInitData
	sink   Sink
	logger *slog.Logger

	ready  atomic.Bool
	closed atomic.Bool
	mu     sync.Mutex
}

// NewRemote creates a remote engine. init is sent on every Init.
func NewRemote(sender Sender, init protocol.EngineInitData, sink Sink, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = log.Component("engine.remote")
	}
	init.Remote = true
	return &Remote{sender: sender, init: init, sink: sink, logger: logger}
}

// Name implements Engine.
func (r *Remote) Name() string { return BackendRemote }

// Ready implements Engine.
func (r *Remote) Ready() bool { return r.ready.Load() }

// Init asks the page to (re)load its model. The engine is not ready until
// the page answers with engine_ready.
func (r *Remote) Init(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.ready.Store(false)

	msg, err := protocol.NewEngineInitMessage(r.init)
	if err != nil {
		return err
	}
	return r.send(msg)
}

// Dispatch implements scheduler.Dispatcher.
func (r *Remote) Dispatch(req scheduler.Request) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if !r.ready.Load() {
		return skip(ErrNotInitialized)
	}
	msg, err := protocol.NewDetectMessage(req.VideoID, req.Token, string(req.Op))
	if err != nil {
		return err
	}
	return r.send(msg)
}

func (r *Remote) send(msg *protocol.Message) error {
	if r.sender == nil {
		return errSenderNotSet
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sender.Send(msg)
}

// HandleMessage consumes engine messages from the page. It returns false
// for message types it does not own.
func (r *Remote) HandleMessage(msg *protocol.Message) (bool, error) {
	switch msg.Type {
	case protocol.TypeEngineReady:
		if _, err := msg.GetEngineReadyData(); err != nil {
			return true, err
		}
		r.ready.Store(true)
		r.logger.Info("page engine ready", "engine", r.init.Engine)
		r.emit(Event{Type: EventReady})

	case protocol.TypeDetectResult:
		data, err := msg.GetDetectResultData()
		if err != nil {
			return true, err
		}
		if data.VideoID == "" {
			return true, errResultWithoutID
		}
		r.emit(Event{
			Type:    EventResult,
			VideoID: data.VideoID,
			Token:   data.Token,
			Faces:   data.Faces,
			Poses:   lo.Map(data.Poses, func(p protocol.PoseData, _ int) detection.Pose { return PoseFromWire(p) }),
		})

	case protocol.TypeDetectError:
		data, err := msg.GetDetectErrorData()
		if err != nil {
			return true, err
		}
		if data.Message == ErrNotInitialized.Error() {
			r.ready.Store(false)
		}
		r.emit(Event{Type: EventError, VideoID: data.VideoID, Token: data.Token, Message: data.Message})

	case protocol.TypeDetectSkip:
		data, err := msg.GetDetectSkipData()
		if err != nil {
			return true, err
		}
		r.emit(Event{Type: EventSkip, VideoID: data.VideoID, Token: data.Token, Message: data.Reason})

	default:
		return false, nil
	}
	return true, nil
}

func (r *Remote) emit(e Event) {
	if r.sink != nil && !r.closed.Load() {
		r.sink(e)
	}
}

// Close implements Engine.
func (r *Remote) Close() error {
	r.closed.Store(true)
	r.ready.Store(false)
	return nil
}

// PoseFromWire converts a wire pose.
func PoseFromWire(p protocol.PoseData) detection.Pose {
	return detection.Pose{
		Score: p.Score,
		Keypoints: lo.Map(p.Keypoints, func(k protocol.KeypointData, _ int) detection.Keypoint {
			return detection.Keypoint{Name: k.Name, X: k.X, Y: k.Y, Score: k.Score}
		}),
	}
}
