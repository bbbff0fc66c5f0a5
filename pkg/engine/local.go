package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
	"github.com/teslashibe/go-blursafe/pkg/tracking/detection"
)

// VideoLookup finds a video by id.
type VideoLookup interface {
	Video(id string) (scheduler.VideoSource, bool)
}

// DetectorFactory builds a detector on Init.
type DetectorFactory func(cfg detection.Config) (detection.Detector, error)

// LocalConfig configures the server-side engine.
type LocalConfig struct {
	Detector detection.Config

	// MaxFrameAge rejects frames older than this. Zero disables the check.
	MaxFrameAge time.Duration

	// NewDetector defaults to YuNet.
	NewDetector DetectorFactory

	Logger *slog.Logger
}

// DefaultLocalConfig returns YuNet defaults with a 1s frame age limit.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Detector:    detection.DefaultConfig(),
		MaxFrameAge: time.Second,
	}
}

// Local runs face detection in-process on uploaded frames.
type Local struct {
	config LocalConfig
	frames *FrameStore
	videos VideoLookup
	sink   Sink
	logger *slog.Logger

	mu       sync.Mutex
	detector detection.Detector
	ready    atomic.Bool
	closed   atomic.Bool
	wg       sync.WaitGroup

	detections atomic.Uint64
	failures   atomic.Uint64
}

// NewLocal creates a local engine reading frames from frames.
func NewLocal(config LocalConfig, frames *FrameStore, videos VideoLookup, sink Sink) *Local {
	if config.NewDetector == nil {
		config.NewDetector = func(cfg detection.Config) (detection.Detector, error) {
			return detection.NewYuNet(cfg)
		}
	}
	if config.Logger == nil {
		config.Logger = log.Component("engine.local")
	}
	return &Local{
		config: config,
		frames: frames,
		videos: videos,
		sink:   sink,
		logger: config.Logger,
	}
}

// Name implements Engine.
func (l *Local) Name() string { return BackendLocal }

// Ready implements Engine.
func (l *Local) Ready() bool { return l.ready.Load() }

// Frames returns the frame store.
func (l *Local) Frames() *FrameStore { return l.frames }

// Init loads the detector if needed and emits Ready.
func (l *Local) Init(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.detector == nil {
		d, err := l.config.NewDetector(l.config.Detector)
		if err != nil {
			l.mu.Unlock()
			l.ready.Store(false)
			return fmt.Errorf("load detector: %w", err)
		}
		l.detector = d
		l.logger.Info("detector loaded", "model", l.config.Detector.ModelPath)
	}
	l.mu.Unlock()

	l.ready.Store(true)
	l.emit(Event{Type: EventReady})
	return nil
}

// Dispatch validates the request and runs detection in the background.
func (l *Local) Dispatch(req scheduler.Request) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.ready.Load() {
		return skip(ErrNotInitialized)
	}
	if req.Op != scheduler.OpDetectFaces {
		return fmt.Errorf("%w: %s", ErrUnsupportedOp, req.Op)
	}

	video, ok := l.videos.Video(req.VideoID)
	if !ok || !video.Present() {
		return ErrVideoNotFound
	}
	size := video.IntrinsicSize()
	if size.Width == 0 || size.Height == 0 {
		return ErrNoDimensions
	}
	if video.DisplayRect().Empty() {
		return ErrZeroDimensions
	}
	if !video.Playback().Advancing() {
		return skip(ErrNotPlaying)
	}

	frame, ok := l.frames.Latest(req.VideoID)
	if !ok {
		return skip(ErrNoFrame)
	}
	if l.config.MaxFrameAge > 0 && time.Since(frame.Received) > l.config.MaxFrameAge {
		return skip(ErrStaleFrame)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(req, frame, size)
	}()
	return nil
}

func (l *Local) run(req scheduler.Request, frame Frame, size geometry.Size) {
	l.mu.Lock()
	d := l.detector
	l.mu.Unlock()
	if d == nil {
		l.emit(Event{Type: EventError, VideoID: req.VideoID, Token: req.Token, Message: ErrNotInitialized.Error()})
		return
	}

	dets, err := d.Detect(frame.JPEG)
	if err != nil {
		l.failures.Add(1)
		l.emit(Event{Type: EventError, VideoID: req.VideoID, Token: req.Token, Message: err.Error()})
		return
	}
	l.detections.Add(1)

	faces := detection.FaceBoxes(dets, size, l.config.Detector.ConfidenceThresh)
	l.emit(Event{Type: EventResult, VideoID: req.VideoID, Token: req.Token, Faces: faces})
}

func (l *Local) emit(e Event) {
	if l.sink != nil && !l.closed.Load() {
		l.sink(e)
	}
}

// Stats returns detection counters.
func (l *Local) Stats() (detections, failures uint64) {
	return l.detections.Load(), l.failures.Load()
}

// Close waits for running detections and releases the detector.
func (l *Local) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.ready.Store(false)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detector == nil {
		return nil
	}
	err := l.detector.Close()
	l.detector = nil
	return err
}
