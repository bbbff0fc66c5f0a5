// Package page coordinates detection for one connected page: it mirrors the
// page's videos, arms them on the scheduler, and routes engine traffic.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/engine"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/overlay"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
)

var (
	ErrUnknownVideo = errors.New("page: unknown video")
	ErrClosed       = errors.New("page: closed")
)

// Config is shared by every page a Manager creates.
type Config struct {
	Backend     string // engine.BackendRemote or engine.BackendLocal
	Engine      string // protocol.EngineFaces or protocol.EnginePoses
	Cadence     float64
	Overlay     overlay.Config
	Scheduler   []scheduler.Option
	Local       engine.LocalConfig
	Preview     engine.PreviewConfig
	InitTimeout time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

// DefaultConfig runs the face model in the page at 15Hz with full cover.
func DefaultConfig() Config {
	return Config{
		Backend:     engine.BackendRemote,
		Engine:      protocol.EngineFaces,
		Cadence:     15,
		Overlay:     overlay.DefaultConfig(),
		Local:       engine.DefaultLocalConfig(),
		Preview:     engine.DefaultPreviewConfig(),
		InitTimeout: 10 * time.Second,
	}
}

// Validate reports a backend or engine no page could run.
func (c Config) Validate() error {
	switch c.Backend {
	case engine.BackendRemote, engine.BackendLocal:
	default:
		return fmt.Errorf("page: backend %q: %w", c.Backend, engine.ErrUnknownBackend)
	}
	switch c.Engine {
	case protocol.EngineFaces, protocol.EnginePoses:
	default:
		return fmt.Errorf("page: unknown engine %q", c.Engine)
	}
	if c.Backend == engine.BackendLocal && c.Engine == protocol.EnginePoses {
		return fmt.Errorf("page: %s backend: %w", engine.BackendLocal, engine.ErrUnsupportedOp)
	}
	return nil
}

// Event is a scheduler event tagged with its page.
type Event struct {
	PageID string `json:"page_id"`
	scheduler.Event
}

// Page is one connected page agent.
type Page struct {
	id        string
	config    Config
	logger    *slog.Logger
	connected time.Time

	sched    *scheduler.Scheduler
	renderer *overlay.Renderer
	mirror   *overlay.MemoryTarget
	engine   engine.Engine
	remote   *engine.Remote
	frames   *engine.FrameStore

	mu       sync.RWMutex
	url      string
	title    string
	viewport geometry.Size
	videos   map[string]*RemoteVideo
	closed   bool
}

// New creates the coordinator for one page. sender reaches the page agent;
// detector is used only by the local backend. onEvent may be nil.
func New(id string, sender engine.Sender, config Config, detector engine.DetectorFactory, onEvent func(Event)) *Page {
	logger := config.Logger
	if logger == nil {
		logger = log.Component("page")
	}
	logger = logger.With("page", id)

	p := &Page{
		id:        id,
		config:    config,
		logger:    logger,
		connected: time.Now(),
		mirror:    overlay.NewMemoryTarget(),
		frames:    engine.NewFrameStore(),
		videos:    make(map[string]*RemoteVideo),
	}

	overlayCfg := config.Overlay
	overlayCfg.Logger = logger
	p.renderer = overlay.NewRenderer(overlayCfg, overlay.Tee{NewRemoteTarget(sender), p.mirror})

	switch config.Backend {
	case engine.BackendLocal:
		localCfg := config.Local
		localCfg.Logger = logger
		if detector != nil {
			localCfg.NewDetector = detector
		}
		p.engine = engine.NewLocal(localCfg, p.frames, p, p.handleEngineEvent)
	default:
		p.remote = engine.NewRemote(sender, protocol.EngineInitData{
			Engine:       config.Engine,
			Cadence:      config.Cadence,
			Strategy:     p.renderer.Strategy(),
			DebugMarkers: config.Overlay.DebugMarkers,
		}, p.handleEngineEvent, logger)
		p.engine = p.remote
	}

	op := scheduler.OpDetectFaces
	if config.Engine == protocol.EnginePoses {
		op = scheduler.OpDetectPoses
	}
	opts := []scheduler.Option{
		scheduler.WithCadence(config.Cadence),
		scheduler.WithOp(op),
		scheduler.WithLogger(logger),
	}
	if config.Clock != nil {
		opts = append(opts, scheduler.WithClock(config.Clock))
	}
	if onEvent != nil {
		opts = append(opts, scheduler.WithEventHandler(func(e scheduler.Event) {
			onEvent(Event{PageID: id, Event: e})
		}))
	}
	opts = append(opts, config.Scheduler...)
	p.sched = scheduler.New(p.engine, p.renderer, opts...)

	return p
}

// ID returns the page id.
func (p *Page) ID() string { return p.id }

// Scheduler returns the page's scheduler.
func (p *Page) Scheduler() *scheduler.Scheduler { return p.sched }

// Engine returns the page's engine.
func (p *Page) Engine() engine.Engine { return p.engine }

// Start initializes the engine. For the local backend Ready follows
// immediately and present videos are armed.
func (p *Page) Start(ctx context.Context) error {
	ctx, cancel := p.initContext(ctx)
	defer cancel()

	if err := p.engine.Init(ctx); err != nil {
		return fmt.Errorf("init %s engine: %w", p.engine.Name(), err)
	}
	return nil
}

func (p *Page) initContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.InitTimeout > 0 {
		return context.WithTimeout(ctx, p.config.InitTimeout)
	}
	return context.WithCancel(ctx)
}

// Video implements engine.VideoLookup.
func (p *Page) Video(id string) (scheduler.VideoSource, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.videos[id]
	if !ok {
		return nil, false
	}
	return v, true
}

func (p *Page) currentViewport() geometry.Size {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewport
}

// register adds or updates a video and returns it.
func (p *Page) register(state protocol.VideoState) (*RemoteVideo, error) {
	if state.ID == "" {
		return nil, fmt.Errorf("register video: %w", ErrUnknownVideo)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if v, ok := p.videos[state.ID]; ok {
		v.Update(state)
		return v, nil
	}
	v := newRemoteVideo(state, p.currentViewport)
	p.videos[state.ID] = v
	return v, nil
}

func (p *Page) arm(v *RemoteVideo) {
	if _, err := p.sched.Arm(v, p.config.Cadence); err != nil {
		p.logger.Warn("arm failed", "video", v.ID(), "error", err)
	}
}

// ArmAll arms every present video. Armed videos are left alone.
func (p *Page) ArmAll() int {
	p.mu.RLock()
	videos := lo.Filter(lo.Values(p.videos), func(v *RemoteVideo, _ int) bool { return v.Present() })
	p.mu.RUnlock()

	for _, v := range videos {
		p.arm(v)
	}
	return len(videos)
}

// HandleMessage routes one message from the page agent.
func (p *Page) HandleMessage(ctx context.Context, msg *protocol.Message) error {
	if p.remote != nil {
		handled, err := p.remote.HandleMessage(msg)
		if handled {
			return err
		}
	}

	switch msg.Type {
	case protocol.TypeHello:
		data, err := msg.GetHelloData()
		if err != nil {
			return err
		}
		return p.handleHello(data)

	case protocol.TypeVideoAdded:
		data, err := msg.GetVideoState()
		if err != nil {
			return err
		}
		v, err := p.register(*data)
		if err != nil {
			return err
		}
		p.logger.Debug("video added", "video", data.ID)
		p.arm(v)

	case protocol.TypeVideoRemoved:
		data, err := msg.GetVideoRemovedData()
		if err != nil {
			return err
		}
		return p.removeVideo(data.ID)

	case protocol.TypeVideoState:
		data, err := msg.GetVideoState()
		if err != nil {
			return err
		}
		p.mu.RLock()
		v, ok := p.videos[data.ID]
		p.mu.RUnlock()
		if !ok {
			return fmt.Errorf("state for %s: %w", data.ID, ErrUnknownVideo)
		}
		v.Update(*data)

	case protocol.TypeViewport:
		data, err := msg.GetViewportData()
		if err != nil {
			return err
		}
		p.handleViewport(data)

	case protocol.TypeFrame:
		data, err := msg.GetFrameData()
		if err != nil {
			return err
		}
		jpeg, err := data.DecodeFrameData()
		if err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		p.frames.Put(engine.Frame{
			VideoID: data.VideoID,
			JPEG:    jpeg,
			Width:   data.Width,
			Height:  data.Height,
			ID:      data.FrameID,
		})

	case protocol.TypeRefresh:
		return p.Refresh(ctx)

	case protocol.TypeEngineReady, protocol.TypeDetectResult, protocol.TypeDetectError, protocol.TypeDetectSkip:
		p.logger.Debug("engine message ignored by local backend", "type", msg.Type)

	default:
		p.logger.Debug("unhandled message", "type", msg.Type)
	}
	return nil
}

func (p *Page) handleHello(data *protocol.HelloData) error {
	p.mu.Lock()
	p.url = data.URL
	p.title = data.Title
	p.viewport = data.Viewport
	p.mu.Unlock()

	p.logger.Info("page hello", "url", data.URL, "videos", len(data.Videos))

	// Existing videos wait for the engine's Ready event.
	for _, state := range data.Videos {
		if _, err := p.register(state); err != nil {
			return err
		}
	}
	if p.engine.Ready() {
		p.ArmAll()
	}
	return nil
}

func (p *Page) removeVideo(id string) error {
	p.mu.Lock()
	v, ok := p.videos[id]
	delete(p.videos, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownVideo)
	}

	v.Detach()
	p.frames.Delete(id)
	if err := p.sched.Disarm(id); err != nil && !errors.Is(err, scheduler.ErrUnknownVideo) {
		return err
	}
	p.logger.Debug("video removed", "video", id)
	return nil
}

func (p *Page) handleViewport(data *protocol.ViewportData) {
	p.mu.Lock()
	if data.Size.Width > 0 && data.Size.Height > 0 {
		p.viewport = data.Size
	}
	for _, state := range data.Videos {
		if v, ok := p.videos[state.ID]; ok {
			v.SetRect(state.Rect)
		}
	}
	p.mu.Unlock()

	if data.Reason == protocol.ViewportScroll {
		p.sched.Scroll()
		return
	}
	p.sched.Resize()
}

func (p *Page) handleEngineEvent(e engine.Event) {
	if e.Type == engine.EventReady {
		n := p.ArmAll()
		p.logger.Info("engine ready", "backend", p.engine.Name(), "armed", n)
		return
	}

	res, ok := e.Result()
	if !ok {
		return
	}
	if err := p.sched.HandleResult(res); err != nil {
		p.logger.Debug("result dropped", "video", e.VideoID, "error", err)
	}
}

// Refresh restarts detection: every session is reset and its overlay
// cleared, the engine is re-initialized, and present videos are re-armed.
func (p *Page) Refresh(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	p.logger.Info("refreshing detection")
	p.sched.Reset()

	ctx, cancel := p.initContext(ctx)
	defer cancel()
	if err := p.engine.Init(ctx); err != nil {
		return fmt.Errorf("reinit %s engine: %w", p.engine.Name(), err)
	}
	p.ArmAll()
	return nil
}

// Preview renders the latest frame of videoID with its current faces.
func (p *Page) Preview(videoID string) ([]byte, error) {
	v, ok := p.Video(videoID)
	if !ok {
		return nil, fmt.Errorf("preview %s: %w", videoID, ErrUnknownVideo)
	}
	frame, ok := p.frames.Latest(videoID)
	if !ok {
		return nil, engine.ErrNoFrame
	}

	var faces []geometry.FaceBox
	if sess, ok := p.sched.Session(videoID); ok {
		faces = p.renderer.Faces(string(sess.Handle))
	}

	cfg := p.config.Preview
	cfg.Strategy = p.renderer.Strategy()
	return engine.Preview(frame.JPEG, faces, v.IntrinsicSize(), cfg)
}

// VideoInfo is a video as shown on the dashboard.
type VideoInfo struct {
	protocol.VideoState
	HasFrame bool `json:"has_frame"`
}

// Status is a dashboard snapshot of the page.
type Status struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	Title       string              `json:"title,omitempty"`
	Connected   time.Time           `json:"connected"`
	Backend     string              `json:"backend"`
	Engine      string              `json:"engine"`
	EngineReady bool                `json:"engine_ready"`
	Viewport    geometry.Size       `json:"viewport"`
	Videos      []VideoInfo         `json:"videos"`
	Sessions    []scheduler.Session `json:"sessions"`
	Regions     []overlay.Region    `json:"regions"`
}

// Status returns a snapshot.
func (p *Page) Status() Status {
	p.mu.RLock()
	st := Status{
		ID:        p.id,
		URL:       p.url,
		Title:     p.title,
		Connected: p.connected,
		Viewport:  p.viewport,
		Videos: lo.Map(lo.Values(p.videos), func(v *RemoteVideo, _ int) VideoInfo {
			_, hasFrame := p.frames.Latest(v.ID())
			return VideoInfo{VideoState: v.State(), HasFrame: hasFrame}
		}),
	}
	p.mu.RUnlock()

	slices.SortFunc(st.Videos, func(a, b VideoInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	st.Backend = p.engine.Name()
	st.Engine = p.config.Engine
	st.EngineReady = p.engine.Ready()
	st.Sessions = p.sched.Sessions()
	st.Regions = p.mirror.Regions()
	slices.SortFunc(st.Regions, func(a, b overlay.Region) int {
		switch {
		case a.VideoID < b.VideoID:
			return -1
		case a.VideoID > b.VideoID:
			return 1
		}
		return 0
	})
	return st
}

// Close stops every session and the engine.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.sched.Close()
	p.frames.Clear()
	return p.engine.Close()
}
