package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/engine"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
	"github.com/teslashibe/go-blursafe/pkg/tracking/detection"
)

// ErrPageNotFound is returned for an unknown page id.
var ErrPageNotFound = errors.New("page: not found")

// Manager tracks every connected page.
type Manager struct {
	config Config
	logger *slog.Logger
	shared *sharedDetector

	mu       sync.RWMutex
	pages    map[string]*Page
	onEvent  func(Event)
	onChange func()
}

// NewManager creates a manager. Local backends share one detector.
func NewManager(config Config) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = log.Component("page")
		config.Logger = logger
	}
	factory := config.Local.NewDetector
	if factory == nil {
		factory = func(cfg detection.Config) (detection.Detector, error) {
			return detection.NewYuNet(cfg)
		}
	}
	return &Manager{
		config: config,
		logger: logger,
		shared: &sharedDetector{factory: factory},
		pages:  make(map[string]*Page),
	}
}

// OnEvent sets the callback for scheduler events of every page. It runs
// under a scheduler lock and must not block.
func (m *Manager) OnEvent(callback func(Event)) {
	m.mu.Lock()
	m.onEvent = callback
	m.mu.Unlock()
}

// OnChange sets the callback fired when pages connect, disconnect or
// change their video set.
func (m *Manager) OnChange(callback func()) {
	m.mu.Lock()
	m.onChange = callback
	m.mu.Unlock()
}

func (m *Manager) emit(e Event) {
	m.mu.RLock()
	cb := m.onEvent
	m.mu.RUnlock()
	if cb != nil {
		cb(e)
	}
}

func (m *Manager) changed() {
	m.mu.RLock()
	cb := m.onChange
	m.mu.RUnlock()
	if cb != nil {
		cb()
	}
}

// Attach wires the manager to a bridge's connection callbacks.
func (m *Manager) Attach(b *bridge.Bridge) {
	b.OnConnect(func(pc *bridge.PageConnection) {
		if _, err := m.Connect(context.Background(), pc.ID, pc); err != nil {
			m.logger.Warn("page start failed", "page", pc.ID, "error", err)
		}
	})
	b.OnMessage(func(pc *bridge.PageConnection, msg *protocol.Message) {
		if err := m.HandleMessage(context.Background(), pc.ID, msg); err != nil {
			m.logger.Warn("message dropped", "page", pc.ID, "type", msg.Type, "error", err)
		}
	})
	b.OnDisconnect(func(pc *bridge.PageConnection) {
		m.Disconnect(pc.ID)
	})
}

// Connect creates and starts the coordinator for a new page. A page with the
// same id is closed first.
func (m *Manager) Connect(ctx context.Context, id string, sender engine.Sender) (*Page, error) {
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	p := New(id, sender, m.config, m.shared.Factory, m.emit)

	m.mu.Lock()
	prev := m.pages[id]
	m.pages[id] = p
	m.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	defer m.changed()

	if err := p.Start(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Disconnect closes and forgets a page.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	p, ok := m.pages[id]
	delete(m.pages, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := p.Close(); err != nil {
		m.logger.Warn("page close failed", "page", id, "error", err)
	}
	m.changed()
}

// HandleMessage routes a message to its page.
func (m *Manager) HandleMessage(ctx context.Context, id string, msg *protocol.Message) error {
	p, ok := m.Page(id)
	if !ok {
		return fmt.Errorf("message for %s: %w", id, ErrPageNotFound)
	}
	if err := p.HandleMessage(ctx, msg); err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeHello, protocol.TypeVideoAdded, protocol.TypeVideoRemoved, protocol.TypeRefresh:
		m.changed()
	}
	return nil
}

// Page returns a page by id.
func (m *Manager) Page(id string) (*Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	return p, ok
}

// Len returns the number of pages.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// SessionCount returns the number of armed videos across every page.
func (m *Manager) SessionCount() int {
	n := 0
	for _, p := range m.all() {
		n += p.Scheduler().Len()
	}
	return n
}

func (m *Manager) all() []*Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p)
	}
	return out
}

// Statuses returns a snapshot of every page ordered by connect time.
func (m *Manager) Statuses() []Status {
	pages := m.all()
	out := make([]Status, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Status())
	}
	slices.SortFunc(out, func(a, b Status) int {
		return a.Connected.Compare(b.Connected)
	})
	return out
}

// Refresh restarts detection on one page.
func (m *Manager) Refresh(ctx context.Context, id string) error {
	p, ok := m.Page(id)
	if !ok {
		return fmt.Errorf("refresh %s: %w", id, ErrPageNotFound)
	}
	defer m.changed()
	return p.Refresh(ctx)
}

// RefreshAll restarts detection on every page.
func (m *Manager) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, p := range m.all() {
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", p.ID(), err))
		}
	}
	m.changed()
	return errors.Join(errs...)
}

// Close closes every page and the shared detector.
func (m *Manager) Close() error {
	m.mu.Lock()
	pages := m.pages
	m.pages = make(map[string]*Page)
	m.mu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.shared.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sharedDetector loads one detector on first use and hands out views whose
// Close is a no-op, so pages can come and go without reloading the model.
type sharedDetector struct {
	factory engine.DetectorFactory

	mu sync.Mutex
	d  detection.Detector
}

// Factory implements engine.DetectorFactory.
func (s *sharedDetector) Factory(cfg detection.Config) (detection.Detector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d == nil {
		d, err := s.factory(cfg)
		if err != nil {
			return nil, err
		}
		s.d = d
	}
	return detectorView{s.d}, nil
}

// Close releases the underlying detector.
func (s *sharedDetector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d == nil {
		return nil
	}
	err := s.d.Close()
	s.d = nil
	return err
}

type detectorView struct {
	detection.Detector
}

func (detectorView) Close() error { return nil }
