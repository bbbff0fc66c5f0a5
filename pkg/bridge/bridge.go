// Package bridge provides the WebSocket endpoint page agents connect to.
package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
)

const (
	// maxMessageSize bounds a single page message; frames are the big ones.
	maxMessageSize = 4 * 1024 * 1024

	// writeWait bounds a single write to a page.
	writeWait = 5 * time.Second
)

// PageConnection represents a connected page agent
type PageConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Remote    string

	mu     sync.Mutex
	closed bool
}

// Send sends a message to the page
func (p *PageConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageGone
	}
	p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

func (p *PageConnection) touch() {
	p.mu.Lock()
	p.LastSeen = time.Now()
	p.mu.Unlock()
}

func (p *PageConnection) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Bridge manages WebSocket connections from pages
type Bridge struct {
	mu     sync.RWMutex
	pages  map[string]*PageConnection
	logger *slog.Logger

	// Callbacks
	onConnect    func(page *PageConnection)
	onMessage    func(page *PageConnection, msg *protocol.Message)
	onDisconnect func(page *PageConnection)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	parseErrors      atomic.Uint64
}

// New creates a new page bridge
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = log.Component("bridge")
	}
	return &Bridge{
		pages:  make(map[string]*PageConnection),
		logger: logger,
	}
}

// OnConnect sets the callback for new page connections
func (b *Bridge) OnConnect(callback func(page *PageConnection)) {
	b.mu.Lock()
	b.onConnect = callback
	b.mu.Unlock()
}

// OnMessage sets the callback for page messages. Ping is answered by the
// bridge and not forwarded.
func (b *Bridge) OnMessage(callback func(page *PageConnection, msg *protocol.Message)) {
	b.mu.Lock()
	b.onMessage = callback
	b.mu.Unlock()
}

// OnDisconnect sets the callback for closed page connections
func (b *Bridge) OnDisconnect(callback func(page *PageConnection)) {
	b.mu.Lock()
	b.onDisconnect = callback
	b.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (b *Bridge) RegisterRoutes(app fiber.Router) {
	// WebSocket upgrade middleware
	app.Use("/ws/page", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Page connection endpoint
	app.Get("/ws/page", websocket.New(b.handlePage))
	app.Get("/ws/page/:id", websocket.New(b.handlePage))
}

// handlePage handles a page WebSocket connection
func (b *Bridge) handlePage(c *websocket.Conn) {
	// Get page ID from path or generate one
	pageID := c.Params("id")
	if pageID == "" {
		pageID = generatePageID()
	}

	page := &PageConnection{
		ID:        pageID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
		Remote:    c.RemoteAddr().String(),
	}

	// Register page, replacing a stale connection with the same id
	b.mu.Lock()
	prev := b.pages[pageID]
	b.pages[pageID] = page
	pageCount := len(b.pages)
	connectCb := b.onConnect
	b.mu.Unlock()

	if prev != nil {
		prev.markClosed()
		prev.Conn.Close()
	}

	b.logger.Info("page connected", "page", pageID, "remote", page.Remote, "total", pageCount)
	if connectCb != nil {
		connectCb(page)
	}

	defer func() {
		page.markClosed()

		b.mu.Lock()
		if b.pages[pageID] == page {
			delete(b.pages, pageID)
		}
		pageCount := len(b.pages)
		disconnectCb := b.onDisconnect
		b.mu.Unlock()

		b.logger.Info("page disconnected", "page", pageID, "total", pageCount)
		if disconnectCb != nil {
			disconnectCb(page)
		}
	}()

	c.SetReadLimit(maxMessageSize)

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			b.logger.Debug("page read error", "page", pageID, "error", err)
			return
		}

		page.touch()
		b.messagesReceived.Add(1)
		b.handleMessage(page, data)
	}
}

// handleMessage processes an incoming message from a page
func (b *Bridge) handleMessage(page *PageConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		b.parseErrors.Add(1)
		b.logger.Warn("parse error", "page", page.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		// Respond with pong
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		if err := b.SendPong(page.ID, id, msg.Timestamp); err != nil {
			b.logger.Debug("pong failed", "page", page.ID, "error", err)
		}
		return
	case protocol.TypeFrame:
		b.framesReceived.Add(1)
	}

	b.mu.RLock()
	messageCb := b.onMessage
	b.mu.RUnlock()

	if messageCb != nil {
		messageCb(page, msg)
	}
}

// SendPong sends a pong response to a page
func (b *Bridge) SendPong(pageID, id string, pingTS int64) error {
	msg, err := protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return b.Send(pageID, msg)
}

// Send sends a message to a specific page
func (b *Bridge) Send(pageID string, msg *protocol.Message) error {
	page := b.Page(pageID)
	if page == nil {
		return ErrPageNotFound
	}

	b.messagesSent.Add(1)
	return page.Send(msg)
}

// Page returns a page connection by ID
func (b *Bridge) Page(pageID string) *PageConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pages[pageID]
}

// Pages returns all connected pages
func (b *Bridge) Pages() []*PageConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pages := make([]*PageConnection, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	return pages
}

// PageCount returns the number of connected pages
func (b *Bridge) PageCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pages)
}

// Stats contains bridge statistics
type Stats struct {
	PageCount        int    `json:"page_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// GetStats returns bridge statistics
func (b *Bridge) GetStats() Stats {
	return Stats{
		PageCount:        b.PageCount(),
		MessagesReceived: b.messagesReceived.Load(),
		MessagesSent:     b.messagesSent.Load(),
		FramesReceived:   b.framesReceived.Load(),
		ParseErrors:      b.parseErrors.Load(),
	}
}

// PageInfo contains info about a connected page
type PageInfo struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// PageInfos returns info about all connected pages
func (b *Bridge) PageInfos() []PageInfo {
	pages := b.Pages()
	infos := make([]PageInfo, 0, len(pages))
	for _, p := range pages {
		p.mu.Lock()
		infos = append(infos, PageInfo{
			ID:        p.ID,
			Remote:    p.Remote,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
		})
		p.mu.Unlock()
	}
	return infos
}

// generatePageID generates a unique page ID
func generatePageID() string {
	return uuid.NewString()
}
