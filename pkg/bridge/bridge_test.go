package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
)

func TestNew(t *testing.T) {
	b := New(log.Discard())

	if b == nil {
		t.Fatal("New returned nil")
	}

	if b.PageCount() != 0 {
		t.Error("PageCount should be 0 initially")
	}
}

func TestGetStats(t *testing.T) {
	b := New(log.Discard())

	stats := b.GetStats()

	if stats.PageCount != 0 {
		t.Error("PageCount should be 0")
	}
	if stats.MessagesReceived != 0 {
		t.Error("MessagesReceived should be 0")
	}
	if stats.MessagesSent != 0 {
		t.Error("MessagesSent should be 0")
	}
}

func TestPageNotFound(t *testing.T) {
	b := New(log.Discard())

	if b.Page("nonexistent") != nil {
		t.Error("Page should return nil for nonexistent page")
	}

	msg, _ := protocol.NewMessage(protocol.TypeRefresh, nil)
	if err := b.Send("nonexistent", msg); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("Send error = %v, want ErrPageNotFound", err)
	}
}

func TestGeneratePageID(t *testing.T) {
	a, c := generatePageID(), generatePageID()

	if a == "" {
		t.Error("generatePageID should return non-empty string")
	}
	if a == c {
		t.Error("generatePageID should not repeat")
	}
}

func TestRegisterRoutes(t *testing.T) {
	b := New(log.Discard())
	app := fiber.New()

	// Should not panic
	b.RegisterRoutes(app)
}

func startTestServer(t *testing.T, b *Bridge, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	b.RegisterRoutes(app)

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func TestWebSocketConnection(t *testing.T) {
	b := New(log.Discard())

	var connected, disconnected atomic.Int32
	b.OnConnect(func(page *PageConnection) { connected.Add(1) })
	b.OnDisconnect(func(page *PageConnection) { disconnected.Add(1) })

	startTestServer(t, b, ":18090")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/ws/page/test-page", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	// Wait for connection to be registered
	time.Sleep(50 * time.Millisecond)

	if b.PageCount() != 1 {
		t.Errorf("PageCount = %d, want 1", b.PageCount())
	}
	if b.Page("test-page") == nil {
		t.Error("Page should return the connected page")
	}
	if connected.Load() != 1 {
		t.Errorf("connect callbacks = %d, want 1", connected.Load())
	}

	infos := b.PageInfos()
	if len(infos) != 1 || infos[0].ID != "test-page" {
		t.Errorf("PageInfos = %+v", infos)
	}

	// Close and verify disconnect
	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if b.PageCount() != 0 {
		t.Errorf("PageCount = %d, want 0 after disconnect", b.PageCount())
	}
	if disconnected.Load() != 1 {
		t.Errorf("disconnect callbacks = %d, want 1", disconnected.Load())
	}
}

func TestMessageCallback(t *testing.T) {
	b := New(log.Discard())

	var mu sync.Mutex
	var got []protocol.MessageType
	var pageID string
	b.OnMessage(func(page *PageConnection, msg *protocol.Message) {
		mu.Lock()
		defer mu.Unlock()
		pageID = page.ID
		got = append(got, msg.Type)
	})

	startTestServer(t, b, ":18091")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/ws/page/msg-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	frame, _ := protocol.NewFrameMessage("v1", 640, 480, []byte("test"), 1)
	data, _ := frame.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	// Garbage is dropped, the connection stays up
	ws.WriteMessage(websocket.TextMessage, []byte("{not json"))

	removed, _ := protocol.NewMessage(protocol.TypeVideoRemoved, protocol.VideoRemovedData{ID: "v1"})
	data, _ = removed.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != protocol.TypeFrame || got[1] != protocol.TypeVideoRemoved {
		t.Errorf("messages = %v, want [frame video_removed]", got)
	}
	if pageID != "msg-test" {
		t.Errorf("Page ID = %s, want msg-test", pageID)
	}

	stats := b.GetStats()
	if stats.FramesReceived != 1 {
		t.Errorf("FramesReceived = %d, want 1", stats.FramesReceived)
	}
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
}

func TestSendToPage(t *testing.T) {
	b := New(log.Discard())
	startTestServer(t, b, ":18092")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/ws/page/send-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewDetectMessage("v1", 3, "detect_faces")
	if err := b.Send("send-test", msg); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var got protocol.Message
	json.Unmarshal(data, &got)

	if got.Type != protocol.TypeDetect {
		t.Errorf("Type = %s, want detect", got.Type)
	}
	detect, err := got.GetDetectData()
	if err != nil || detect.Token != 3 {
		t.Errorf("detect = %+v, err = %v", detect, err)
	}
}

func TestPingPong(t *testing.T) {
	b := New(log.Discard())

	var forwarded atomic.Int32
	b.OnMessage(func(*PageConnection, *protocol.Message) { forwarded.Add(1) })

	startTestServer(t, b, ":18093")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18093/ws/page/ping-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	// Send ping
	msg, _ := protocol.NewPingMessage("p-1")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	// Read pong
	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var resp protocol.Message
	json.Unmarshal(respData, &resp)

	if resp.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", resp.Type)
	}
	pong, _ := resp.GetPongData()
	if pong == nil || pong.ID != "p-1" {
		t.Errorf("pong = %+v, want id p-1", pong)
	}
	if forwarded.Load() != 0 {
		t.Error("ping should not be forwarded")
	}
}
