package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-blursafe/internal/log"
	"github.com/teslashibe/go-blursafe/pkg/bridge"
	"github.com/teslashibe/go-blursafe/pkg/geometry"
	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/protocol"
)

type sink struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (s *sink) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sink) count(typ protocol.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T) (*Server, *page.Manager) {
	t.Helper()
	pcfg := page.DefaultConfig()
	pcfg.Cadence = 0.001
	pcfg.Clock = clock.NewMock()
	pcfg.Logger = log.Discard()
	m := page.NewManager(pcfg)
	t.Cleanup(func() { _ = m.Close() })

	cfg := DefaultConfig()
	cfg.Version = "test"
	cfg.StatusDebounce = 10 * time.Millisecond
	cfg.Logger = log.Discard()
	return NewServer(cfg, m, nil), m
}

func connectPage(t *testing.T, m *page.Manager, id string, videos ...string) *sink {
	t.Helper()
	out := &sink{}
	ctx := context.Background()
	_, err := m.Connect(ctx, id, out)
	require.NoError(t, err)

	ready, err := protocol.NewMessage(protocol.TypeEngineReady, nil)
	require.NoError(t, err)
	require.NoError(t, m.HandleMessage(ctx, id, ready))

	for _, vid := range videos {
		added, err := protocol.NewMessage(protocol.TypeVideoAdded, protocol.VideoState{
			ID: vid, Present: true, ReadyState: 4, Width: 640, Height: 360,
			Rect: geometry.Rect{Width: 640, Height: 360}, CurrentTime: 1,
		})
		require.NoError(t, err)
		require.NoError(t, m.HandleMessage(ctx, id, added))
	}
	return out
}

func do(t *testing.T, s *Server, method, path string) (int, string) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	s, m := newTestServer(t)
	connectPage(t, m, "p1")

	code, body := do(t, s, "GET", "/health")
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"status":"ok","version":"test","pages":1}`, body)
}

func TestStatus(t *testing.T) {
	s, m := newTestServer(t)
	connectPage(t, m, "p1", "a", "b")

	code, body := do(t, s, "GET", "/api/status")
	require.Equal(t, 200, code)

	var ov Overview
	require.NoError(t, json.Unmarshal([]byte(body), &ov))
	assert.Equal(t, 1, ov.Pages)
	assert.Equal(t, 2, ov.Sessions)
	assert.Equal(t, uint64(2), ov.Events["armed"])
	assert.Nil(t, ov.Bridge)
}

func TestStatus_ListsBridgeConnections(t *testing.T) {
	pcfg := page.DefaultConfig()
	pcfg.Clock = clock.NewMock()
	pcfg.Logger = log.Discard()
	m := page.NewManager(pcfg)
	t.Cleanup(func() { _ = m.Close() })
	b := bridge.New(log.Discard())
	m.Attach(b)

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:18096"
	cfg.Logger = log.Discard()
	s := NewServer(cfg, m, b)
	s.StartAsync()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18096/ws/page/tab-1", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()
	require.Eventually(t, func() bool { return b.PageCount() == 1 }, time.Second, 5*time.Millisecond)

	code, body := do(t, s, "GET", "/api/status")
	require.Equal(t, 200, code)
	var ov Overview
	require.NoError(t, json.Unmarshal([]byte(body), &ov))
	require.NotNil(t, ov.Bridge)
	assert.Equal(t, 1, ov.Bridge.PageCount)
	require.Len(t, ov.Connections, 1)
	assert.Equal(t, "tab-1", ov.Connections[0].ID)
	assert.False(t, ov.Connections[0].Connected.IsZero())
}

func TestPages(t *testing.T) {
	s, m := newTestServer(t)
	connectPage(t, m, "p1", "a")
	connectPage(t, m, "p2")

	code, body := do(t, s, "GET", "/api/pages")
	require.Equal(t, 200, code)
	var pages []page.Status
	require.NoError(t, json.Unmarshal([]byte(body), &pages))
	require.Len(t, pages, 2)

	code, body = do(t, s, "GET", "/api/pages/p1")
	require.Equal(t, 200, code)
	var st page.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "p1", st.ID)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, "a", st.Sessions[0].VideoID)

	code, body = do(t, s, "GET", "/api/pages/nope")
	assert.Equal(t, 404, code)
	assert.Contains(t, body, `"error"`)
}

func TestRefresh(t *testing.T) {
	s, m := newTestServer(t)
	out := connectPage(t, m, "p1", "a")
	require.Equal(t, 1, out.count(protocol.TypeEngineInit))

	code, body := do(t, s, "POST", "/api/pages/p1/refresh")
	require.Equal(t, 200, code)
	assert.JSONEq(t, `{"refreshed":["p1"]}`, body)
	assert.Equal(t, 2, out.count(protocol.TypeEngineInit))
	assert.Equal(t, 1, out.count(protocol.TypeOverlayClear))

	code, _ = do(t, s, "POST", "/api/refresh")
	require.Equal(t, 200, code)
	assert.Equal(t, 3, out.count(protocol.TypeEngineInit))

	code, _ = do(t, s, "POST", "/api/pages/missing/refresh")
	assert.Equal(t, 404, code)
}

func TestPreviewErrors(t *testing.T) {
	s, m := newTestServer(t)
	connectPage(t, m, "p1", "a")

	tests := []struct {
		name string
		path string
	}{
		{"unknown page", "/api/pages/nope/videos/a/preview"},
		{"unknown video", "/api/pages/p1/videos/zzz/preview"},
		{"no frame yet", "/api/pages/p1/videos/a/preview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, s, "GET", tt.path)
			assert.Equal(t, 404, code)
		})
	}
}

func TestMetrics(t *testing.T) {
	s, m := newTestServer(t)
	connectPage(t, m, "p1", "a")

	code, body := do(t, s, "GET", "/metrics")
	require.Equal(t, 200, code)
	assert.Contains(t, body, "blursafe_pages 1")
	assert.Contains(t, body, "blursafe_sessions 1")
	assert.Contains(t, body, `blursafe_scheduler_events_total{kind="armed"} 1`)
	assert.Contains(t, body, "blursafe_dashboard_dropped_total 0")
}

func TestEventsRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	code, _ := do(t, s, "GET", "/ws/events")
	assert.Equal(t, 426, code)
}

func TestEventStream(t *testing.T) {
	s, m := newTestServer(t)
	s.config.Addr = "127.0.0.1:18095"
	s.StartAsync()
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18095/ws/events", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer conn.Close()

	read := func() StreamMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg StreamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	first := read()
	assert.Equal(t, "status", first.Type)
	assert.Empty(t, first.Pages)

	require.Eventually(t, func() bool { return s.events.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	connectPage(t, m, "p1", "a")

	var sawArmed, sawStatus bool
	for i := 0; i < 10 && !(sawArmed && sawStatus); i++ {
		msg := read()
		switch msg.Type {
		case "event":
			if msg.Event != nil && string(msg.Event.Kind) == "armed" {
				assert.Equal(t, "p1", msg.Event.PageID)
				assert.Equal(t, "a", msg.Event.VideoID)
				sawArmed = true
			}
		case "status":
			if len(msg.Pages) == 1 {
				sawStatus = true
			}
		}
	}
	assert.True(t, sawArmed, "armed event streamed")
	assert.True(t, sawStatus, "debounced status streamed")
}
