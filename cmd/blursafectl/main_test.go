package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-blursafe/pkg/page"
	"github.com/teslashibe/go-blursafe/pkg/scheduler"
	"github.com/teslashibe/go-blursafe/pkg/web"
)

func TestEventsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/events"},
		{"https://redact.example.com/", "wss://redact.example.com/ws/events"},
		{"http://box/blursafe", "ws://box/blursafe/ws/events"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := eventsURL(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefresh(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if strings.Contains(r.URL.Path, "/pages/") {
			w.Write([]byte(`{"refreshed":["p 1"]}`))
			return
		}
		w.Write([]byte(`{"refreshed":["a","b"]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := &client{base: srv.URL, out: &out}

	require.NoError(t, c.refresh(context.Background(), ""))
	require.NoError(t, c.refresh(context.Background(), "p 1"))

	mu.Lock()
	assert.Equal(t, []string{"POST /api/refresh", "POST /api/pages/p 1/refresh"}, paths)
	mu.Unlock()
	assert.Contains(t, out.String(), "refreshed 2 page(s): a, b")
	assert.Contains(t, out.String(), "refreshed 1 page(s): p 1")
}

func TestPagesTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"p1","url":"https://example.com","sessions":[
			{"handle":"h","video_id":"v1","state":"requesting","token":7,"stable_faces":2,
			 "stats":{"requests":7,"errors":1}}]}]`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := &client{base: srv.URL, out: &out}
	require.NoError(t, c.pages(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "v1")
	assert.Contains(t, lines[1], "requesting")
	assert.Contains(t, lines[1], "https://example.com")
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"page: not found"}`))
	}))
	defer srv.Close()

	c := &client{base: srv.URL, out: &bytes.Buffer{}}
	err := c.refresh(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page: not found")
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	c := &client{out: &out}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c.printEvent(web.StreamMessage{Type: "event", At: at, Event: &page.Event{
		PageID: "p1",
		Event:  scheduler.Event{Kind: scheduler.EventResult, VideoID: "v1", Token: 3, Faces: 2, Stable: 1},
	}})
	c.printEvent(web.StreamMessage{Type: "status", At: at, Pages: []page.Status{{ID: "p1"}}})

	s := out.String()
	assert.Contains(t, s, "result   page=p1 video=v1 token=3 faces=2 stable=1")
	assert.Contains(t, s, "status  pages=1 sessions=0")
}
