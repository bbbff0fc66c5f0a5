package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-blursafe/internal/log"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test").WithLogger(log.Discard())
	go h.Run()
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(h.Stop)
	return h
}

func attach(h *Hub) *Client {
	c := newClient(h, nil)
	h.register <- c
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	h := startHub(t)
	a, b := attach(h), attach(h)
	assert.Equal(t, 2, h.ClientCount())

	require.NoError(t, h.BroadcastJSON("status", map[string]int{"pages": 2}))

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, "status", msg.Kind)
		assert.JSONEq(t, `{"pages":2}`, string(msg.Data))
	}
}

func TestBroadcastJSONRejectsUnencodable(t *testing.T) {
	h := startHub(t)
	c := attach(h)

	assert.Error(t, h.BroadcastJSON("event", make(chan int)))
	require.NoError(t, h.BroadcastJSON("event", "next"))
	assert.JSONEq(t, `"next"`, string(receive(t, c).Data))
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := attach(h)
	h.unregister <- c

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	slow := attach(h)

	for i := 0; i < cap(slow.send)+1; i++ {
		h.broadcast <- Message{Kind: "event", Data: []byte(`{}`)}
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestStopClosesClients(t *testing.T) {
	h := New("stop").WithLogger(log.Discard())
	go h.Run()
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	c := attach(h)

	h.Stop()
	h.Stop()

	assert.False(t, h.IsRunning())
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestNewClientQueuesInitialMessages(t *testing.T) {
	h := startHub(t)
	c := NewClient(h, nil, Message{Kind: "status", Data: []byte(`{"hello":true}`)})

	require.NoError(t, h.BroadcastJSON("event", "later"))
	assert.JSONEq(t, `{"hello":true}`, string(receive(t, c).Data))
	assert.JSONEq(t, `"later"`, string(receive(t, c).Data))
}
