package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, streams ...string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve("device", ParseStreams(strings.Split(r.URL.Query().Get("streams"), ",")), w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?streams=" + strings.Join(streams, ",")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// a pong proves the subscription was registered
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	var pong Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Event)
	return conn
}

func TestHubDeliversSubscribedStreams(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, StreamChores)
	require.EqualValues(t, 1, hub.ActiveConnections())

	hub.PublishChange(StreamShopping, "created", map[string]string{"id": "s1"})
	hub.PublishChange(StreamChores, "updated", map[string]string{"id": "c1"})

	var msg map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamChores, msg["stream"])
	require.Equal(t, "updated", msg["event"])
	require.Equal(t, map[string]any{"id": "c1"}, msg["data"])
}

func TestHubSubscribeControlMessage(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, StreamChores)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{"Shopping", "unknown"}}))
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamChores}}))
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))

	var pong Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Event)

	hub.PublishChange(StreamChores, "deleted", nil)
	hub.PublishChange(StreamShopping, "cleared", map[string]int{"removed": 2})

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamShopping, msg.Stream)
	require.Equal(t, "cleared", msg.Event)

	hub.mu.RLock()
	_, unknown := hub.subscriptions["unknown"]
	hub.mu.RUnlock()
	require.False(t, unknown)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.ActiveConnections() == 0 && len(hub.subscriptions) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseStreams(t *testing.T) {
	require.Equal(t, Streams(), ParseStreams(nil))
	require.Equal(t, Streams(), ParseStreams([]string{"", " "}))
	require.Equal(t, []string{"family"}, ParseStreams([]string{" Family ", "family"}))
	require.True(t, IsKnownStream("CHORES"))
	require.False(t, IsKnownStream("notifications"))
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://hearth.local:8000/ws", nil)
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "http://hearth.local:3000")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://evil.example")
	require.False(t, sameOriginOrLoopback(req))
}
