package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Message is the JSON payload delivered to change-feed subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans household entity changes out to connected devices.
type Hub struct {
	mu sync.RWMutex
	// stream -> subscriber -> connections
	subscriptions map[string]map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	active        atomic.Int64
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the HTTP connection and subscribes it to streams. Streams outside
// the known set are ignored.
func (h *Hub) Serve(subscriber string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		monitoring.RecordRealtimeFailure("", "upgrade", err.Error())
		return
	}

	client := newConnection(h, conn, subscriber)
	h.active.Add(1)
	monitoring.RecordRealtimeConnection(1)
	h.subscribe(client, streams)
	h.log.Debug("subscriber connected", zap.String("subscriber", subscriber), zap.Strings("streams", streams))

	go client.writeLoop()
	client.readLoop()
}

// ActiveConnections reports the number of open websocket connections.
func (h *Hub) ActiveConnections() int64 {
	return h.active.Load()
}

// PublishChange broadcasts an entity change on its stream.
func (h *Hub) PublishChange(stream, event string, data any) {
	h.BroadcastStream(stream, Message{Event: event, Data: data})
}

// BroadcastStream delivers a message to every subscriber of stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	bySubscriber, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	message.Stream = stream
	monitoring.RecordRealtimeBroadcast(stream)
	for _, clients := range bySubscriber {
		for client := range clients {
			h.enqueue(client, message)
		}
	}
}

func (h *Hub) subscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if !IsKnownStream(stream) {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("subscriber", client.subscriber))
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}

		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[string]map[*connection]struct{})
		}
		if h.subscriptions[stream][client.subscriber] == nil {
			h.subscriptions[stream][client.subscriber] = make(map[*connection]struct{})
		}

		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client.subscriber][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string) {
	delete(client.streams, stream)

	bySubscriber, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	clients := bySubscriber[client.subscriber]
	delete(clients, client)
	if len(clients) == 0 {
		delete(bySubscriber, client.subscriber)
	}
	if len(bySubscriber) == 0 {
		delete(h.subscriptions, stream)
	}
}

// enqueue runs under h.mu read lock; slow clients are closed asynchronously.
func (h *Hub) enqueue(client *connection, message Message) {
	if client.closed.Load() {
		return
	}
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("subscriber", client.subscriber))
		monitoring.RecordRealtimeFailure(message.Stream, "backpressure", "subscriber buffer full")
		go client.close()
	}
}

type connection struct {
	hub        *Hub
	socket     *websocket.Conn
	subscriber string
	streams    map[string]struct{}
	send       chan Message
	once       sync.Once
	closed     atomic.Bool
	done       chan struct{}
}

func newConnection(hub *Hub, conn *websocket.Conn, subscriber string) *connection {
	return &connection{
		hub:        hub,
		socket:     conn,
		subscriber: subscriber,
		streams:    make(map[string]struct{}),
		send:       make(chan Message, defaultBufferSize),
		done:       make(chan struct{}),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Info("unexpected close", zap.String("subscriber", c.subscriber), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("subscriber", c.subscriber), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			select {
			case c.send <- Message{Event: "pong"}:
			case <-c.done:
				return
			}
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				monitoring.RecordRealtimeFailure(message.Stream, "write", err.Error())
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.closed.Store(true)
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
		c.hub.active.Add(-1)
		monitoring.RecordRealtimeConnection(-1)
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := hostWithoutPort(u.Host)
	return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	var out []string
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
