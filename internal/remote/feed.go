package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedHandshakeTimeout = 10 * time.Second
	feedPongWait         = 60 * time.Second
)

// ChangeEvent is one entity change announced by the server.
type ChangeEvent struct {
	Stream string          `json:"stream"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Feed listens on the server's realtime websocket for entity changes.
type Feed struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *zap.Logger
}

// Feed prepares a change feed subscribed to streams.
func (c *Client) Feed(streams ...string) *Feed {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if len(streams) > 0 {
		u.RawQuery = url.Values{"streams": {strings.Join(streams, ",")}}.Encode()
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	return &Feed{
		url:    u.String(),
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: feedHandshakeTimeout},
		log:    c.log,
	}
}

// Run delivers events to handle until ctx is cancelled or the connection drops.
// It returns nil only on cancellation; callers reconnect on error.
func (f *Feed) Run(ctx context.Context, handle func(ChangeEvent)) error {
	conn, resp, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("remote: dial feed: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("remote: dial feed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	f.log.Debug("change feed connected", zap.String("url", f.url))
	for {
		var event ChangeEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remote: read feed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		if event.Stream == "" {
			continue
		}
		handle(event)
	}
}
