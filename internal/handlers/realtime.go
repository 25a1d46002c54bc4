package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hearthly/hearth/internal/middleware"
	"github.com/hearthly/hearth/internal/realtime"
	"github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/response"
)

// RealtimeHandler upgrades authenticated requests into change-feed websockets.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to the requested streams, or to every stream when
// none are given. Unknown stream names are rejected before the upgrade.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound.WithMessage("realtime feed is disabled"))
		return
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	requested := gatherStreams(c)
	for _, stream := range requested {
		if !realtime.IsKnownStream(stream) {
			response.Error(c, errors.NewBadRequest("unknown stream "+stream))
			return
		}
	}

	subscriber := claims.MemberID
	if subscriber == "" {
		subscriber = claims.Role
	}
	h.hub.Serve(subscriber, realtime.ParseStreams(requested), c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	streams := append([]string(nil), c.QueryArray("stream")...)
	if raw := c.Query("streams"); raw != "" {
		streams = append(streams, strings.Split(raw, ",")...)
	}

	out := streams[:0]
	for _, stream := range streams {
		if stream = strings.ToLower(strings.TrimSpace(stream)); stream != "" {
			out = append(out, stream)
		}
	}
	return out
}
