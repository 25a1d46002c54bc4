package realtime

import "github.com/hearthly/hearth/internal/models"

// Household change-feed streams, one per synced entity collection.
const (
	StreamChores   = models.EntityChores
	StreamFamily   = models.EntityFamily
	StreamShopping = models.EntityShopping
)

// Streams lists every stream a device may subscribe to.
func Streams() []string {
	return []string{StreamChores, StreamFamily, StreamShopping}
}

// IsKnownStream reports whether stream is served by the hub.
func IsKnownStream(stream string) bool {
	switch normalizeStream(stream) {
	case StreamChores, StreamFamily, StreamShopping:
		return true
	}
	return false
}

// ParseStreams normalises a subscription list; empty input selects all streams.
func ParseStreams(values []string) []string {
	streams := uniqueStreams(values)
	if len(streams) == 0 {
		return Streams()
	}
	return streams
}
