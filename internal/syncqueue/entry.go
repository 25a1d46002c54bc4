package syncqueue

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/hearthly/hearth/internal/models"
)

// ChangeType names the kind of mutation a queue entry replays.
type ChangeType string

const (
	Create ChangeType = "CREATE"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// LocalIDPrefix marks ids minted on the device before the server assigned one.
const LocalIDPrefix = "local_"

// IsLocalID reports whether id was minted locally.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Change is a mutation to record. Data is stored as given.
type Change struct {
	Type            ChangeType
	Entity          string
	EntityID        string
	Data            json.RawMessage
	ServerTimestamp *int64
}

// Entry is a persisted change.
type Entry struct {
	ID              uint            `json:"id"`
	Type            ChangeType      `json:"type"`
	Entity          string          `json:"entity"`
	EntityID        string          `json:"entity_id"`
	Data            json.RawMessage `json:"data,omitempty"`
	Timestamp       int64           `json:"timestamp"`
	ServerTimestamp *int64          `json:"server_timestamp,omitempty"`
	Status          Status          `json:"status"`
	RetryCount      int             `json:"retry_count"`
	Error           string          `json:"error,omitempty"`
}

// EnqueuedAt converts the entry timestamp.
func (e Entry) EnqueuedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func entryFromModel(m models.QueueEntry) Entry {
	entry := Entry{
		ID:              m.ID,
		Type:            ChangeType(m.Type),
		Entity:          m.Entity,
		EntityID:        m.EntityID,
		Timestamp:       m.Timestamp,
		ServerTimestamp: m.ServerTimestamp,
		Status:          Status(m.Status),
		RetryCount:      m.RetryCount,
	}
	if len(m.Data) > 0 {
		entry.Data = json.RawMessage(m.Data)
	}
	if m.Error != nil {
		entry.Error = *m.Error
	}
	return entry
}

func modelFromChange(c Change, timestamp int64) models.QueueEntry {
	row := models.QueueEntry{
		Type:            string(c.Type),
		Entity:          c.Entity,
		EntityID:        c.EntityID,
		Timestamp:       timestamp,
		ServerTimestamp: c.ServerTimestamp,
		Status:          string(StatusPending),
	}
	if len(c.Data) > 0 {
		row.Data = datatypes.JSON(c.Data)
	}
	return row
}
