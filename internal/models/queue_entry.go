package models

import (
	"time"

	"gorm.io/datatypes"
)

// QueueEntry is a persisted local mutation awaiting remote application.
type QueueEntry struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Type            string `gorm:"type:varchar(10);not null"`
	Entity          string `gorm:"type:varchar(64);not null;index:idx_sync_queue_entity"`
	EntityID        string `gorm:"type:varchar(191);not null;index:idx_sync_queue_entity"`
	Data            datatypes.JSON
	Timestamp       int64 `gorm:"not null;index"`
	ServerTimestamp *int64
	Status          string  `gorm:"type:varchar(10);not null;index"`
	RetryCount      int     `gorm:"not null;default:0"`
	Error           *string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName names the queue table.
func (QueueEntry) TableName() string { return "sync_queue" }
