package models

import (
	"time"

	"gorm.io/datatypes"
)

// CachedRecord is one entity snapshot held by the offline store.
type CachedRecord struct {
	Entity   string         `gorm:"primaryKey;size:64"`
	RecordID string         `gorm:"primaryKey;size:191"`
	Position int            `gorm:"not null;default:0"`
	Data     datatypes.JSON `gorm:"not null"`
	Size     int64          `gorm:"not null;default:0"`
	CachedAt time.Time      `gorm:"index"`
}

// TableName keeps offline tables grouped.
func (CachedRecord) TableName() string { return "offline_records" }
