package models

import "time"

// Metadata is a key/value row used by the offline store for cache stamps and persistence grants.
type Metadata struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName keeps offline tables grouped.
func (Metadata) TableName() string { return "offline_metadata" }
