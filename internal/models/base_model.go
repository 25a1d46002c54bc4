package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all server-side household entities.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// GetID returns the entity identifier.
func (m BaseModel) GetID() string { return m.ID }

// SetID replaces the entity identifier.
func (m *BaseModel) SetID(id string) { m.ID = id }

// UpdatedAtMillis reports the last server modification as epoch milliseconds. Zero when unset.
func (m BaseModel) UpdatedAtMillis() int64 {
	if m.UpdatedAt.IsZero() {
		return 0
	}
	return m.UpdatedAt.UnixMilli()
}
