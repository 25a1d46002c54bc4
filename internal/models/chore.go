package models

import (
	"strings"
	"time"
)

// EntityChores tags chore collections and queue entries.
const EntityChores = "chores"

// Chore is a household task that can be assigned to a family member.
type Chore struct {
	BaseModel

	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	AssignedTo  *string    `gorm:"type:varchar(64);index" json:"assigned_to,omitempty"`
	Points      int        `gorm:"not null;default:0" json:"points"`
	Reward      int64      `gorm:"not null;default:0" json:"reward"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `gorm:"not null;default:false;index" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Normalise trims user supplied text fields.
func (c *Chore) Normalise() {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	if c.AssignedTo != nil && strings.TrimSpace(*c.AssignedTo) == "" {
		c.AssignedTo = nil
	}
}

// SetCompleted flips the completion flag and keeps CompletedAt consistent with it.
func (c *Chore) SetCompleted(done bool, at time.Time) {
	c.Completed = done
	if done {
		stamp := at.UTC()
		c.CompletedAt = &stamp
		return
	}
	c.CompletedAt = nil
}
