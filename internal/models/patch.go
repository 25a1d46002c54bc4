package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional is a patch field that tells an absent key apart from an explicit null.
// Use it with the omitzero json option.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a set Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// IsZero reports whether the field is absent.
func (o Optional[T]) IsZero() bool { return !o.Set }

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// ChorePatch is a partial chore update. Only present fields are applied.
type ChorePatch struct {
	Title       *string             `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=2000"`
	AssignedTo  Optional[string]    `json:"assigned_to,omitzero"`
	Points      *int                `json:"points,omitempty" validate:"omitempty,gte=0"`
	Reward      *int64              `json:"reward,omitempty" validate:"omitempty,gte=0"`
	DueDate     Optional[time.Time] `json:"due_date,omitzero"`
	Completed   *bool               `json:"completed,omitempty"`
	CompletedAt Optional[time.Time] `json:"completed_at,omitzero"`
}

// Apply copies the present fields onto c.
func (p ChorePatch) Apply(c *Chore) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.AssignedTo.Set {
		c.AssignedTo = p.AssignedTo.Value
	}
	if p.Points != nil {
		c.Points = *p.Points
	}
	if p.Reward != nil {
		c.Reward = *p.Reward
	}
	if p.DueDate.Set {
		c.DueDate = p.DueDate.Value
	}
	if p.Completed != nil {
		at := time.Now()
		if p.CompletedAt.Value != nil {
			at = *p.CompletedAt.Value
		}
		c.SetCompleted(*p.Completed, at)
	}
	c.Normalise()
}

// FamilyPatch is a partial family member update.
type FamilyPatch struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,notblank,max=120"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=parent child"`
	Color    *string `json:"color,omitempty" validate:"omitempty,max=16"`
	Earnings *int64  `json:"earnings,omitempty" validate:"omitempty,gte=0"`
}

// Apply copies the present fields onto m.
func (p FamilyPatch) Apply(m *FamilyMember) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.Color != nil {
		m.Color = *p.Color
	}
	if p.Earnings != nil {
		m.Earnings = *p.Earnings
	}
	m.Normalise()
}

// ShoppingPatch is a partial shopping item update.
type ShoppingPatch struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,notblank,max=160"`
	Quantity  *int    `json:"quantity,omitempty" validate:"omitempty,gte=1"`
	Category  *string `json:"category,omitempty" validate:"omitempty,max=60"`
	Purchased *bool   `json:"purchased,omitempty"`
}

// Apply copies the present fields onto i.
func (p ShoppingPatch) Apply(i *ShoppingItem) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	if p.Category != nil {
		i.Category = *p.Category
	}
	if p.Purchased != nil {
		i.Purchased = *p.Purchased
	}
	i.Normalise()
}
