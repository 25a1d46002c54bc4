package models

import "strings"

// EntityFamily tags family member collections and queue entries.
const EntityFamily = "family"

// Family member roles.
const (
	MemberRoleParent = "parent"
	MemberRoleChild  = "child"
)

// FamilyMember is a person in the household. Earnings are tracked in cents.
type FamilyMember struct {
	BaseModel

	Name     string `gorm:"type:varchar(120);not null;uniqueIndex" json:"name"`
	Role     string `gorm:"type:varchar(20);not null;default:'child'" json:"role"`
	Color    string `gorm:"type:varchar(16)" json:"color,omitempty"`
	Earnings int64  `gorm:"not null;default:0" json:"earnings"`
	PINHash  string `gorm:"type:varchar(100)" json:"-"`
}

// Normalise lower-cases the role and trims the name.
func (m *FamilyMember) Normalise() {
	m.Name = strings.TrimSpace(m.Name)
	m.Role = strings.ToLower(strings.TrimSpace(m.Role))
	if m.Role == "" {
		m.Role = MemberRoleChild
	}
}
