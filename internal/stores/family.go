package stores

import (
	"context"
	"strings"

	"github.com/hearthly/hearth/internal/models"
)

// MemberInput describes a new family member.
type MemberInput struct {
	Name  string `json:"name" validate:"required,notblank,max=120"`
	Role  string `json:"role" validate:"omitempty,oneof=parent child"`
	Color string `json:"color" validate:"max=16"`
}

// FamilyStore holds the household members.
type FamilyStore struct {
	*base[models.FamilyMember, *models.FamilyMember]
}

// NewFamilyStore constructs a family store.
func NewFamilyStore(deps Deps) *FamilyStore {
	return &FamilyStore{base: newBase[models.FamilyMember](models.EntityFamily, "family member", deps, applyPatch[models.FamilyMember, models.FamilyPatch])}
}

// Add creates a member. A failed request keeps the member and queues it.
func (s *FamilyStore) Add(ctx context.Context, in MemberInput) (models.FamilyMember, MutationResult, error) {
	if err := validate(in); err != nil {
		return models.FamilyMember{}, MutationResult{}, err
	}
	now := s.deps.Clock().UTC()
	member := models.FamilyMember{Name: in.Name, Role: in.Role, Color: in.Color}
	member.CreatedAt = now
	member.UpdatedAt = now
	member.Normalise()
	return s.create(ctx, member)
}

// Update edits member fields. A failed request is rolled back.
func (s *FamilyStore) Update(ctx context.Context, id string, patch models.FamilyPatch) (MutationResult, error) {
	if err := validate(patch); err != nil {
		return MutationResult{}, err
	}
	return s.update(ctx, id, PolicyRollback, patch, func(m *models.FamilyMember) {
		patch.Apply(m)
	})
}

// AdjustEarnings adds delta cents to a member's earnings, never going below zero.
// The resulting total is sent so that replays are idempotent.
func (s *FamilyStore) AdjustEarnings(ctx context.Context, id string, delta int64) (MutationResult, error) {
	current, ok := s.Get(id)
	if !ok {
		s.ensureLoaded(ctx)
		if current, ok = s.Get(id); !ok {
			return MutationResult{}, s.notFound(id)
		}
	}
	total := max(current.Earnings+delta, 0)
	patch := models.FamilyPatch{Earnings: &total}
	return s.update(ctx, id, PolicyRollback, patch, func(m *models.FamilyMember) {
		m.Earnings = total
	})
}

// Remove deletes a member. A failed request is rolled back.
func (s *FamilyStore) Remove(ctx context.Context, id string) (MutationResult, error) {
	return s.remove(ctx, id)
}

// Find returns the first member whose name matches, ignoring case.
func (s *FamilyStore) Find(name string) (models.FamilyMember, bool) {
	for _, m := range s.List() {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return models.FamilyMember{}, false
}
