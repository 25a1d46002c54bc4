package stores

import (
	"context"
	"strings"
	"time"

	"github.com/hearthly/hearth/internal/models"
)

// ChoreInput describes a new chore.
type ChoreInput struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	AssignedTo  *string    `json:"assigned_to"`
	Points      int        `json:"points" validate:"gte=0"`
	Reward      int64      `json:"reward" validate:"gte=0"`
	DueDate     *time.Time `json:"due_date"`
}

// ChoreStore holds the household chores and settles changes to them optimistically.
type ChoreStore struct {
	*base[models.Chore, *models.Chore]
}

// NewChoreStore constructs a chore store. Call Load before reading.
func NewChoreStore(deps Deps) *ChoreStore {
	return &ChoreStore{base: newBase[models.Chore](models.EntityChores, "chore", deps, applyPatch[models.Chore, models.ChorePatch])}
}

// Create adds a chore. A failed request keeps the chore and queues it.
func (s *ChoreStore) Create(ctx context.Context, in ChoreInput) (models.Chore, MutationResult, error) {
	if err := validate(in); err != nil {
		return models.Chore{}, MutationResult{}, err
	}
	now := s.deps.Clock().UTC()
	chore := models.Chore{
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		Points:      in.Points,
		Reward:      in.Reward,
		DueDate:     in.DueDate,
	}
	chore.CreatedAt = now
	chore.UpdatedAt = now
	chore.Normalise()
	return s.create(ctx, chore)
}

// Update edits chore fields. A failed request is rolled back.
func (s *ChoreStore) Update(ctx context.Context, id string, patch models.ChorePatch) (MutationResult, error) {
	if err := validate(patch); err != nil {
		return MutationResult{}, err
	}
	return s.update(ctx, id, PolicyRollback, patch, func(c *models.Chore) {
		patch.Apply(c)
	})
}

// Assign sets the member responsible for a chore. An empty memberID unassigns it.
func (s *ChoreStore) Assign(ctx context.Context, id, memberID string) (MutationResult, error) {
	patch := models.ChorePatch{AssignedTo: models.Null[string]()}
	if memberID = strings.TrimSpace(memberID); memberID != "" {
		patch.AssignedTo = models.Some(memberID)
	}
	return s.update(ctx, id, PolicyRollback, patch, func(c *models.Chore) {
		c.AssignedTo = patch.AssignedTo.Value
	})
}

// ToggleComplete flips the completion flag. A failed request keeps the change and queues it.
func (s *ChoreStore) ToggleComplete(ctx context.Context, id string) (MutationResult, error) {
	current, ok := s.Get(id)
	if !ok {
		s.ensureLoaded(ctx)
		if current, ok = s.Get(id); !ok {
			return MutationResult{}, s.notFound(id)
		}
	}

	done := !current.Completed
	now := s.deps.Clock().UTC()
	patch := models.ChorePatch{Completed: &done, CompletedAt: models.Null[time.Time]()}
	if done {
		patch.CompletedAt = models.Some(now)
	}
	return s.update(ctx, id, PolicyKeepAndQueue, patch, func(c *models.Chore) {
		c.SetCompleted(done, now)
	})
}

// Delete removes a chore. A failed request is rolled back.
func (s *ChoreStore) Delete(ctx context.Context, id string) (MutationResult, error) {
	return s.remove(ctx, id)
}

// Pending returns the chores that are not completed, in collection order.
func (s *ChoreStore) Pending() []models.Chore {
	var out []models.Chore
	for _, c := range s.List() {
		if !c.Completed {
			out = append(out, c)
		}
	}
	return out
}
