package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

// Change events published after successful writes.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventCleared = "cleared"
)

// ChangePublisher is notified after a write commits. The realtime hub implements it.
type ChangePublisher interface {
	PublishChange(stream, event string, data any)
}

func publish(p ChangePublisher, stream, event string, data any) {
	if p == nil {
		return
	}
	p.PublishChange(stream, event, data)
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// ErrChoreNotFound indicates the requested chore does not exist.
var ErrChoreNotFound = apperrors.ErrNotFound.WithMessage("chore not found")

// ChoreService manages household chores.
type ChoreService struct {
	db        *gorm.DB
	publisher ChangePublisher
	now       func() time.Time
}

// NewChoreService constructs a chore service once a database handle is supplied.
// The publisher may be nil.
func NewChoreService(db *gorm.DB, publisher ChangePublisher) (*ChoreService, error) {
	if db == nil {
		return nil, errors.New("chore service: db is required")
	}
	return &ChoreService{db: db, publisher: publisher, now: time.Now}, nil
}

// ListChoresOptions filters chore listings.
type ListChoresOptions struct {
	AssignedTo string
	Completed  *bool
}

// CreateChoreInput captures the fields accepted when creating a chore.
type CreateChoreInput struct {
	Title       string
	Description string
	AssignedTo  *string
	Points      int
	Reward      int64
	DueDate     *time.Time
	Completed   bool
	CompletedAt *time.Time
}

// List returns chores ordered by creation time.
func (s *ChoreService) List(ctx context.Context, opts ListChoresOptions) ([]models.Chore, error) {
	ctx = ensuredContext(ctx)

	q := s.db.WithContext(ctx).Model(&models.Chore{})
	if assignee := strings.TrimSpace(opts.AssignedTo); assignee != "" {
		q = q.Where("assigned_to = ?", assignee)
	}
	if opts.Completed != nil {
		q = q.Where("completed = ?", *opts.Completed)
	}

	var chores []models.Chore
	if err := q.Order("created_at ASC").Find(&chores).Error; err != nil {
		return nil, fmt.Errorf("chore service: list: %w", err)
	}
	return chores, nil
}

// Get loads a single chore.
func (s *ChoreService) Get(ctx context.Context, id string) (*models.Chore, error) {
	ctx = ensuredContext(ctx)

	var chore models.Chore
	if err := s.db.WithContext(ctx).First(&chore, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChoreNotFound
		}
		return nil, fmt.Errorf("chore service: get: %w", err)
	}
	return &chore, nil
}

// Create stores a new chore.
func (s *ChoreService) Create(ctx context.Context, input CreateChoreInput) (*models.Chore, error) {
	ctx = ensuredContext(ctx)

	chore := &models.Chore{
		Title:       input.Title,
		Description: input.Description,
		AssignedTo:  input.AssignedTo,
		Points:      input.Points,
		Reward:      input.Reward,
		DueDate:     input.DueDate,
	}
	chore.Normalise()
	if chore.Title == "" {
		return nil, apperrors.NewBadRequest("chore title is required")
	}
	if input.Completed {
		at := s.now()
		if input.CompletedAt != nil {
			at = *input.CompletedAt
		}
		chore.SetCompleted(true, at)
	}

	if err := s.db.WithContext(ctx).Create(chore).Error; err != nil {
		return nil, fmt.Errorf("chore service: create: %w", err)
	}

	publish(s.publisher, models.EntityChores, EventCreated, chore)
	return chore, nil
}

// Update applies a partial update to a chore.
func (s *ChoreService) Update(ctx context.Context, id string, patch models.ChorePatch) (*models.Chore, error) {
	ctx = ensuredContext(ctx)

	var chore models.Chore
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&chore, "id = ?", strings.TrimSpace(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChoreNotFound
			}
			return err
		}

		patch.Apply(&chore)
		if chore.Title == "" {
			return apperrors.NewBadRequest("chore title is required")
		}
		return tx.Save(&chore).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("chore service: update: %w", err)
	}

	publish(s.publisher, models.EntityChores, EventUpdated, &chore)
	return &chore, nil
}

// Delete removes a chore.
func (s *ChoreService) Delete(ctx context.Context, id string) error {
	ctx = ensuredContext(ctx)
	id = strings.TrimSpace(id)

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Chore{})
	if result.Error != nil {
		return fmt.Errorf("chore service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChoreNotFound
	}

	publish(s.publisher, models.EntityChores, EventDeleted, map[string]string{"id": id})
	return nil
}
