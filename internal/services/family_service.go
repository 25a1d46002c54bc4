package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/pkg/crypto"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

var (
	// ErrMemberNotFound indicates the requested family member does not exist.
	ErrMemberNotFound = apperrors.ErrNotFound.WithMessage("family member not found")
	// ErrMemberNameTaken is returned when another member already uses the name.
	ErrMemberNameTaken = apperrors.ErrConflict.WithMessage("a family member with that name already exists")
	// ErrInvalidPIN is returned when a member PIN does not match.
	ErrInvalidPIN = apperrors.ErrUnauthorized.WithMessage("invalid member PIN")
)

// FamilyService manages household members.
type FamilyService struct {
	db        *gorm.DB
	publisher ChangePublisher
}

// NewFamilyService constructs a family service once a database handle is supplied.
func NewFamilyService(db *gorm.DB, publisher ChangePublisher) (*FamilyService, error) {
	if db == nil {
		return nil, errors.New("family service: db is required")
	}
	return &FamilyService{db: db, publisher: publisher}, nil
}

// CreateMemberInput captures the fields accepted when adding a member. PIN is optional.
type CreateMemberInput struct {
	Name     string
	Role     string
	Color    string
	Earnings int64
	PIN      string
}

// List returns members ordered by name.
func (s *FamilyService) List(ctx context.Context) ([]models.FamilyMember, error) {
	ctx = ensuredContext(ctx)

	var members []models.FamilyMember
	if err := s.db.WithContext(ctx).Order("LOWER(name)").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("family service: list: %w", err)
	}
	return members, nil
}

// Get loads a single member.
func (s *FamilyService) Get(ctx context.Context, id string) (*models.FamilyMember, error) {
	ctx = ensuredContext(ctx)

	var member models.FamilyMember
	if err := s.db.WithContext(ctx).First(&member, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("family service: get: %w", err)
	}
	return &member, nil
}

// Create adds a member, hashing the PIN when one is supplied.
func (s *FamilyService) Create(ctx context.Context, input CreateMemberInput) (*models.FamilyMember, error) {
	ctx = ensuredContext(ctx)

	member := &models.FamilyMember{
		Name:     input.Name,
		Role:     input.Role,
		Color:    strings.TrimSpace(input.Color),
		Earnings: max(input.Earnings, 0),
	}
	member.Normalise()
	if member.Name == "" {
		return nil, apperrors.NewBadRequest("member name is required")
	}
	if member.Role != models.MemberRoleParent && member.Role != models.MemberRoleChild {
		return nil, apperrors.NewBadRequest("member role must be parent or child")
	}

	if pin := strings.TrimSpace(input.PIN); pin != "" {
		hash, err := crypto.HashPIN(pin)
		if err != nil {
			return nil, apperrors.NewBadRequest("member PIN must be 4 to 12 digits")
		}
		member.PINHash = hash
	}

	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return nil, memberWriteError("create", err)
	}

	publish(s.publisher, models.EntityFamily, EventCreated, member)
	return member, nil
}

// Update applies a partial update to a member.
func (s *FamilyService) Update(ctx context.Context, id string, patch models.FamilyPatch) (*models.FamilyMember, error) {
	ctx = ensuredContext(ctx)

	var member models.FamilyMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, "id = ?", strings.TrimSpace(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		patch.Apply(&member)
		if member.Name == "" {
			return apperrors.NewBadRequest("member name is required")
		}
		member.Earnings = max(member.Earnings, 0)
		return tx.Save(&member).Error
	})
	if err != nil {
		return nil, memberWriteError("update", err)
	}

	publish(s.publisher, models.EntityFamily, EventUpdated, &member)
	return &member, nil
}

// Delete removes a member and unassigns their chores.
func (s *FamilyService) Delete(ctx context.Context, id string) error {
	ctx = ensuredContext(ctx)
	id = strings.TrimSpace(id)

	var unassigned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&models.FamilyMember{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMemberNotFound
		}

		chores := tx.Model(&models.Chore{}).Where("assigned_to = ?", id).Update("assigned_to", nil)
		if chores.Error != nil {
			return chores.Error
		}
		unassigned = chores.RowsAffected
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return err
		}
		return fmt.Errorf("family service: delete: %w", err)
	}

	publish(s.publisher, models.EntityFamily, EventDeleted, map[string]string{"id": id})
	if unassigned > 0 {
		publish(s.publisher, models.EntityChores, EventUpdated, map[string]any{"unassigned_from": id, "count": unassigned})
	}
	return nil
}

// VerifyPIN checks a member PIN. Members without a PIN cannot sign in.
func (s *FamilyService) VerifyPIN(ctx context.Context, id, pin string) (*models.FamilyMember, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyPIN(member.PINHash, strings.TrimSpace(pin)) {
		return nil, ErrInvalidPIN
	}
	return member, nil
}
