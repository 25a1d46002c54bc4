package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

// ErrItemNotFound indicates the requested shopping item does not exist.
var ErrItemNotFound = apperrors.ErrNotFound.WithMessage("shopping item not found")

// ShoppingService manages the shared shopping list.
type ShoppingService struct {
	db        *gorm.DB
	publisher ChangePublisher
}

// NewShoppingService constructs a shopping service once a database handle is supplied.
func NewShoppingService(db *gorm.DB, publisher ChangePublisher) (*ShoppingService, error) {
	if db == nil {
		return nil, errors.New("shopping service: db is required")
	}
	return &ShoppingService{db: db, publisher: publisher}, nil
}

// CreateItemInput captures the fields accepted when adding an item.
type CreateItemInput struct {
	Name      string
	Quantity  int
	Category  string
	Purchased bool
}

// List returns items with unpurchased entries first, then by category and name.
func (s *ShoppingService) List(ctx context.Context, category string) ([]models.ShoppingItem, error) {
	ctx = ensuredContext(ctx)

	q := s.db.WithContext(ctx).Model(&models.ShoppingItem{})
	if category = strings.ToLower(strings.TrimSpace(category)); category != "" {
		q = q.Where("category = ?", category)
	}

	var items []models.ShoppingItem
	if err := q.Order("purchased ASC").Order("category ASC").Order("LOWER(name)").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("shopping service: list: %w", err)
	}
	return items, nil
}

// Get loads a single item.
func (s *ShoppingService) Get(ctx context.Context, id string) (*models.ShoppingItem, error) {
	ctx = ensuredContext(ctx)

	var item models.ShoppingItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("shopping service: get: %w", err)
	}
	return &item, nil
}

// Create adds an item to the list.
func (s *ShoppingService) Create(ctx context.Context, input CreateItemInput) (*models.ShoppingItem, error) {
	ctx = ensuredContext(ctx)

	item := &models.ShoppingItem{
		Name:      input.Name,
		Quantity:  input.Quantity,
		Category:  input.Category,
		Purchased: input.Purchased,
	}
	item.Normalise()
	if item.Name == "" {
		return nil, apperrors.NewBadRequest("item name is required")
	}

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("shopping service: create: %w", err)
	}

	publish(s.publisher, models.EntityShopping, EventCreated, item)
	return item, nil
}

// Update applies a partial update to an item.
func (s *ShoppingService) Update(ctx context.Context, id string, patch models.ShoppingPatch) (*models.ShoppingItem, error) {
	ctx = ensuredContext(ctx)

	var item models.ShoppingItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, "id = ?", strings.TrimSpace(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		patch.Apply(&item)
		if item.Name == "" {
			return apperrors.NewBadRequest("item name is required")
		}
		return tx.Save(&item).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("shopping service: update: %w", err)
	}

	publish(s.publisher, models.EntityShopping, EventUpdated, &item)
	return &item, nil
}

// Delete removes an item.
func (s *ShoppingService) Delete(ctx context.Context, id string) error {
	ctx = ensuredContext(ctx)
	id = strings.TrimSpace(id)

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ShoppingItem{})
	if result.Error != nil {
		return fmt.Errorf("shopping service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}

	publish(s.publisher, models.EntityShopping, EventDeleted, map[string]string{"id": id})
	return nil
}

// ClearPurchased removes every purchased item and reports how many were removed.
func (s *ShoppingService) ClearPurchased(ctx context.Context) (int64, error) {
	ctx = ensuredContext(ctx)

	result := s.db.WithContext(ctx).Where("purchased = ?", true).Delete(&models.ShoppingItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("shopping service: clear purchased: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		publish(s.publisher, models.EntityShopping, EventCleared, map[string]int64{"removed": result.RowsAffected})
	}
	return result.RowsAffected, nil
}
