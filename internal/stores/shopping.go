package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/models"
	"github.com/hearthly/hearth/internal/syncqueue"
)

// ItemInput describes a new shopping list item.
type ItemInput struct {
	Name     string `json:"name" validate:"required,notblank,max=160"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Category string `json:"category" validate:"max=60"`
}

// ShoppingStore holds the shared shopping list.
type ShoppingStore struct {
	*base[models.ShoppingItem, *models.ShoppingItem]
}

// NewShoppingStore constructs a shopping store.
func NewShoppingStore(deps Deps) *ShoppingStore {
	return &ShoppingStore{base: newBase[models.ShoppingItem](models.EntityShopping, "shopping item", deps, applyPatch[models.ShoppingItem, models.ShoppingPatch])}
}

// Add puts an item on the list. A failed request keeps the item and queues it.
func (s *ShoppingStore) Add(ctx context.Context, in ItemInput) (models.ShoppingItem, MutationResult, error) {
	if err := validate(in); err != nil {
		return models.ShoppingItem{}, MutationResult{}, err
	}
	now := s.deps.Clock().UTC()
	item := models.ShoppingItem{Name: in.Name, Quantity: in.Quantity, Category: in.Category}
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Normalise()
	return s.create(ctx, item)
}

// Update edits item fields. A failed request is rolled back.
func (s *ShoppingStore) Update(ctx context.Context, id string, patch models.ShoppingPatch) (MutationResult, error) {
	if err := validate(patch); err != nil {
		return MutationResult{}, err
	}
	return s.update(ctx, id, PolicyRollback, patch, func(i *models.ShoppingItem) {
		patch.Apply(i)
	})
}

// TogglePurchased flips the purchased flag. A failed request keeps the change and queues it.
func (s *ShoppingStore) TogglePurchased(ctx context.Context, id string) (MutationResult, error) {
	current, ok := s.Get(id)
	if !ok {
		s.ensureLoaded(ctx)
		if current, ok = s.Get(id); !ok {
			return MutationResult{}, s.notFound(id)
		}
	}
	purchased := !current.Purchased
	patch := models.ShoppingPatch{Purchased: &purchased}
	return s.update(ctx, id, PolicyKeepAndQueue, patch, func(i *models.ShoppingItem) {
		i.Purchased = purchased
	})
}

// Remove deletes an item. A failed request is rolled back.
func (s *ShoppingStore) Remove(ctx context.Context, id string) (MutationResult, error) {
	return s.remove(ctx, id)
}

// ClearPurchased drops every purchased item. Online it is a single request that is
// rolled back on failure; offline each server-known item gets a queued DELETE.
func (s *ShoppingStore) ClearPurchased(ctx context.Context) (int, MutationResult, error) {
	s.ensureLoaded(ctx)

	removed, undo := s.items.removeWhere(func(i models.ShoppingItem) bool { return i.Purchased })
	if len(removed) == 0 {
		return 0, MutationResult{}, nil
	}

	var local, known []string
	for _, item := range removed {
		if syncqueue.IsLocalID(item.ID) {
			local = append(local, item.ID)
			continue
		}
		known = append(known, item.ID)
	}

	var res MutationResult
	if len(known) > 0 {
		var err error
		if res, err = s.clearKnown(ctx, known, undo); err != nil {
			return 0, MutationResult{}, err
		}
	}

	var discardErr error
	for _, id := range local {
		if _, err := s.deps.Queue.DiscardEntity(ctx, s.entity, id); err != nil {
			discardErr = multierr.Append(discardErr, fmt.Errorf("discard %s: %w", id, err))
		}
	}
	if discardErr != nil {
		s.log.Warn("discard local shopping changes failed", zap.Error(discardErr))
	}

	s.persist(ctx)
	return len(removed), res, nil
}

func (s *ShoppingStore) clearKnown(ctx context.Context, ids []string, undo func()) (MutationResult, error) {
	if !s.deps.Network.Online() {
		return s.queueDeletes(ctx, ids, undo)
	}

	_, err := s.deps.API.Post(ctx, path.Join(s.deps.APIPrefix, s.entity, "clear-purchased"), json.RawMessage("{}"))
	if err == nil {
		return MutationResult{}, nil
	}
	s.noteFailure(err)
	undo()
	s.log.Warn("clear purchased rolled back", zap.Int("items", len(ids)), zap.Error(err))
	return MutationResult{}, err
}

func (s *ShoppingStore) queueDeletes(ctx context.Context, ids []string, undo func()) (MutationResult, error) {
	var (
		res  = MutationResult{Offline: true, Queued: true}
		errs error
	)
	for _, id := range ids {
		qid, err := s.deps.Queue.Enqueue(ctx, syncqueue.Change{
			Type:     syncqueue.Delete,
			Entity:   s.entity,
			EntityID: id,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		res.QueueID = qid
	}
	if errs != nil {
		undo()
		return MutationResult{}, fmt.Errorf("queue clear purchased: %w", errs)
	}
	return res, nil
}
