package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/offline"
	"github.com/hearthly/hearth/internal/syncqueue"
	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/validator"
)

// base carries the optimistic mutation protocol shared by every domain store.
type base[T any, P entityPtr[T]] struct {
	entity string
	label  string
	deps   Deps
	items  collection[T, P]
	// patch applies a queued UPDATE payload to an item.
	patch func(*T, json.RawMessage) error
	log   *zap.Logger
	unsub func()
}

func newBase[T any, P entityPtr[T]](entity, label string, deps Deps, patch func(*T, json.RawMessage) error) *base[T, P] {
	deps = deps.withDefaults()
	b := &base[T, P]{
		entity: entity,
		label:  label,
		deps:   deps,
		patch:  patch,
		log:    deps.Logger.With(zap.String("entity", entity)),
	}
	b.unsub = deps.Queue.Bus().Subscribe(b.onQueueEvent)
	return b
}

// Close detaches the store from queue events.
func (b *base[T, P]) Close() {
	if b.unsub != nil {
		b.unsub()
	}
}

// List returns a copy of the in-memory collection.
func (b *base[T, P]) List() []T {
	return b.items.all()
}

// Get returns the item with id from memory.
func (b *base[T, P]) Get(id string) (T, bool) {
	return b.items.get(id)
}

// applyPatch decodes payload as a Patch and applies it to item.
func applyPatch[T any, Patch interface{ Apply(*T) }](item *T, payload json.RawMessage) error {
	var patch Patch
	if err := json.Unmarshal(payload, &patch); err != nil {
		return err
	}
	patch.Apply(item)
	return nil
}

// Load fetches the collection from the server when online and falls back to the
// offline cache otherwise. A successful fetch refreshes the cache. Changes still
// waiting in the queue are replayed onto the fetched list.
func (b *base[T, P]) Load(ctx context.Context) (LoadResult, error) {
	var remoteErr error
	if b.deps.Network.Online() {
		data, err := b.deps.API.Get(ctx, b.collectionPath())
		if err == nil {
			var items []T
			if err := json.Unmarshal(data, &items); err != nil {
				return LoadResult{}, fmt.Errorf("decode %s: %w", b.entity, err)
			}
			items = b.overlayPending(ctx, items)
			b.items.reset(items)
			b.persist(ctx)
			return LoadResult{Count: len(items)}, nil
		}
		remoteErr = err
		b.noteFailure(err)
		b.log.Warn("remote load failed, using offline cache", zap.Error(err))
	}

	n, err := b.loadCached(ctx)
	if err != nil {
		if remoteErr != nil {
			return LoadResult{}, errors.Join(remoteErr, err)
		}
		return LoadResult{}, err
	}
	return LoadResult{FromCache: true, Count: n}, nil
}

func (b *base[T, P]) loadCached(ctx context.Context) (int, error) {
	records, err := b.deps.Cache.GetCachedCollection(ctx, b.entity)
	if err != nil {
		return 0, err
	}
	items, err := offline.Decode[T](records)
	if err != nil {
		return 0, fmt.Errorf("decode cached %s: %w", b.entity, err)
	}
	b.items.reset(items)
	return len(items), nil
}

// overlayPending replays queued changes onto a fetched server list: queued
// DELETE targets are dropped, queued UPDATEs are patched in and unsynced local
// creations are appended.
func (b *base[T, P]) overlayPending(ctx context.Context, server []T) []T {
	local := b.pendingLocal(ctx, server)
	entries, err := b.deps.Queue.GetPending(ctx)
	if err != nil {
		b.log.Warn("read pending changes failed, queued edits not replayed", zap.Error(err))
		return append(server, local...)
	}

	deleted := make(map[string]struct{})
	updates := make(map[string][]json.RawMessage)
	for _, e := range entries {
		if e.Entity != b.entity || syncqueue.IsLocalID(e.EntityID) {
			continue
		}
		switch e.Type {
		case syncqueue.Delete:
			deleted[e.EntityID] = struct{}{}
		case syncqueue.Update:
			updates[e.EntityID] = append(updates[e.EntityID], e.Data)
		}
	}

	out := make([]T, 0, len(server)+len(local))
	for _, item := range server {
		id := idOf[T, P](item)
		if _, ok := deleted[id]; ok {
			continue
		}
		if b.patch != nil {
			for _, payload := range updates[id] {
				if err := b.patch(&item, payload); err != nil {
					b.log.Warn("replay queued update failed", zap.String("id", id), zap.Error(err))
				}
			}
		}
		out = append(out, item)
	}
	return append(out, local...)
}

// pendingLocal returns locally created items the server has not seen yet.
func (b *base[T, P]) pendingLocal(ctx context.Context, server []T) []T {
	source := b.items.all()
	if !b.items.isLoaded() {
		records, err := b.deps.Cache.GetCachedCollection(ctx, b.entity)
		if err != nil {
			return nil
		}
		if source, err = offline.Decode[T](records); err != nil {
			return nil
		}
	}

	known := make(map[string]struct{}, len(server))
	for _, item := range server {
		known[idOf[T, P](item)] = struct{}{}
	}
	var out []T
	for _, item := range source {
		id := idOf[T, P](item)
		if _, ok := known[id]; ok || !syncqueue.IsLocalID(id) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (b *base[T, P]) ensureLoaded(ctx context.Context) {
	if b.items.isLoaded() {
		return
	}
	if _, err := b.Load(ctx); err != nil {
		b.log.Warn("load before mutation failed", zap.Error(err))
	}
}

// persist snapshots memory into the offline cache. Failures are logged only.
func (b *base[T, P]) persist(ctx context.Context) {
	if !b.items.isLoaded() {
		return
	}
	records, err := offline.Snapshot(b.items.all(), idOf[T, P])
	if err != nil {
		b.log.Warn("snapshot collection failed", zap.Error(err))
		return
	}
	if err := b.deps.Cache.CacheCollection(context.WithoutCancel(ctx), b.entity, records); err != nil {
		b.log.Warn("cache collection failed", zap.Error(err))
	}
}

type mutation struct {
	change syncqueue.Change
	policy Policy
	call   mutationRequest
	// settle reconciles memory with the server response. Optional.
	settle func(data json.RawMessage) error
	undo   func()
	// goneIsDone treats a NotFound response as success.
	goneIsDone bool
}

// run settles a mutation already applied to memory.
func (b *base[T, P]) run(ctx context.Context, m mutation) (MutationResult, error) {
	local := syncqueue.IsLocalID(m.change.EntityID) && m.change.Type != syncqueue.Create
	if !b.deps.Network.Online() || local {
		return b.enqueue(ctx, m)
	}

	data, err := m.call(ctx)
	if err != nil && m.goneIsDone && apperrors.IsNotFound(err) {
		err = nil
		data = nil
	}
	if err == nil {
		if m.settle != nil && len(data) > 0 {
			if err := m.settle(data); err != nil {
				b.log.Warn("reconcile server response failed", zap.String("id", m.change.EntityID), zap.Error(err))
			}
		}
		b.persist(ctx)
		return MutationResult{}, nil
	}

	b.noteFailure(err)
	if m.policy == PolicyKeepAndQueue {
		b.log.Info("mutation kept for replay",
			zap.String("type", string(m.change.Type)),
			zap.String("id", m.change.EntityID),
			zap.Stringer("policy", m.policy),
			zap.Error(err),
		)
		return b.enqueue(ctx, m)
	}

	m.undo()
	b.log.Warn("mutation rolled back",
		zap.String("type", string(m.change.Type)),
		zap.String("id", m.change.EntityID),
		zap.Stringer("policy", m.policy),
		zap.Error(err),
	)
	return MutationResult{}, err
}

func (b *base[T, P]) enqueue(ctx context.Context, m mutation) (MutationResult, error) {
	id, err := b.deps.Queue.Enqueue(ctx, m.change)
	if err != nil {
		m.undo()
		return MutationResult{}, fmt.Errorf("queue %s %s: %w", m.change.Type, b.label, err)
	}
	b.persist(ctx)
	return MutationResult{Offline: true, Queued: true, QueueID: id}, nil
}

func (b *base[T, P]) noteFailure(err error) {
	if errors.Is(err, apperrors.ErrRemoteUnavailable) {
		b.deps.Network.Set(false)
	}
}

// create adds item under a fresh local id and settles it with policy keep-and-queue.
func (b *base[T, P]) create(ctx context.Context, item T) (T, MutationResult, error) {
	b.ensureLoaded(ctx)

	localID := newLocalID()
	P(&item).SetID(localID)
	payload, err := json.Marshal(item)
	if err != nil {
		return item, MutationResult{}, err
	}

	created := item
	undo := b.items.put(item)
	res, err := b.run(ctx, mutation{
		change: syncqueue.Change{
			Type:     syncqueue.Create,
			Entity:   b.entity,
			EntityID: localID,
			Data:     payload,
		},
		policy: PolicyKeepAndQueue,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return b.deps.API.Post(ctx, b.collectionPath(), json.RawMessage(payload))
		},
		settle: func(data json.RawMessage) error {
			var server T
			if err := json.Unmarshal(data, &server); err != nil {
				return err
			}
			if idOf[T, P](server) == "" {
				return errors.New("server response has no id")
			}
			b.items.replaceID(localID, server)
			created = server
			return nil
		},
		undo: undo,
	})
	if err != nil {
		return item, res, err
	}
	return created, res, nil
}

// update applies fn in memory and sends body as a partial update.
func (b *base[T, P]) update(ctx context.Context, id string, policy Policy, body any, fn func(*T)) (MutationResult, error) {
	b.ensureLoaded(ctx)

	before, _, undo, ok := b.items.modify(id, fn)
	if !ok {
		return MutationResult{}, b.notFound(id)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		undo()
		return MutationResult{}, err
	}

	change := syncqueue.Change{
		Type:     syncqueue.Update,
		Entity:   b.entity,
		EntityID: id,
		Data:     payload,
	}
	if !syncqueue.IsLocalID(id) {
		if ts := P(&before).UpdatedAtMillis(); ts > 0 {
			change.ServerTimestamp = &ts
		}
	}

	return b.run(ctx, mutation{
		change: change,
		policy: policy,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return b.deps.API.Put(ctx, b.itemPath(id), json.RawMessage(payload))
		},
		settle: b.settleItem(id),
		undo:   undo,
	})
}

// remove deletes an item with policy rollback. Items never seen by the server
// are dropped locally along with their queued changes.
func (b *base[T, P]) remove(ctx context.Context, id string) (MutationResult, error) {
	b.ensureLoaded(ctx)

	_, undo, ok := b.items.remove(id)
	if !ok {
		return MutationResult{}, b.notFound(id)
	}

	if syncqueue.IsLocalID(id) {
		if _, err := b.deps.Queue.DiscardEntity(ctx, b.entity, id); err != nil {
			undo()
			return MutationResult{}, fmt.Errorf("discard %s %s: %w", b.label, id, err)
		}
		b.persist(ctx)
		return MutationResult{}, nil
	}

	return b.run(ctx, mutation{
		change: syncqueue.Change{
			Type:     syncqueue.Delete,
			Entity:   b.entity,
			EntityID: id,
		},
		policy: PolicyRollback,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return b.deps.API.Delete(ctx, b.itemPath(id))
		},
		undo:       undo,
		goneIsDone: true,
	})
}

func (b *base[T, P]) settleItem(id string) func(json.RawMessage) error {
	return func(data json.RawMessage) error {
		var server T
		if err := json.Unmarshal(data, &server); err != nil {
			return err
		}
		if idOf[T, P](server) != id {
			return fmt.Errorf("server returned %s %q for %q", b.label, idOf[T, P](server), id)
		}
		b.items.put(server)
		return nil
	}
}

// onQueueEvent swaps local ids for server ids once a queued CREATE lands.
func (b *base[T, P]) onQueueEvent(e syncqueue.Event) {
	if e.Type != syncqueue.EventEntryApplied || e.Entry == nil || e.ServerID == "" {
		return
	}
	if e.Entry.Entity != b.entity || e.Entry.EntityID == e.ServerID {
		return
	}
	if !b.items.isLoaded() {
		// the cached snapshot still carries the local id
		if _, err := b.loadCached(context.Background()); err != nil {
			b.log.Warn("load cache for id swap failed", zap.Error(err))
			return
		}
	}
	if b.items.swapID(e.Entry.EntityID, e.ServerID) {
		b.log.Debug("local id replaced", zap.String("local_id", e.Entry.EntityID), zap.String("server_id", e.ServerID))
		b.persist(context.Background())
	}
}

func (b *base[T, P]) collectionPath() string {
	return path.Join(b.deps.APIPrefix, b.entity)
}

func (b *base[T, P]) itemPath(id string) string {
	return path.Join(b.deps.APIPrefix, b.entity, id)
}

func (b *base[T, P]) notFound(id string) error {
	return apperrors.ErrNotFound.WithMessage(fmt.Sprintf("%s %s not found", b.label, id))
}

func validate(input any) error {
	if err := validator.ValidateStruct(input); err != nil {
		return apperrors.NewBadRequest(err.Error())
	}
	return nil
}

func newLocalID() string {
	return syncqueue.LocalIDPrefix + uuid.NewString()
}
