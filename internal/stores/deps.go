package stores

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/offline"
	"github.com/hearthly/hearth/internal/syncqueue"
	"github.com/hearthly/hearth/pkg/logger"
)

// Cache is the slice of the offline store used by domain stores.
type Cache interface {
	CacheCollection(ctx context.Context, entity string, records []offline.Record) error
	GetCachedCollection(ctx context.Context, entity string) ([]offline.Record, error)
}

// Queue is the slice of the mutation queue used by domain stores.
type Queue interface {
	Enqueue(ctx context.Context, change syncqueue.Change) (uint, error)
	DiscardEntity(ctx context.Context, entity, entityID string) (int64, error)
	GetPending(ctx context.Context) ([]syncqueue.Entry, error)
	Bus() *syncqueue.Bus
}

// Network reports and updates the client's connectivity state.
type Network interface {
	Online() bool
	Set(online bool)
}

// Deps bundles what every domain store needs.
type Deps struct {
	Cache   Cache
	Queue   Queue
	Network Network
	API     syncqueue.RemoteAPI
	// APIPrefix is prepended to entity paths. Defaults to /api.
	APIPrefix string
	Clock     func() time.Time
	Logger    *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.APIPrefix == "" {
		d.APIPrefix = "/api"
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = logger.WithModule("stores")
	}
	return d
}

// Policy selects what a store does when the network call of a mutation fails.
type Policy int

const (
	// PolicyRollback restores the pre-mutation state and surfaces the error.
	PolicyRollback Policy = iota
	// PolicyKeepAndQueue keeps the local change and queues it for replay.
	PolicyKeepAndQueue
)

func (p Policy) String() string {
	if p == PolicyKeepAndQueue {
		return "keep_and_queue"
	}
	return "rollback"
}

// MutationResult describes how a mutation was settled.
type MutationResult struct {
	Offline bool `json:"offline"`
	Queued  bool `json:"queued"`
	QueueID uint `json:"queue_id,omitempty"`
}

// LoadResult describes where a collection was loaded from.
type LoadResult struct {
	FromCache bool `json:"from_cache"`
	Count     int  `json:"count"`
}

type mutationRequest func(ctx context.Context) (json.RawMessage, error)
