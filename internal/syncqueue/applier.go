package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/hearthly/hearth/pkg/errors"
	"github.com/hearthly/hearth/pkg/logger"
)

// ApplyResult carries what the server reported back for an applied entry.
type ApplyResult struct {
	ServerID string
	// ServerUpdatedAt is the updated_at the server reported for the written entity, in millis.
	ServerUpdatedAt int64
	Conflict        *Conflict
}

// Applier replays one entry against the household server.
type Applier interface {
	Apply(ctx context.Context, entry Entry) (ApplyResult, error)
}

// RemoteAPI is the subset of the API client the applier needs. Errors must be
// *apperrors.AppError so NOT_FOUND can be told apart.
type RemoteAPI interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Put(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// ApplierOption customises a RemoteApplier.
type ApplierOption func(*RemoteApplier)

// WithResolver swaps the conflict policy. The default is LocalWins.
func WithResolver(r Resolver) ApplierOption {
	return func(a *RemoteApplier) {
		if r != nil {
			a.resolver = r
		}
	}
}

// WithAPIPrefix changes the path under which entity collections are served.
func WithAPIPrefix(prefix string) ApplierOption {
	return func(a *RemoteApplier) {
		a.prefix = prefix
	}
}

// RemoteApplier maps queue entries onto REST calls: CREATE posts to the
// collection, UPDATE puts to the item after a conflict check, DELETE deletes it.
type RemoteApplier struct {
	api      RemoteAPI
	resolver Resolver
	prefix   string
	log      *zap.Logger
}

// NewRemoteApplier constructs an applier over api.
func NewRemoteApplier(api RemoteAPI, opts ...ApplierOption) *RemoteApplier {
	a := &RemoteApplier{
		api:      api,
		resolver: LocalWins,
		prefix:   "/api",
		log:      logger.WithModule("syncqueue"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *RemoteApplier) Apply(ctx context.Context, entry Entry) (ApplyResult, error) {
	switch entry.Type {
	case Create:
		return a.create(ctx, entry)
	case Update:
		return a.update(ctx, entry)
	case Delete:
		return ApplyResult{}, a.delete(ctx, entry)
	default:
		return ApplyResult{}, apperrors.ErrRemoteApplicationFailed.WithMessage(fmt.Sprintf("unknown change type %q", entry.Type))
	}
}

func (a *RemoteApplier) create(ctx context.Context, entry Entry) (ApplyResult, error) {
	data, err := a.api.Post(ctx, a.collectionPath(entry.Entity), entry.Data)
	if err != nil {
		return ApplyResult{}, remoteFailure(err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return ApplyResult{}, remoteFailure(fmt.Errorf("decode created %s: %w", entry.Entity, err))
	}
	updated, _ := updatedAtMillis(data)
	return ApplyResult{ServerID: created.ID, ServerUpdatedAt: updated}, nil
}

func (a *RemoteApplier) update(ctx context.Context, entry Entry) (ApplyResult, error) {
	var (
		out  ApplyResult
		body = entry.Data
	)

	if entry.ServerTimestamp != nil {
		current, err := a.api.Get(ctx, a.itemPath(entry))
		if err != nil {
			return out, remoteFailure(err)
		}

		serverUpdated, ok := updatedAtMillis(current)
		if ok && serverUpdated > *entry.ServerTimestamp {
			decision, err := a.resolver.Resolve(ctx, entry, current)
			if err != nil {
				return out, remoteFailure(fmt.Errorf("resolve conflict: %w", err))
			}

			out.Conflict = &Conflict{
				EntryID:         entry.ID,
				Entity:          entry.Entity,
				EntityID:        entry.EntityID,
				Local:           entry.Data,
				Server:          current,
				LocalTimestamp:  *entry.ServerTimestamp,
				ServerUpdatedAt: serverUpdated,
				Resolution:      decision.Outcome,
			}
			a.log.Warn("sync conflict",
				zap.String("entity", entry.Entity),
				zap.String("entity_id", entry.EntityID),
				zap.Int64("based_on", *entry.ServerTimestamp),
				zap.Int64("server_updated_at", serverUpdated),
				zap.ByteString("local", entry.Data),
				zap.ByteString("server", current),
				zap.String("resolution", string(decision.Outcome)),
			)

			switch decision.Outcome {
			case KeepServer:
				return out, nil
			case Merged:
				body = decision.Data
			}
		}
	}

	data, err := a.api.Put(ctx, a.itemPath(entry), body)
	if err != nil {
		return out, remoteFailure(err)
	}
	out.ServerUpdatedAt, _ = updatedAtMillis(data)
	return out, nil
}

func (a *RemoteApplier) delete(ctx context.Context, entry Entry) error {
	_, err := a.api.Delete(ctx, a.itemPath(entry))
	if err == nil || apperrors.IsNotFound(err) {
		return nil
	}
	return remoteFailure(err)
}

func (a *RemoteApplier) collectionPath(entity string) string {
	return path.Join(a.prefix, entity)
}

func (a *RemoteApplier) itemPath(entry Entry) string {
	return path.Join(a.prefix, entry.Entity, entry.EntityID)
}

func remoteFailure(err error) error {
	return apperrors.ErrRemoteApplicationFailed.WithInternal(err)
}

// updatedAtMillis reads updated_at from a server object, as RFC 3339 or epoch millis.
func updatedAtMillis(raw json.RawMessage) (int64, bool) {
	var probe struct {
		UpdatedAt json.RawMessage `json:"updated_at"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.UpdatedAt) == 0 {
		return 0, false
	}

	var ts time.Time
	if err := json.Unmarshal(probe.UpdatedAt, &ts); err == nil && !ts.IsZero() {
		return ts.UnixMilli(), true
	}
	var ms int64
	if err := json.Unmarshal(probe.UpdatedAt, &ms); err == nil && ms > 0 {
		return ms, true
	}
	return 0, false
}
