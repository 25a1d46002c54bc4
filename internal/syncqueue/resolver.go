package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outcome is a conflict resolution decision.
type Outcome string

const (
	KeepLocal  Outcome = "keep_local"
	KeepServer Outcome = "keep_server"
	Merged     Outcome = "merged"
)

// Decision is returned by a Resolver. Data is only read for Merged.
type Decision struct {
	Outcome Outcome
	Data    json.RawMessage
}

// Resolver decides between a queued local change and the newer server state.
type Resolver interface {
	Resolve(ctx context.Context, local Entry, server json.RawMessage) (Decision, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, local Entry, server json.RawMessage) (Decision, error)

func (f ResolverFunc) Resolve(ctx context.Context, local Entry, server json.RawMessage) (Decision, error) {
	return f(ctx, local, server)
}

// LocalWins applies the local change regardless of the server state.
var LocalWins Resolver = ResolverFunc(func(context.Context, Entry, json.RawMessage) (Decision, error) {
	return Decision{Outcome: KeepLocal}, nil
})

// ServerWins drops the local change.
var ServerWins Resolver = ResolverFunc(func(context.Context, Entry, json.RawMessage) (Decision, error) {
	return Decision{Outcome: KeepServer}, nil
})

// MergeFields overlays the fields present in the local change onto the server object.
var MergeFields Resolver = ResolverFunc(func(_ context.Context, local Entry, server json.RawMessage) (Decision, error) {
	merged := map[string]json.RawMessage{}
	if len(server) > 0 {
		if err := json.Unmarshal(server, &merged); err != nil {
			return Decision{}, fmt.Errorf("merge: decode server state: %w", err)
		}
	}
	var changes map[string]json.RawMessage
	if len(local.Data) > 0 {
		if err := json.Unmarshal(local.Data, &changes); err != nil {
			return Decision{}, fmt.Errorf("merge: decode local change: %w", err)
		}
	}
	for key, value := range changes {
		merged[key] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Outcome: Merged, Data: data}, nil
})

// ResolverByName maps configuration values onto the built-in policies.
func ResolverByName(name string) (Resolver, error) {
	switch name {
	case "", "local_wins":
		return LocalWins, nil
	case "server_wins":
		return ServerWins, nil
	case "merge":
		return MergeFields, nil
	default:
		return nil, fmt.Errorf("syncqueue: unknown conflict policy %q", name)
	}
}
