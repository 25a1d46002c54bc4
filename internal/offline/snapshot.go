package offline

import (
	"encoding/json"
	"fmt"
)

// Snapshot serialises items into plain records keyed by id.
func Snapshot[T any](items []T, id func(T) string) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("offline: snapshot %s: %w", id(item), err)
		}
		records = append(records, Record{ID: id(item), Data: data})
	}
	return records, nil
}

// Decode restores items from cached records, preserving their order.
func Decode[T any](records []Record) ([]T, error) {
	items := make([]T, 0, len(records))
	for _, r := range records {
		var item T
		if err := json.Unmarshal(r.Data, &item); err != nil {
			return nil, fmt.Errorf("offline: decode %s: %w", r.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}
