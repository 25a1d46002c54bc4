package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %q", base.ID)
	}
}

func TestUpdatedAtMillis(t *testing.T) {
	var base BaseModel
	if base.UpdatedAtMillis() != 0 {
		t.Fatal("expected zero millis for unset timestamp")
	}

	base.UpdatedAt = time.UnixMilli(1700000000123)
	if got := base.UpdatedAtMillis(); got != 1700000000123 {
		t.Fatalf("unexpected millis %d", got)
	}
}

func TestChoreSetCompleted(t *testing.T) {
	var chore Chore
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	chore.SetCompleted(true, at)
	if !chore.Completed || chore.CompletedAt == nil || !chore.CompletedAt.Equal(at) {
		t.Fatalf("expected chore to be completed at %v, got %+v", at, chore)
	}

	chore.SetCompleted(false, at)
	if chore.Completed || chore.CompletedAt != nil {
		t.Fatalf("expected completion to be cleared, got %+v", chore)
	}
}

func TestNormalise(t *testing.T) {
	blank := "  "
	chore := Chore{Title: "  Dishes ", AssignedTo: &blank}
	chore.Normalise()
	if chore.Title != "Dishes" || chore.AssignedTo != nil {
		t.Fatalf("unexpected chore after normalise: %+v", chore)
	}

	member := FamilyMember{Name: " Ava ", Role: ""}
	member.Normalise()
	if member.Name != "Ava" || member.Role != MemberRoleChild {
		t.Fatalf("unexpected member after normalise: %+v", member)
	}

	item := ShoppingItem{Name: "Milk", Category: " Dairy "}
	item.Normalise()
	if item.Quantity != 1 || item.Category != "dairy" {
		t.Fatalf("unexpected item after normalise: %+v", item)
	}
}

func TestFamilyMemberHidesPINHash(t *testing.T) {
	payload, err := json.Marshal(FamilyMember{Name: "Ava", PINHash: "secret-hash"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["PINHash"]; ok {
		t.Fatal("expected pin hash to be omitted")
	}
	if _, ok := decoded["updated_at"]; !ok {
		t.Fatal("expected updated_at to be serialised")
	}
}

func TestOfflineTableNames(t *testing.T) {
	if (CachedRecord{}).TableName() != "offline_records" {
		t.Fatal("unexpected cached record table")
	}
	if (Metadata{}).TableName() != "offline_metadata" {
		t.Fatal("unexpected metadata table")
	}
	if (QueueEntry{}).TableName() != "sync_queue" {
		t.Fatal("unexpected queue table")
	}
}
