package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/models"
	apperrors "github.com/hearthly/hearth/pkg/errors"
)

type publishedChange struct {
	stream string
	event  string
	data   any
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []publishedChange
}

func (p *recordingPublisher) PublishChange(stream, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, publishedChange{stream: stream, event: event, data: data})
}

func (p *recordingPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, change := range p.changes {
		out = append(out, change.stream+"."+change.event)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestChoreService_Lifecycle(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	pub := &recordingPublisher{}

	svc, err := NewChoreService(db, pub)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateChoreInput{Title: "  Dishes ", Points: 5, Reward: 150})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Dishes", created.Title)
	require.False(t, created.UpdatedAt.IsZero())

	_, err = svc.Create(ctx, CreateChoreInput{Title: "Laundry"})
	require.NoError(t, err)

	doneAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	updated, err := svc.Update(ctx, created.ID, models.ChorePatch{
		Completed:   ptr(true),
		CompletedAt: models.Some(doneAt),
		AssignedTo:  models.Some("member-1"),
	})
	require.NoError(t, err)
	require.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)
	require.True(t, doneAt.Equal(*updated.CompletedAt))
	require.Equal(t, "member-1", *updated.AssignedTo)

	pending, err := svc.List(ctx, ListChoresOptions{Completed: ptr(false)})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Laundry", pending[0].Title)

	mine, err := svc.List(ctx, ListChoresOptions{AssignedTo: "member-1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	cleared, err := svc.Update(ctx, created.ID, models.ChorePatch{AssignedTo: models.Null[string]()})
	require.NoError(t, err)
	require.Nil(t, cleared.AssignedTo)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.True(t, apperrors.IsNotFound(err))

	require.Equal(t, []string{
		"chores.created", "chores.created", "chores.updated", "chores.updated", "chores.deleted",
	}, pub.events())
}

func TestChoreService_Validation(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewChoreService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, CreateChoreInput{Title: "   "})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	chore, err := svc.Create(ctx, CreateChoreInput{Title: "Bins"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, chore.ID, models.ChorePatch{Title: ptr(" ")})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Update(ctx, "missing", models.ChorePatch{Points: ptr(1)})
	require.True(t, apperrors.IsNotFound(err))

	require.True(t, apperrors.IsNotFound(svc.Delete(ctx, "missing")))

	_, err = NewChoreService(nil, nil)
	require.Error(t, err)
}

func TestFamilyService_CreateAndVerifyPIN(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewFamilyService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	member, err := svc.Create(ctx, CreateMemberInput{Name: "Robin", Role: "Parent", PIN: "4821"})
	require.NoError(t, err)
	require.Equal(t, models.MemberRoleParent, member.Role)
	require.NotEmpty(t, member.PINHash)

	verified, err := svc.VerifyPIN(ctx, member.ID, "4821")
	require.NoError(t, err)
	require.Equal(t, member.ID, verified.ID)

	_, err = svc.VerifyPIN(ctx, member.ID, "0000")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	kid, err := svc.Create(ctx, CreateMemberInput{Name: "Sky"})
	require.NoError(t, err)
	require.Equal(t, models.MemberRoleChild, kid.Role)
	_, err = svc.VerifyPIN(ctx, kid.ID, "1234")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Create(ctx, CreateMemberInput{Name: "Robin"})
	require.True(t, apperrors.IsConflict(err))

	_, err = svc.Create(ctx, CreateMemberInput{Name: "Ash", PIN: "12"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Create(ctx, CreateMemberInput{Name: "Ash", Role: "owner"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	members, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "Robin", members[0].Name)
}

func TestFamilyService_UpdateAndDeleteUnassignsChores(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	pub := &recordingPublisher{}
	family, err := NewFamilyService(db, pub)
	require.NoError(t, err)
	chores, err := NewChoreService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	member, err := family.Create(ctx, CreateMemberInput{Name: "Sky"})
	require.NoError(t, err)
	other, err := family.Create(ctx, CreateMemberInput{Name: "Robin"})
	require.NoError(t, err)

	updated, err := family.Update(ctx, member.ID, models.FamilyPatch{Earnings: ptr(int64(250))})
	require.NoError(t, err)
	require.Equal(t, int64(250), updated.Earnings)

	_, err = family.Update(ctx, other.ID, models.FamilyPatch{Name: ptr("Sky")})
	require.True(t, apperrors.IsConflict(err))

	chore, err := chores.Create(ctx, CreateChoreInput{Title: "Feed cat", AssignedTo: ptr(member.ID)})
	require.NoError(t, err)

	require.NoError(t, family.Delete(ctx, member.ID))
	reloaded, err := chores.Get(ctx, chore.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.AssignedTo)

	require.True(t, apperrors.IsNotFound(family.Delete(ctx, member.ID)))
	require.Equal(t, []string{
		"family.created", "family.created", "family.updated", "family.deleted", "chores.updated",
	}, pub.events())
}

func TestShoppingService_ClearPurchased(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	pub := &recordingPublisher{}
	svc, err := NewShoppingService(db, pub)
	require.NoError(t, err)
	ctx := context.Background()

	milk, err := svc.Create(ctx, CreateItemInput{Name: "Milk", Category: " Dairy "})
	require.NoError(t, err)
	require.Equal(t, 1, milk.Quantity)
	require.Equal(t, "dairy", milk.Category)

	_, err = svc.Create(ctx, CreateItemInput{Name: "Bread", Quantity: 2, Purchased: true})
	require.NoError(t, err)

	_, err = svc.Update(ctx, milk.ID, models.ShoppingPatch{Purchased: ptr(true)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateItemInput{Name: "Eggs", Category: "dairy"})
	require.NoError(t, err)

	dairy, err := svc.List(ctx, "DAIRY")
	require.NoError(t, err)
	require.Len(t, dairy, 2)
	require.Equal(t, "Eggs", dairy[0].Name)

	removed, err := svc.ClearPurchased(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	remaining, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	removed, err = svc.ClearPurchased(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)

	require.True(t, apperrors.IsNotFound(svc.Delete(ctx, milk.ID)))
	require.Contains(t, pub.events(), "shopping.cleared")
}
