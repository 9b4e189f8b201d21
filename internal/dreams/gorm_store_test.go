package dreams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/database/databasetest"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	return NewGormStore(databasetest.Open(t))
}

func seedDream(t *testing.T, s *GormStore, d Dream) {
	t.Helper()
	if d.OwnerEmail == "" {
		d.OwnerEmail = testOwner
	}
	if d.Status == "" {
		d.Status = StatusSubmitted
	}
	if d.CharacterID == "" {
		d.CharacterID = "char-1"
	}
	require.NoError(t, s.Create(context.Background(), d))
}

func TestGormStoreCreateAndGet(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	seedDream(t, s, Dream{ID: "d1", CharacterName: "Luna", Prompt: "flying"})

	got, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
	assert.Equal(t, "Luna", got.CharacterName)
	assert.Empty(t, got.IdempotencyKey)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreIdempotencyKeyIsUniquePerOwner(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	seedDream(t, s, Dream{ID: "d1", IdempotencyKey: "k1"})
	err := s.Create(ctx, Dream{ID: "d2", OwnerEmail: testOwner, CharacterID: "c", Status: StatusSubmitted, IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same key for another owner, and dreams without a key, do not collide.
	seedDream(t, s, Dream{ID: "d3", OwnerEmail: "b@example.com", IdempotencyKey: "k1"})
	seedDream(t, s, Dream{ID: "d4"})
	seedDream(t, s, Dream{ID: "d5"})

	found, err := s.FindByIdempotencyKey(ctx, testOwner, "k1")
	require.NoError(t, err)
	assert.Equal(t, "d1", found.ID)

	_, err = s.FindByIdempotencyKey(ctx, testOwner, "k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreTransitionIsConditional(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	seedDream(t, s, Dream{ID: "d1"})

	got, err := s.Transition(ctx, "d1", StatusSubmitted, Transition{To: StatusProcessing, JobHandle: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, "job-1", got.JobHandle)

	// A second writer still expecting "submitted" loses.
	_, err = s.Transition(ctx, "d1", StatusSubmitted, Transition{To: StatusFallback, VideoRef: "https://placeholder"})
	assert.ErrorIs(t, err, ErrStaleTransition)

	got, err = s.Transition(ctx, "d1", StatusProcessing, Transition{To: StatusCompleted, VideoRef: "dreams/job-1/output.mp4"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "dreams/job-1/output.mp4", got.VideoRef)
	assert.Equal(t, "job-1", got.JobHandle)

	_, err = s.Transition(ctx, "d1", StatusCompleted, Transition{To: StatusFailed})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Transition(ctx, "missing", StatusSubmitted, Transition{To: StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreListings(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedDream(t, s, Dream{ID: "old", CreatedAt: base, UpdatedAt: base})
	seedDream(t, s, Dream{ID: "new", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)})
	seedDream(t, s, Dream{ID: "done", Status: StatusFallback, VideoRef: "https://placeholder",
		CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)})
	seedDream(t, s, Dream{ID: "other", OwnerEmail: "b@example.com", CreatedAt: base, UpdatedAt: base})

	mine, err := s.ListByOwner(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []string{"done", "new", "old"}, []string{mine[0].ID, mine[1].ID, mine[2].ID})

	pending, err := s.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, d := range pending {
		assert.False(t, d.Status.Terminal())
	}

	require.NoError(t, s.Delete(ctx, "old"))
	require.NoError(t, s.Delete(ctx, "old"))
	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}
