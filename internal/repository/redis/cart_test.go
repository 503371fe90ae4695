package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dralsallum/theKnot-sub000/internal/domain"
	"github.com/dralsallum/theKnot-sub000/internal/repository"
	"github.com/dralsallum/theKnot-sub000/internal/store"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

func setupTestRedis(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCartRepository(client, 24*time.Hour), mr
}

func sampleSnapshot(version uint64) store.Snapshot {
	state := domain.CartState{
		Lines: []domain.CartLine{
			{ProductID: "venue-1", Name: "Garden Venue", UnitPrice: 250000, Quantity: 1},
			{ProductID: "cake-2", Name: "Three Tier Cake", UnitPrice: 4500, Quantity: 2},
		},
		Status: domain.PaymentIdle,
	}
	state.Recalculate()
	return store.Snapshot{State: state, Version: version}
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestGet_NotFound(t *testing.T) {
	repo, _ := setupTestRedis(t)

	snap, err := repo.Get(context.Background(), "user-1")
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSaveAndGet(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, "user-1", sampleSnapshot(3))
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Version)
	assert.Equal(t, sampleSnapshot(3).State, got.State)
	assert.Equal(t, 2, got.State.TotalQuantity)
	assert.Equal(t, int64(259000), got.State.TotalPrice)
}

func TestGet_CorruptData(t *testing.T) {
	repo, mr := setupTestRedis(t)

	mr.HSet("cart:user-1", "version", "1", "data", "{not json")

	_, err := repo.Get(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal cart")
}

func TestGet_CorruptVersion(t *testing.T) {
	repo, mr := setupTestRedis(t)

	mr.HSet("cart:user-1", "version", "abc", "data", "{}")

	_, err := repo.Get(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cart version")
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestSave_StaleVersionIgnored(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, "user-1", sampleSnapshot(5))
	require.NoError(t, err)

	stale := store.Snapshot{State: *domain.NewCartState(), Version: 4}
	saved, err := repo.Save(ctx, "user-1", stale)
	require.NoError(t, err)
	assert.False(t, saved)

	same := store.Snapshot{State: *domain.NewCartState(), Version: 5}
	saved, err = repo.Save(ctx, "user-1", same)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Version)
	assert.Len(t, got.State.Lines, 2)
}

func TestSave_NewerVersionOverwrites(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, "user-1", sampleSnapshot(1))
	require.NoError(t, err)

	next := store.Snapshot{State: *domain.NewCartState(), Version: 2}
	saved, err := repo.Save(ctx, "user-1", next)
	require.NoError(t, err)
	assert.True(t, saved)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.True(t, got.State.IsEmpty())
}

func TestSave_SetsTTL(t *testing.T) {
	repo, mr := setupTestRedis(t)

	_, err := repo.Save(context.Background(), "user-1", sampleSnapshot(1))
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, mr.TTL("cart:user-1"))

	mr.FastForward(25 * time.Hour)
	_, err = repo.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSave_ZeroTTLKeepsKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewCartRepository(client, 0)

	_, err := repo.Save(context.Background(), "user-1", sampleSnapshot(1))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("cart:user-1"))
}

func TestTouch_RestartsTTL(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, "user-1", sampleSnapshot(1))
	require.NoError(t, err)

	mr.FastForward(23 * time.Hour)
	require.NoError(t, repo.Touch(ctx, "user-1"))
	mr.FastForward(2 * time.Hour)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
}

func TestTouch_MissingCartIsNoop(t *testing.T) {
	repo, mr := setupTestRedis(t)

	require.NoError(t, repo.Touch(context.Background(), "ghost"))
	assert.False(t, mr.Exists("cart:ghost"))
}

// ---------------------------------------------------------------------------
// Pending payments
// ---------------------------------------------------------------------------

func TestPending_SaveGetDelete(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.GetPending(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	p := repository.PendingPayment{
		PaymentID: "pay-1",
		Amount:    259000,
		Lines:     sampleSnapshot(1).State.Lines,
		CreatedAt: time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SavePending(ctx, "user-1", p))
	assert.Equal(t, 24*time.Hour, mr.TTL("cart_payment:user-1"))

	got, err := repo.GetPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	require.NoError(t, repo.DeletePending(ctx, "user-1"))
	_, err = repo.GetPending(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPending_KeptApartFromCart(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, "user-1", sampleSnapshot(1))
	require.NoError(t, err)
	require.NoError(t, repo.SavePending(ctx, "user-1", repository.PendingPayment{PaymentID: "pay-1"}))

	require.NoError(t, repo.Delete(ctx, "user-1"))
	assert.True(t, mr.Exists("cart_payment:user-1"))
}

func TestPending_CorruptData(t *testing.T) {
	repo, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart_payment:user-1", "{broken"))

	_, err := repo.GetPending(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal pending payment")
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDelete(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, "user-1", sampleSnapshot(1))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "user-1"))
	assert.False(t, mr.Exists("cart:user-1"))

	// Deleting again is fine.
	require.NoError(t, repo.Delete(ctx, "user-1"))
}

func TestConnectionError(t *testing.T) {
	repo, mr := setupTestRedis(t)
	mr.Close()

	_, err := repo.Get(context.Background(), "user-1")
	assert.Error(t, err)

	_, err = repo.Save(context.Background(), "user-1", sampleSnapshot(1))
	assert.Error(t, err)

	assert.Error(t, repo.Delete(context.Background(), "user-1"))
}
