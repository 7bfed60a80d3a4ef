package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

func newObservation(id, signature, walletID string, createdAt int64) *domain.TransferObservation {
	return &domain.TransferObservation{
		ID:            id,
		Signature:     signature,
		WalletID:      walletID,
		WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Amount:        decimal.RequireFromString("12.5"),
		TokenMint:     ptr("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Direction:     domain.DirectionIncoming,
		Status:        domain.StatusPending,
		ObservedAt:    createdAt - 1000,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt + domain.HoursToMs(6),
		UpdatedAt:     createdAt,
	}
}

func TestObservationStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	obs := newObservation("obs-001", "sig-001", "wallet-1", 1700000000000)
	require.NoError(t, store.Insert(ctx, obs))

	byID, err := store.GetByID(ctx, "obs-001")
	require.NoError(t, err)
	assert.Equal(t, obs.Signature, byID.Signature)
	assert.True(t, obs.Amount.Equal(byID.Amount), "amount %s", byID.Amount)
	require.NotNil(t, byID.TokenMint)
	assert.Equal(t, *obs.TokenMint, *byID.TokenMint)
	assert.Equal(t, domain.StatusPending, byID.Status)
	assert.Equal(t, obs.ExpiresAt, byID.ExpiresAt)
	assert.Equal(t, int64(0), byID.Version)

	bySig, err := store.GetBySignature(ctx, "sig-001")
	require.NoError(t, err)
	assert.Equal(t, "obs-001", bySig.ID)
}

func TestObservationStore_NativeSOLHasNilMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	obs := newObservation("obs-sol", "sig-sol", "wallet-1", 1700000000000)
	obs.TokenMint = nil
	require.NoError(t, store.Insert(ctx, obs))

	got, err := store.GetByID(ctx, "obs-sol")
	require.NoError(t, err)
	assert.Nil(t, got.TokenMint)
}

func TestObservationStore_InsertDuplicateSignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newObservation("obs-a", "sig-dup", "wallet-1", 1700000000000)))
	err := store.Insert(ctx, newObservation("obs-b", "sig-dup", "wallet-1", 1700000000000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestObservationStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestObservationStore_ListPendingOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newObservation("obs-c", "sig-c", "wallet-1", 3000)))
	require.NoError(t, store.Insert(ctx, newObservation("obs-b", "sig-b", "wallet-1", 1000)))
	require.NoError(t, store.Insert(ctx, newObservation("obs-a", "sig-a", "wallet-1", 1000)))
	require.NoError(t, store.Insert(ctx, newObservation("obs-d", "sig-d", "wallet-2", 2000)))

	all, err := store.ListPending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "obs-a", all[0].ID)
	assert.Equal(t, "obs-b", all[1].ID)
	assert.Equal(t, "obs-d", all[2].ID)
	assert.Equal(t, "obs-c", all[3].ID)

	one, err := store.ListPending(ctx, []string{"wallet-2"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "obs-d", one[0].ID)
}

func TestObservationStore_SaveConditional(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newObservation("obs-1", "sig-1", "wallet-1", 1000)))

	first, err := store.GetByID(ctx, "obs-1")
	require.NoError(t, err)
	stale, err := store.GetByID(ctx, "obs-1")
	require.NoError(t, err)

	first.Status = domain.StatusManualReview
	first.ConfidenceScore = 0.65
	first.Attempts = 1
	first.UpdatedAt = 2000
	require.NoError(t, store.Save(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	stale.Status = domain.StatusLinked
	stale.Attempts = 1
	err = store.Save(ctx, stale)
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.GetByID(ctx, "obs-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusManualReview, got.Status)
	assert.Equal(t, 0.65, got.ConfidenceScore)
	assert.Equal(t, int64(1), got.Version)
}

func TestObservationStore_SaveRejectsTerminalChange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newObservation("obs-1", "sig-1", "wallet-1", 1000)))
	obs, err := store.GetByID(ctx, "obs-1")
	require.NoError(t, err)

	obs.Status = domain.StatusIgnored
	obs.UpdatedAt = 2000
	require.NoError(t, store.Save(ctx, obs))

	obs.Status = domain.StatusLinked
	err = store.Save(ctx, obs)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestObservationStore_SaveNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	err := store.Save(context.Background(), newObservation("ghost", "sig-ghost", "wallet-1", 1000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestObservationStore_ListExpirable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	early := newObservation("obs-early", "sig-early", "wallet-1", 1000)
	early.ExpiresAt = 5000
	late := newObservation("obs-late", "sig-late", "wallet-1", 1000)
	late.ExpiresAt = 50000
	review := newObservation("obs-review", "sig-review", "wallet-1", 1000)
	review.ExpiresAt = 4000
	for _, o := range []*domain.TransferObservation{early, late, review} {
		require.NoError(t, store.Insert(ctx, o))
	}

	got, err := store.GetByID(ctx, "obs-review")
	require.NoError(t, err)
	got.Status = domain.StatusManualReview
	require.NoError(t, store.Save(ctx, got))

	expirable, err := store.ListExpirable(ctx, 10000, 0)
	require.NoError(t, err)
	require.Len(t, expirable, 2)
	assert.Equal(t, "obs-review", expirable[0].ID)
	assert.Equal(t, "obs-early", expirable[1].ID)

	limited, err := store.ListExpirable(ctx, 10000, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "obs-review", limited[0].ID)
}

func TestObservationStore_ListFilter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewObservationStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newObservation("obs-1", "sig-1", "wallet-1", 1000)))
	require.NoError(t, store.Insert(ctx, newObservation("obs-2", "sig-2", "wallet-1", 2000)))
	require.NoError(t, store.Insert(ctx, newObservation("obs-3", "sig-3", "wallet-2", 3000)))

	linked, err := store.GetByID(ctx, "obs-2")
	require.NoError(t, err)
	linked.Status = domain.StatusLinked
	linked.UpdatedAt = 9000
	require.NoError(t, store.Save(ctx, linked))

	got, err := store.List(ctx, storage.ObservationFilter{
		WalletIDs: []string{"wallet-1"},
		Statuses:  []domain.Status{domain.StatusLinked},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "obs-2", got[0].ID)

	recent, err := store.List(ctx, storage.ObservationFilter{UpdatedSince: 2500})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "obs-2", recent[0].ID)
	assert.Equal(t, "obs-3", recent[1].ID)
}
