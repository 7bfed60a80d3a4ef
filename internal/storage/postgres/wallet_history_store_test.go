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

func TestWalletHistoryStore_AddressesAreIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWalletHistoryStore(pool)
	ctx := context.Background()

	require.NoError(t, store.RegisterAddress(ctx, "wallet-1", "addr-b"))
	require.NoError(t, store.RegisterAddress(ctx, "wallet-1", "addr-a"))
	require.NoError(t, store.RegisterAddress(ctx, "wallet-1", "addr-a"))

	h, err := store.GetHistory(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"addr-a", "addr-b"}, h.OwnedAddresses)
	assert.True(t, h.Owns("addr-a"))
	assert.Empty(t, h.Expected)
	assert.Equal(t, 0, h.LinkedAmounts.SampleCount)
}

func TestWalletHistoryStore_ExpectedTransferLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWalletHistoryStore(pool)
	ctx := context.Background()

	e := &domain.ExpectedTransfer{
		ID:        "exp-1",
		WalletID:  "wallet-1",
		Direction: domain.DirectionOutgoing,
		Amount:    decimal.RequireFromString("3.25"),
		CreatedAt: 1000,
	}
	require.NoError(t, store.AddExpectedTransfer(ctx, e))
	assert.ErrorIs(t, store.AddExpectedTransfer(ctx, e), storage.ErrDuplicateKey)

	h, err := store.GetHistory(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, h.Expected, 1)
	assert.True(t, e.Amount.Equal(h.Expected[0].Amount))
	assert.Nil(t, h.Expected[0].TokenMint)

	require.NoError(t, store.SettleExpectedTransfer(ctx, "exp-1", "obs-1", 2000))
	require.NoError(t, store.SettleExpectedTransfer(ctx, "exp-1", "obs-1", 3000))
	assert.ErrorIs(t, store.SettleExpectedTransfer(ctx, "exp-1", "obs-2", 3000), storage.ErrConflict)
	assert.ErrorIs(t, store.SettleExpectedTransfer(ctx, "missing", "obs-1", 3000), storage.ErrNotFound)

	h, err = store.GetHistory(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Empty(t, h.Expected)
}

func TestWalletHistoryStore_LinkedAmountRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	observations := NewObservationStore(pool)
	store := NewWalletHistoryStore(pool)

	amounts := map[string]string{"obs-1": "2", "obs-2": "40.5", "obs-3": "999"}
	for id, amount := range amounts {
		o := newObservation(id, "sig-"+id, "wallet-1", 1000)
		o.Amount = decimal.RequireFromString(amount)
		require.NoError(t, observations.Insert(ctx, o))
	}
	for _, id := range []string{"obs-1", "obs-2"} {
		o, err := observations.GetByID(ctx, id)
		require.NoError(t, err)
		o.Status = domain.StatusLinked
		require.NoError(t, observations.Save(ctx, o))
	}

	h, err := store.GetHistory(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.LinkedAmounts.SampleCount)
	assert.True(t, decimal.NewFromInt(2).Equal(h.LinkedAmounts.Min), "min %s", h.LinkedAmounts.Min)
	assert.True(t, decimal.RequireFromString("40.5").Equal(h.LinkedAmounts.Max), "max %s", h.LinkedAmounts.Max)
}
