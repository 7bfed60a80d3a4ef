package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
	"solana-autolink/internal/storage/memory"
	"solana-autolink/internal/testutil"
)

func TestAggregator_Compute(t *testing.T) {
	ctx := context.Background()
	store := memory.NewObservationStore()

	add := func(n int, wallet string, status domain.Status, score float64) {
		require.NoError(t, store.Insert(ctx, &domain.TransferObservation{
			ID:              testutil.Signature(n)[:24],
			Signature:       testutil.Signature(n),
			WalletID:        wallet,
			WalletAddress:   testutil.WalletAddress(1),
			Amount:          decimal.NewFromInt(1),
			Direction:       domain.DirectionIncoming,
			Status:          status,
			ConfidenceScore: score,
			CreatedAt:       100,
			ExpiresAt:       200,
			UpdatedAt:       150,
		}))
	}
	add(1, "w1", domain.StatusPending, 0.5)
	add(2, "w1", domain.StatusLinked, 0.9)
	add(3, "w1", domain.StatusIgnored, 0.2)
	add(4, "w2", domain.StatusLinked, 0.9)

	agg := NewAggregator(store)

	s, err := agg.Compute(ctx, []string{"w1"}, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalPending)
	assert.Equal(t, 0.5, s.AverageConfidencePending)
	assert.Equal(t, 0.5, s.SuccessRate)

	all, err := agg.Compute(ctx, nil, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.ByStatus[domain.StatusLinked])

	empty, err := agg.Compute(ctx, []string{"nobody"}, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.SuccessRate)
	assert.Equal(t, 0, empty.TotalPending)
}

type failingList struct {
	*memory.ObservationStore
}

func (failingList) List(context.Context, storage.ObservationFilter) ([]*domain.TransferObservation, error) {
	return nil, errors.New("timeout")
}

func TestAggregator_StoreFailure(t *testing.T) {
	_, err := NewAggregator(failingList{memory.NewObservationStore()}).Compute(context.Background(), nil, 0, 0)
	assert.ErrorIs(t, err, reconcile.ErrRepositoryUnavailable)
}
