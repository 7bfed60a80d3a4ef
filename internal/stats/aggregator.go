// Package stats derives read-only aggregates from the observation store.
package stats

import (
	"context"
	"fmt"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
)

// Stats are aggregates over the observations of a wallet set.
// Rates are 0, never NaN, when their denominator is 0.
type Stats struct {
	TotalPending             int                   `json:"total_pending"`
	ByStatus                 map[domain.Status]int `json:"by_status"`
	AverageConfidencePending float64               `json:"average_confidence_pending"`
	// SuccessRate is linked / (linked + ignored) over the lookback window.
	SuccessRate     float64 `json:"success_rate"`
	LinkedInWindow  int     `json:"linked_in_window"`
	IgnoredInWindow int     `json:"ignored_in_window"`
	LookbackMs      int64   `json:"lookback_ms"`
	ComputedAt      int64   `json:"computed_at"`
}

// Aggregator computes Stats. It never writes.
type Aggregator struct {
	observations storage.ObservationStore
}

// NewAggregator creates a stats aggregator.
func NewAggregator(observations storage.ObservationStore) *Aggregator {
	return &Aggregator{observations: observations}
}

// Compute aggregates the observations of walletIDs (empty means every wallet).
func (a *Aggregator) Compute(ctx context.Context, walletIDs []string, now, lookbackMs int64) (*Stats, error) {
	observations, err := a.observations.List(ctx, storage.ObservationFilter{WalletIDs: walletIDs})
	if err != nil {
		return nil, fmt.Errorf("%w: list observations: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	return computeFromObservations(observations, now, lookbackMs), nil
}
