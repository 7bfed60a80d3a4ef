package storage

import (
	"context"

	"solana-autolink/internal/domain"
)

// SettingsStore provides access to wallet_link_settings storage.
type SettingsStore interface {
	// Get returns the settings of a wallet. Returns ErrNotFound if the wallet
	// is not configured.
	Get(ctx context.Context, walletID string) (*domain.WalletLinkSettings, error)

	// Upsert creates or replaces settings. Returns ErrInvalidInput wrapping the
	// validation failure for out-of-range values.
	Upsert(ctx context.Context, s *domain.WalletLinkSettings) error
}

// ObservationFilter selects observations for List.
// Empty fields do not filter.
type ObservationFilter struct {
	WalletIDs    []string
	Statuses     []domain.Status
	UpdatedSince int64 // ms, inclusive; 0 disables
}

// ObservationStore provides access to transfer_observations storage.
type ObservationStore interface {
	// Insert adds a new observation. Returns ErrDuplicateKey if id or signature exists.
	Insert(ctx context.Context, o *domain.TransferObservation) error

	// GetByID returns an observation by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TransferObservation, error)

	// GetBySignature returns an observation by transaction signature.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TransferObservation, error)

	// ListPending returns pending observations of the given wallets, ordered by
	// (created_at, id) ASC. An empty wallet set lists every wallet.
	ListPending(ctx context.Context, walletIDs []string) ([]*domain.TransferObservation, error)

	// ListExpirable returns up to limit pending or manual_review observations with
	// expires_at < now, ordered by (expires_at, id) ASC. limit <= 0 means no limit.
	ListExpirable(ctx context.Context, now int64, limit int) ([]*domain.TransferObservation, error)

	// List returns observations matching filter, ordered by (created_at, id) ASC.
	List(ctx context.Context, filter ObservationFilter) ([]*domain.TransferObservation, error)

	// Save persists o only if the stored version equals o.Version.
	// On success o.Version is incremented. Returns ErrConflict on a stale
	// version, ErrNotFound if the record does not exist and ErrInvalidInput
	// for backward status moves, decreasing attempts or changes to a terminal record.
	Save(ctx context.Context, o *domain.TransferObservation) error
}

// WalletHistoryStore provides the scorer's view of wallet activity:
// wallet_addresses and expected_transfers storage plus linked amount statistics.
type WalletHistoryStore interface {
	// RegisterAddress records that walletID owns address. Idempotent.
	RegisterAddress(ctx context.Context, walletID, address string) error

	// AddExpectedTransfer records a counterpart the wallet is waiting for.
	// Returns ErrDuplicateKey if the id exists.
	AddExpectedTransfer(ctx context.Context, e *domain.ExpectedTransfer) error

	// SettleExpectedTransfer binds an open counterpart to the observation that
	// matched it. Returns ErrNotFound if missing and ErrConflict if already
	// settled by another observation. Settling twice by the same observation is a no-op.
	SettleExpectedTransfer(ctx context.Context, id, observationID string, settledAt int64) error

	// GetHistory returns owned addresses, open expected transfers and the amount
	// range of linked observations. Unknown wallets yield an empty history.
	GetHistory(ctx context.Context, walletID string) (*domain.WalletHistory, error)
}

// TransitionLogStore provides access to the append-only transition_events log.
type TransitionLogStore interface {
	// Insert appends an event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.TransitionEvent) error

	// GetByObservationID returns events of one observation, ordered by (occurred_at, event_id) ASC.
	GetByObservationID(ctx context.Context, observationID string) ([]*domain.TransitionEvent, error)

	// GetByTimeRange returns events within [start, end] (inclusive), ordered by (occurred_at, event_id) ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TransitionEvent, error)
}
