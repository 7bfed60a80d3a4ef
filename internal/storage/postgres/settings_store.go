package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get returns the settings of a wallet. Returns ErrNotFound if not configured.
func (s *SettingsStore) Get(ctx context.Context, walletID string) (_ *domain.WalletLinkSettings, err error) {
	defer func(start time.Time) { observe("settings_get", start, err) }(time.Now())

	query := `
		SELECT wallet_id, enabled, min_confidence_score, time_window_hours,
			notification_enabled, auto_confirm_enabled, updated_at
		FROM wallet_link_settings
		WHERE wallet_id = $1
	`

	var ws domain.WalletLinkSettings
	err = s.pool.QueryRow(ctx, query, walletID).Scan(
		&ws.WalletID,
		&ws.Enabled,
		&ws.MinConfidenceScore,
		&ws.TimeWindowHours,
		&ws.NotificationEnabled,
		&ws.AutoConfirmEnabled,
		&ws.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &ws, nil
}

// Upsert creates or replaces settings after validation.
func (s *SettingsStore) Upsert(ctx context.Context, ws *domain.WalletLinkSettings) (err error) {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	defer func(start time.Time) { observe("settings_upsert", start, err) }(time.Now())

	query := `
		INSERT INTO wallet_link_settings (
			wallet_id, enabled, min_confidence_score, time_window_hours,
			notification_enabled, auto_confirm_enabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			min_confidence_score = EXCLUDED.min_confidence_score,
			time_window_hours = EXCLUDED.time_window_hours,
			notification_enabled = EXCLUDED.notification_enabled,
			auto_confirm_enabled = EXCLUDED.auto_confirm_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		ws.WalletID,
		ws.Enabled,
		ws.MinConfidenceScore,
		ws.TimeWindowHours,
		ws.NotificationEnabled,
		ws.AutoConfirmEnabled,
		ws.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
