package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// WalletHistoryStore implements storage.WalletHistoryStore using PostgreSQL.
type WalletHistoryStore struct {
	pool *Pool
}

// NewWalletHistoryStore creates a new WalletHistoryStore.
func NewWalletHistoryStore(pool *Pool) *WalletHistoryStore {
	return &WalletHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletHistoryStore = (*WalletHistoryStore)(nil)

// RegisterAddress records that walletID owns address. Idempotent.
func (s *WalletHistoryStore) RegisterAddress(ctx context.Context, walletID, address string) (err error) {
	if walletID == "" || address == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("address_register", start, err) }(time.Now())

	query := `
		INSERT INTO wallet_addresses (wallet_id, address, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_id, address) DO NOTHING
	`
	if _, err = s.pool.Exec(ctx, query, walletID, address, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("register address: %w", err)
	}
	return nil
}

// AddExpectedTransfer records a counterpart. Returns ErrDuplicateKey if the id exists.
func (s *WalletHistoryStore) AddExpectedTransfer(ctx context.Context, e *domain.ExpectedTransfer) (err error) {
	if e == nil || e.ID == "" || e.WalletID == "" || !e.Direction.Valid() || e.Amount.IsNegative() {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("expected_transfer_insert", start, err) }(time.Now())

	query := `
		INSERT INTO expected_transfers (id, wallet_id, direction, amount, token_mint, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		e.ID,
		e.WalletID,
		string(e.Direction),
		e.Amount.String(),
		e.TokenMint,
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert expected transfer: %w", err)
	}
	return nil
}

// SettleExpectedTransfer binds an open counterpart to observationID.
func (s *WalletHistoryStore) SettleExpectedTransfer(ctx context.Context, id, observationID string, settledAt int64) (err error) {
	defer func(start time.Time) { observe("expected_transfer_settle", start, err) }(time.Now())

	query := `
		UPDATE expected_transfers
		SET settled_by = $2, settled_at = $3
		WHERE id = $1 AND (settled_by IS NULL OR settled_by = $2)
	`
	tag, err := s.pool.Exec(ctx, query, id, observationID, settledAt)
	if err != nil {
		return fmt.Errorf("settle expected transfer: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var settledBy *string
	err = s.pool.QueryRow(ctx, `SELECT settled_by FROM expected_transfers WHERE id = $1`, id).Scan(&settledBy)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get expected transfer: %w", err)
	}
	by := ""
	if settledBy != nil {
		by = *settledBy
	}
	return fmt.Errorf("%w: expected transfer %s settled by %s", storage.ErrConflict, id, by)
}

// GetHistory returns owned addresses, open counterparts and the linked amount range.
func (s *WalletHistoryStore) GetHistory(ctx context.Context, walletID string) (_ *domain.WalletHistory, err error) {
	defer func(start time.Time) { observe("history_get", start, err) }(time.Now())

	h := &domain.WalletHistory{WalletID: walletID}

	rows, err := s.pool.Query(ctx,
		`SELECT address FROM wallet_addresses WHERE wallet_id = $1 ORDER BY address ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query wallet addresses: %w", err)
	}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan wallet address: %w", err)
		}
		h.OwnedAddresses = append(h.OwnedAddresses, addr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet addresses: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, wallet_id, direction, amount::text, token_mint, created_at
		FROM expected_transfers
		WHERE wallet_id = $1 AND settled_by IS NULL
		ORDER BY created_at ASC, id ASC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query expected transfers: %w", err)
	}
	for rows.Next() {
		var e domain.ExpectedTransfer
		var direction, amount string
		if err := rows.Scan(&e.ID, &e.WalletID, &direction, &amount, &e.TokenMint, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expected transfer: %w", err)
		}
		e.Direction = domain.Direction(direction)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse expected amount %q: %w", amount, err)
		}
		h.Expected = append(h.Expected, &e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expected transfers: %w", err)
	}

	var minAmount, maxAmount *string
	err = s.pool.QueryRow(ctx, `
		SELECT MIN(amount)::text, MAX(amount)::text, COUNT(*)
		FROM transfer_observations
		WHERE wallet_id = $1 AND status = 'linked'
	`, walletID).Scan(&minAmount, &maxAmount, &h.LinkedAmounts.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("query linked amount range: %w", err)
	}
	if h.LinkedAmounts.SampleCount > 0 && minAmount != nil && maxAmount != nil {
		if h.LinkedAmounts.Min, err = decimal.NewFromString(*minAmount); err != nil {
			return nil, fmt.Errorf("parse min amount: %w", err)
		}
		if h.LinkedAmounts.Max, err = decimal.NewFromString(*maxAmount); err != nil {
			return nil, fmt.Errorf("parse max amount: %w", err)
		}
	}
	return h, nil
}
