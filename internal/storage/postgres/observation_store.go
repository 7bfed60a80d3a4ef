package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// ObservationStore implements storage.ObservationStore using PostgreSQL.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

const observationColumns = `
	id, signature, wallet_id, wallet_address, amount::text, token_mint, direction,
	confidence_score, status, attempts, observed_at, created_at, expires_at, updated_at, version
`

// Insert adds a new observation. Returns ErrDuplicateKey if id or signature exists.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.TransferObservation) (err error) {
	if o == nil || o.ID == "" || o.Signature == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("observation_insert", start, err) }(time.Now())

	query := `
		INSERT INTO transfer_observations (
			id, signature, wallet_id, wallet_address, amount, token_mint, direction,
			confidence_score, status, attempts, observed_at, created_at, expires_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.pool.Exec(ctx, query,
		o.ID,
		o.Signature,
		o.WalletID,
		o.WalletAddress,
		o.Amount.String(),
		o.TokenMint,
		string(o.Direction),
		o.ConfidenceScore,
		string(o.Status),
		o.Attempts,
		o.ObservedAt,
		o.CreatedAt,
		o.ExpiresAt,
		o.UpdatedAt,
		o.Version,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// GetByID returns an observation by id. Returns ErrNotFound if not exists.
func (s *ObservationStore) GetByID(ctx context.Context, id string) (_ *domain.TransferObservation, err error) {
	defer func(start time.Time) { observe("observation_get", start, err) }(time.Now())
	return s.getOne(ctx, s.pool, `SELECT `+observationColumns+` FROM transfer_observations WHERE id = $1`, id)
}

// GetBySignature returns an observation by signature. Returns ErrNotFound if not exists.
func (s *ObservationStore) GetBySignature(ctx context.Context, signature string) (_ *domain.TransferObservation, err error) {
	defer func(start time.Time) { observe("observation_get", start, err) }(time.Now())
	return s.getOne(ctx, s.pool, `SELECT `+observationColumns+` FROM transfer_observations WHERE signature = $1`, signature)
}

// ListPending returns pending observations of the given wallets, ordered by (created_at, id).
func (s *ObservationStore) ListPending(ctx context.Context, walletIDs []string) ([]*domain.TransferObservation, error) {
	return s.List(ctx, storage.ObservationFilter{
		WalletIDs: walletIDs,
		Statuses:  []domain.Status{domain.StatusPending},
	})
}

// ListExpirable returns unresolved observations whose deadline passed before now,
// ordered by (expires_at, id).
func (s *ObservationStore) ListExpirable(ctx context.Context, now int64, limit int) (_ []*domain.TransferObservation, err error) {
	defer func(start time.Time) { observe("observation_list_expirable", start, err) }(time.Now())

	query := `
		SELECT ` + observationColumns + `
		FROM transfer_observations
		WHERE status IN ('pending', 'manual_review') AND expires_at < $1
		ORDER BY expires_at ASC, id ASC
	`
	args := []interface{}{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expirable observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// List returns observations matching filter, ordered by (created_at, id).
func (s *ObservationStore) List(ctx context.Context, filter storage.ObservationFilter) (_ []*domain.TransferObservation, err error) {
	defer func(start time.Time) { observe("observation_list", start, err) }(time.Now())

	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}

	// Empty arrays disable the corresponding filter.
	query := `
		SELECT ` + observationColumns + `
		FROM transfer_observations
		WHERE (cardinality($1::text[]) = 0 OR wallet_id = ANY($1))
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  AND updated_at >= $3
		ORDER BY created_at ASC, id ASC
	`

	walletIDs := filter.WalletIDs
	if walletIDs == nil {
		walletIDs = []string{}
	}
	rows, err := s.pool.Query(ctx, query, walletIDs, statuses, filter.UpdatedSince)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// Save persists o if the stored version equals o.Version, then bumps o.Version.
// The row is locked for the check so concurrent saves serialize on it.
func (s *ObservationStore) Save(ctx context.Context, o *domain.TransferObservation) (err error) {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("observation_save", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.getOne(ctx, tx,
		`SELECT `+observationColumns+` FROM transfer_observations WHERE id = $1 FOR UPDATE`, o.ID)
	if err != nil {
		return err
	}
	if current.Version != o.Version {
		return fmt.Errorf("%w: observation %s version %d, have %d",
			storage.ErrConflict, o.ID, current.Version, o.Version)
	}
	if err := storage.CheckReplace(current, o); err != nil {
		return err
	}

	query := `
		UPDATE transfer_observations SET
			amount = $2::numeric,
			token_mint = $3,
			confidence_score = $4,
			status = $5,
			attempts = $6,
			observed_at = $7,
			expires_at = $8,
			updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $10
	`
	tag, err := tx.Exec(ctx, query,
		o.ID,
		o.Amount.String(),
		o.TokenMint,
		o.ConfidenceScore,
		string(o.Status),
		o.Attempts,
		o.ObservedAt,
		o.ExpiresAt,
		o.UpdatedAt,
		o.Version,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("update observation: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: observation %s changed during save", storage.ErrConflict, o.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	o.Version++
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *ObservationStore) getOne(ctx context.Context, q querier, query string, arg interface{}) (*domain.TransferObservation, error) {
	o, err := scanObservation(q.QueryRow(ctx, query, arg))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return o, nil
}

// scanObservation scans a single row into TransferObservation.
func scanObservation(row pgx.Row) (*domain.TransferObservation, error) {
	var o domain.TransferObservation
	var amount, direction, status string
	err := row.Scan(
		&o.ID,
		&o.Signature,
		&o.WalletID,
		&o.WalletAddress,
		&amount,
		&o.TokenMint,
		&direction,
		&o.ConfidenceScore,
		&status,
		&o.Attempts,
		&o.ObservedAt,
		&o.CreatedAt,
		&o.ExpiresAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.Direction = domain.Direction(direction)
	o.Status = domain.Status(status)
	return &o, nil
}

// scanObservations scans multiple rows into TransferObservation slice.
func scanObservations(rows pgx.Rows) ([]*domain.TransferObservation, error) {
	var result []*domain.TransferObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}
