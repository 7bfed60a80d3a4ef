package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// TransitionLogStore implements storage.TransitionLogStore using PostgreSQL.
type TransitionLogStore struct {
	pool *Pool
}

// NewTransitionLogStore creates a new TransitionLogStore.
func NewTransitionLogStore(pool *Pool) *TransitionLogStore {
	return &TransitionLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransitionLogStore = (*TransitionLogStore)(nil)

// Insert appends an event. Returns ErrDuplicateKey if event_id exists.
func (s *TransitionLogStore) Insert(ctx context.Context, e *domain.TransitionEvent) (err error) {
	if e == nil || e.EventID == "" || e.ObservationID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("transition_insert", start, err) }(time.Now())

	query := `
		INSERT INTO transition_events (
			event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		e.EventID,
		e.ObservationID,
		e.Signature,
		e.WalletID,
		string(e.OldStatus),
		string(e.NewStatus),
		e.ConfidenceScore,
		string(e.Trigger),
		e.Actor,
		e.OccurredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transition event: %w", err)
	}
	return nil
}

// GetByObservationID returns events of one observation, ordered by (occurred_at, event_id).
func (s *TransitionLogStore) GetByObservationID(ctx context.Context, observationID string) (_ []*domain.TransitionEvent, err error) {
	defer func(start time.Time) { observe("transition_list", start, err) }(time.Now())

	query := `
		SELECT event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		FROM transition_events
		WHERE observation_id = $1
		ORDER BY occurred_at ASC, event_id ASC
	`
	rows, err := s.pool.Query(ctx, query, observationID)
	if err != nil {
		return nil, fmt.Errorf("query transition events: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// GetByTimeRange returns events within [start, end], ordered by (occurred_at, event_id).
func (s *TransitionLogStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.TransitionEvent, err error) {
	defer func(t time.Time) { observe("transition_list", t, err) }(time.Now())

	query := `
		SELECT event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		FROM transition_events
		WHERE occurred_at >= $1 AND occurred_at <= $2
		ORDER BY occurred_at ASC, event_id ASC
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transition events: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func scanTransitions(rows pgx.Rows) ([]*domain.TransitionEvent, error) {
	var result []*domain.TransitionEvent
	for rows.Next() {
		var e domain.TransitionEvent
		var oldStatus, newStatus, trigger string
		err := rows.Scan(
			&e.EventID,
			&e.ObservationID,
			&e.Signature,
			&e.WalletID,
			&oldStatus,
			&newStatus,
			&e.ConfidenceScore,
			&trigger,
			&e.Actor,
			&e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transition event: %w", err)
		}
		e.OldStatus = domain.Status(oldStatus)
		e.NewStatus = domain.Status(newStatus)
		e.Trigger = domain.Trigger(trigger)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition events: %w", err)
	}
	return result, nil
}
