package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// TransitionEventStore implements storage.TransitionLogStore using ClickHouse.
// It backs the analytics copy of the transition log.
type TransitionEventStore struct {
	conn *Conn
}

// NewTransitionEventStore creates a new TransitionEventStore.
func NewTransitionEventStore(conn *Conn) *TransitionEventStore {
	return &TransitionEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransitionLogStore = (*TransitionEventStore)(nil)

// Insert appends an event. Returns ErrDuplicateKey if event_id exists.
func (s *TransitionEventStore) Insert(ctx context.Context, e *domain.TransitionEvent) (err error) {
	if e == nil || e.EventID == "" || e.ObservationID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("transition_insert", start, err) }(time.Now())

	// ReplacingMergeTree would silently collapse a re-delivery; report it instead.
	exists, err := s.exists(ctx, e.EventID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO transition_events (
			event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
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
		return fmt.Errorf("insert transition event: %w", err)
	}
	return nil
}

// GetByObservationID returns events of one observation, ordered by (occurred_at, event_id).
func (s *TransitionEventStore) GetByObservationID(ctx context.Context, observationID string) (_ []*domain.TransitionEvent, err error) {
	defer func(start time.Time) { observe("transition_list", start, err) }(time.Now())

	query := `
		SELECT event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		FROM transition_events FINAL
		WHERE observation_id = ?
		ORDER BY occurred_at ASC, event_id ASC
	`
	rows, err := s.conn.Query(ctx, query, observationID)
	if err != nil {
		return nil, fmt.Errorf("query transition events: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// GetByTimeRange returns events within [start, end], ordered by (occurred_at, event_id).
func (s *TransitionEventStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.TransitionEvent, err error) {
	defer func(t time.Time) { observe("transition_list", t, err) }(time.Now())

	query := `
		SELECT event_id, observation_id, signature, wallet_id, old_status, new_status,
			confidence_score, trigger, actor, occurred_at
		FROM transition_events FINAL
		WHERE occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, event_id ASC
	`
	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query transition events: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

func (s *TransitionEventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM transition_events WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanTransitions(rows driver.Rows) ([]*domain.TransitionEvent, error) {
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
