// Package commit is the single write path for observation transitions.
//
// Every mutation (evaluation, expiration, manual action) runs as: acquire the
// observation's lock, re-read it, decide, conditionally save. A stale save is
// re-read and re-decided, never overwritten.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/lock"
	"solana-autolink/internal/notify"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
)

// DefaultMaxConflictRetries is used when Options.MaxConflictRetries is zero.
const DefaultMaxConflictRetries = 3

// DecideFunc produces a decision from the freshly read observation.
// It runs under the observation lock with the lock-bounded context.
type DecideFunc func(ctx context.Context, current *domain.TransferObservation) (*reconcile.Decision, error)

// Options configures a Committer.
type Options struct {
	Observations       storage.ObservationStore
	History            storage.WalletHistoryStore // optional, settles matched counterparts
	Locks              *lock.Keyed                // nil creates a private lock set
	Publisher          notify.Publisher           // optional
	MaxConflictRetries int
	Logger             *zap.Logger
	NewEventID         func() string // default uuid.NewString
}

// Committer applies decisions atomically per observation.
type Committer struct {
	observations storage.ObservationStore
	history      storage.WalletHistoryStore
	locks        *lock.Keyed
	publisher    notify.Publisher
	maxRetries   int
	logger       *zap.Logger
	newEventID   func() string
}

// New creates a committer.
func New(opts Options) *Committer {
	c := &Committer{
		observations: opts.Observations,
		history:      opts.History,
		locks:        opts.Locks,
		publisher:    opts.Publisher,
		maxRetries:   opts.MaxConflictRetries,
		logger:       opts.Logger,
		newEventID:   opts.NewEventID,
	}
	if c.locks == nil {
		c.locks = lock.NewKeyed(lock.DefaultHoldTimeout)
	}
	if c.publisher == nil {
		c.publisher = notify.Nop{}
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxConflictRetries
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.newEventID == nil {
		c.newEventID = uuid.NewString
	}
	return c
}

// Commit decides and persists one transition of the observation with the given id.
//
// Returns the applied decision. Errors from decide are returned unchanged.
// Store failures wrap reconcile.ErrRepositoryUnavailable; exhausted conflict
// retries return reconcile.ErrConcurrencyConflict. On any error nothing was saved.
func (c *Committer) Commit(ctx context.Context, observationID string, decide DecideFunc) (*reconcile.Decision, error) {
	waitStart := time.Now()
	held, release, err := c.locks.Acquire(ctx, observationID)
	if err != nil {
		return nil, err
	}
	defer release()
	observability.RecordLockWait(time.Since(waitStart).Seconds())

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		current, err := c.observations.GetByID(held, observationID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: read observation %s: %w", reconcile.ErrRepositoryUnavailable, observationID, err)
		}

		decision, err := decide(held, current)
		if err != nil {
			return nil, err
		}
		if !decision.Mutates() {
			return decision, nil
		}

		err = c.observations.Save(held, decision.Observation)
		if err == nil {
			c.afterCommit(ctx, decision)
			return decision, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			if errors.Is(err, storage.ErrInvalidInput) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: save observation %s: %w", reconcile.ErrRepositoryUnavailable, observationID, err)
		}

		observability.RecordCommitConflict()
		c.logger.Debug("stale observation, re-deciding",
			zap.String("observation_id", observationID),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("%w: observation %s after %d attempts",
		reconcile.ErrConcurrencyConflict, observationID, c.maxRetries+1)
}

// afterCommit settles the matched counterpart and publishes the event.
// Failures here are logged: the transition itself is already durable.
func (c *Committer) afterCommit(ctx context.Context, d *reconcile.Decision) {
	obs := d.Observation

	if d.Outcome == reconcile.OutcomeLinked && d.Explanation != nil && d.Explanation.CounterpartID != "" && c.history != nil {
		err := c.history.SettleExpectedTransfer(ctx, d.Explanation.CounterpartID, obs.ID, obs.UpdatedAt)
		if err != nil {
			c.logger.Warn("settle expected transfer",
				zap.String("expected_transfer_id", d.Explanation.CounterpartID),
				zap.String("observation_id", obs.ID),
				zap.Error(err),
			)
		}
	}

	if d.Event == nil {
		return
	}
	d.Event.EventID = c.newEventID()
	observability.RecordTransition(string(d.Event.Trigger), string(d.Event.OldStatus), string(d.Event.NewStatus))
	c.logger.Info("observation transitioned",
		zap.String("observation_id", obs.ID),
		zap.String("signature", obs.Signature),
		zap.String("wallet_id", obs.WalletID),
		zap.String("from", string(d.Event.OldStatus)),
		zap.String("to", string(d.Event.NewStatus)),
		zap.String("trigger", string(d.Event.Trigger)),
		zap.String("actor", d.Event.Actor),
		zap.Float64("confidence", d.Event.ConfidenceScore),
	)
	if err := c.publisher.Publish(ctx, d.Event); err != nil {
		c.logger.Warn("publish transition", zap.String("event_id", d.Event.EventID), zap.Error(err))
	}
}
