// Package sweeper expires unresolved observations whose deadline has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-autolink/internal/commit"
	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
)

// Defaults.
const (
	DefaultInterval   = time.Minute
	DefaultBatchLimit = 500
)

// Options configures a Sweeper.
type Options struct {
	Observations storage.ObservationStore
	Engine       *reconcile.Engine
	Committer    *commit.Committer
	Interval     time.Duration
	BatchLimit   int          // observations expired per listing round
	Now          func() int64 // ms, default wall clock
	Logger       *zap.Logger
}

// Sweeper moves pending and manual_review observations past their deadline to
// ignored. Wallet settings are not consulted: disabled wallets expire too.
type Sweeper struct {
	observations storage.ObservationStore
	engine       *reconcile.Engine
	committer    *commit.Committer
	interval     time.Duration
	batchLimit   int
	now          func() int64
	logger       *zap.Logger
}

// New creates a sweeper. It must share the committer (and so the lock set)
// with the batch processor of the same process.
func New(opts Options) *Sweeper {
	s := &Sweeper{
		observations: opts.Observations,
		engine:       opts.Engine,
		committer:    opts.Committer,
		interval:     opts.Interval,
		batchLimit:   opts.BatchLimit,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if s.engine == nil {
		s.engine = reconcile.NewEngine(nil)
	}
	if s.committer == nil {
		s.committer = commit.New(commit.Options{Observations: opts.Observations})
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.batchLimit <= 0 {
		s.batchLimit = DefaultBatchLimit
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Sweep expires every observation with expires_at < now and returns how many
// were moved to ignored. Item failures do not stop the sweep; they are joined
// into the returned error and retried on the next sweep.
func (s *Sweeper) Sweep(ctx context.Context, now int64) (int, error) {
	expired := 0
	var errs []error
	failed := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return expired, errors.Join(append(errs, err)...)
		}

		limit := s.batchLimit + len(failed)
		candidates, err := s.observations.ListExpirable(ctx, now, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: list expirable: %w", reconcile.ErrRepositoryUnavailable, err))
			break
		}

		progressed := false
		for _, obs := range candidates {
			if failed[obs.ID] {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			progressed = true
			d, err := s.committer.Commit(ctx, obs.ID, func(_ context.Context, cur *domain.TransferObservation) (*reconcile.Decision, error) {
				return s.engine.Expire(cur, now)
			})
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					break
				}
				failed[obs.ID] = true
				errs = append(errs, fmt.Errorf("expire %s: %w", obs.ID, err))
				continue
			}
			if d.Outcome == reconcile.OutcomeIgnored {
				expired++
			}
		}

		// A short page means everything expirable was visited. Failed items
		// stay listed, so the limit grows with them.
		if len(candidates) < limit || !progressed {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return expired, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled. Failed sweeps are logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	start := time.Now()
	expired, err := s.Sweep(ctx, s.now())
	observability.RecordSweep(expired, err != nil, time.Now().Unix())

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sweep finished with errors",
			zap.Int("expired", expired),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	if expired > 0 {
		s.logger.Info("sweep expired observations",
			zap.Int("expired", expired),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
