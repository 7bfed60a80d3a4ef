// Package service is the application trigger surface of the auto-link engine.
// Transports (HTTP, CLI) call it; it owns the wiring of the engine, the
// committer, the batch processor, the sweeper and the stats aggregator.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-autolink/internal/batch"
	"solana-autolink/internal/commit"
	"solana-autolink/internal/domain"
	"solana-autolink/internal/idhash"
	"solana-autolink/internal/lock"
	"solana-autolink/internal/notify"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/scoring"
	"solana-autolink/internal/solana"
	"solana-autolink/internal/stats"
	"solana-autolink/internal/storage"
	"solana-autolink/internal/sweeper"
)

// DefaultStatsLookback is used when Options.StatsLookback is zero.
const DefaultStatsLookback = 24 * time.Hour

// Options configures a Service.
type Options struct {
	// Required stores
	Observations storage.ObservationStore
	Settings     storage.SettingsStore
	History      storage.WalletHistoryStore

	// Transitions receives every committed event when set.
	Transitions storage.TransitionLogStore
	// Publishers receive every committed event after the audit log.
	Publishers []notify.Publisher

	Scorer             scoring.Scorer // nil selects the reference scorer
	Workers            int
	LockHoldTimeout    time.Duration
	MaxConflictRetries int
	SweepInterval      time.Duration
	SweepBatchLimit    int
	StatsLookback      time.Duration

	Now    func() int64 // ms, default wall clock
	Logger *zap.Logger
}

// Service exposes ingest, processing, manual review, settings and stats.
type Service struct {
	observations storage.ObservationStore
	settings     storage.SettingsStore
	history      storage.WalletHistoryStore
	transitions  storage.TransitionLogStore

	engine    *reconcile.Engine
	committer *commit.Committer
	processor *batch.Processor
	sweeper   *sweeper.Sweeper
	stats     *stats.Aggregator

	statsLookback time.Duration
	now           func() int64
	logger        *zap.Logger
}

// New wires a service. The processor and the sweeper share one committer,
// and so one lock set.
func New(opts Options) *Service {
	s := &Service{
		observations:  opts.Observations,
		settings:      opts.Settings,
		history:       opts.History,
		transitions:   opts.Transitions,
		statsLookback: opts.StatsLookback,
		now:           opts.Now,
		logger:        opts.Logger,
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.statsLookback <= 0 {
		s.statsLookback = DefaultStatsLookback
	}

	publishers := make([]notify.Publisher, 0, len(opts.Publishers)+1)
	if opts.Transitions != nil {
		publishers = append(publishers, notify.NewAuditLog(opts.Transitions))
	}
	publishers = append(publishers, opts.Publishers...)

	hold := opts.LockHoldTimeout
	if hold <= 0 {
		hold = lock.DefaultHoldTimeout
	}

	s.engine = reconcile.NewEngine(opts.Scorer)
	s.committer = commit.New(commit.Options{
		Observations:       opts.Observations,
		History:            opts.History,
		Locks:              lock.NewKeyed(hold),
		Publisher:          notify.NewFanout(s.logger.Named("notify"), publishers...),
		MaxConflictRetries: opts.MaxConflictRetries,
		Logger:             s.logger.Named("commit"),
	})
	s.processor = batch.New(batch.Options{
		Observations: opts.Observations,
		Settings:     opts.Settings,
		History:      opts.History,
		Engine:       s.engine,
		Committer:    s.committer,
		Workers:      opts.Workers,
		Now:          s.now,
		Logger:       s.logger.Named("batch"),
	})
	s.sweeper = sweeper.New(sweeper.Options{
		Observations: opts.Observations,
		Engine:       s.engine,
		Committer:    s.committer,
		Interval:     opts.SweepInterval,
		BatchLimit:   opts.SweepBatchLimit,
		Now:          s.now,
		Logger:       s.logger.Named("sweeper"),
	})
	s.stats = stats.NewAggregator(opts.Observations)
	return s
}

// Sweeper returns the expiration sweeper, for running its interval loop.
func (s *Service) Sweeper() *sweeper.Sweeper {
	return s.sweeper
}

// Ingest registers a newly detected transfer as a pending observation.
//
// The id is derived from (signature, wallet address, direction) when empty.
// Status, attempts and score are reset; the deadline is created_at plus the
// wallet's time window, or the default window for unconfigured wallets.
// Returns storage.ErrDuplicateKey if the signature was already ingested.
func (s *Service) Ingest(ctx context.Context, in *domain.TransferObservation) (*domain.TransferObservation, error) {
	if in == nil {
		return nil, &reconcile.ValidationError{Field: "observation", Reason: "nil"}
	}
	obs := in.Clone()
	obs.TokenMint = solana.NormalizeMint(obs.TokenMint)
	if obs.ID == "" {
		obs.ID = idhash.ComputeObservationID(obs.Signature, obs.WalletAddress, obs.Direction)
	}
	if obs.CreatedAt == 0 {
		obs.CreatedAt = s.now()
	}
	obs.Status = domain.StatusPending
	obs.Attempts = 0
	obs.ConfidenceScore = 0
	obs.UpdatedAt = obs.CreatedAt
	obs.Version = 0

	window, err := s.windowMs(ctx, obs.WalletID)
	if err != nil {
		return nil, err
	}
	obs.ExpiresAt = obs.CreatedAt + window

	if err := reconcile.ValidateObservation(obs); err != nil {
		return nil, err
	}

	if err := s.observations.Insert(ctx, obs); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("observation %s: %w", obs.Signature, err)
		}
		return nil, fmt.Errorf("%w: insert observation: %w", reconcile.ErrRepositoryUnavailable, err)
	}

	s.logger.Debug("observation ingested",
		zap.String("observation_id", obs.ID),
		zap.String("signature", obs.Signature),
		zap.String("wallet_id", obs.WalletID),
		zap.Int64("expires_at", obs.ExpiresAt),
	)
	return obs, nil
}

func (s *Service) windowMs(ctx context.Context, walletID string) (int64, error) {
	settings, err := s.settings.Get(ctx, walletID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.HoursToMs(domain.DefaultTimeWindowHours), nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get settings: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	if settings.Validate() != nil {
		return domain.HoursToMs(domain.DefaultTimeWindowHours), nil
	}
	return settings.WindowMs(), nil
}

// ProcessAll evaluates every pending observation of walletIDs (all wallets when empty).
func (s *Service) ProcessAll(ctx context.Context, walletIDs ...string) (*batch.Result, error) {
	return s.processor.Process(ctx, batch.AllPending(walletIDs...))
}

// ProcessSignature re-evaluates the observation with the given signature.
func (s *Service) ProcessSignature(ctx context.Context, signature string) (*batch.Result, error) {
	return s.processor.Process(ctx, batch.BySignature(signature))
}

// Link confirms an observation in manual_review on behalf of actor.
func (s *Service) Link(ctx context.Context, observationID, actor string) (*domain.TransferObservation, error) {
	return s.manual(ctx, observationID, func(cur *domain.TransferObservation) (*reconcile.Decision, error) {
		return s.engine.ManualLink(cur, actor, s.now())
	})
}

// Ignore rejects an observation in manual_review on behalf of actor.
func (s *Service) Ignore(ctx context.Context, observationID, actor string) (*domain.TransferObservation, error) {
	return s.manual(ctx, observationID, func(cur *domain.TransferObservation) (*reconcile.Decision, error) {
		return s.engine.ManualIgnore(cur, actor, s.now())
	})
}

func (s *Service) manual(ctx context.Context, id string, decide func(*domain.TransferObservation) (*reconcile.Decision, error)) (*domain.TransferObservation, error) {
	d, err := s.committer.Commit(ctx, id, func(_ context.Context, cur *domain.TransferObservation) (*reconcile.Decision, error) {
		return decide(cur)
	})
	if err != nil {
		return nil, err
	}
	return d.Observation, nil
}

// Sweep expires every overdue observation once.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.sweeper.Sweep(ctx, s.now())
}

// Stats aggregates the observations of walletIDs (all wallets when empty)
// over lookback; zero selects the configured default.
func (s *Service) Stats(ctx context.Context, lookback time.Duration, walletIDs ...string) (*stats.Stats, error) {
	if lookback <= 0 {
		lookback = s.statsLookback
	}
	st, err := s.stats.Compute(ctx, walletIDs, s.now(), lookback.Milliseconds())
	if err != nil {
		return nil, err
	}
	if len(walletIDs) == 0 {
		observability.UpdateQueueSizes(st.TotalPending, st.ByStatus[domain.StatusManualReview])
	}
	return st, nil
}

// GetObservation returns the observation with the given signature.
func (s *Service) GetObservation(ctx context.Context, signature string) (*domain.TransferObservation, error) {
	return s.observations.GetBySignature(ctx, signature)
}

// Transitions returns the recorded status changes of an observation.
// Returns nil when no transition log is configured.
func (s *Service) Transitions(ctx context.Context, observationID string) ([]*domain.TransitionEvent, error) {
	if s.transitions == nil {
		return nil, nil
	}
	return s.transitions.GetByObservationID(ctx, observationID)
}

// GetSettings returns the settings of a wallet. Returns storage.ErrNotFound
// for unconfigured wallets.
func (s *Service) GetSettings(ctx context.Context, walletID string) (*domain.WalletLinkSettings, error) {
	return s.settings.Get(ctx, walletID)
}

// PutSettings validates and stores wallet settings. Out-of-range values are
// rejected with a *reconcile.ConfigurationError and nothing is stored.
func (s *Service) PutSettings(ctx context.Context, settings *domain.WalletLinkSettings) (*domain.WalletLinkSettings, error) {
	if err := settings.Validate(); err != nil {
		walletID := ""
		if settings != nil {
			walletID = settings.WalletID
		}
		return nil, &reconcile.ConfigurationError{WalletID: walletID, Err: err}
	}
	next := *settings
	next.UpdatedAt = s.now()
	if err := s.settings.Upsert(ctx, &next); err != nil {
		return nil, fmt.Errorf("%w: upsert settings: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	s.logger.Info("wallet settings updated",
		zap.String("wallet_id", next.WalletID),
		zap.Bool("enabled", next.Enabled),
		zap.Float64("min_confidence_score", next.MinConfidenceScore),
		zap.Int("time_window_hours", next.TimeWindowHours),
		zap.Bool("auto_confirm", next.AutoConfirmEnabled),
	)
	return &next, nil
}

// RegisterAddress records that walletID owns address. The address must be an
// on-curve public key; program derived addresses cannot be owned.
func (s *Service) RegisterAddress(ctx context.Context, walletID, address string) error {
	if walletID == "" {
		return &reconcile.ValidationError{Field: "wallet_id", Reason: "empty"}
	}
	if err := solana.ValidateWalletAddress(address); err != nil {
		return &reconcile.ValidationError{Field: "address", Reason: "not an owned wallet address", Err: err}
	}
	if err := s.history.RegisterAddress(ctx, walletID, address); err != nil {
		return fmt.Errorf("%w: register address: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	return nil
}

// AddExpectedTransfer records a counterpart the wallet is waiting for.
// The id is generated when empty.
func (s *Service) AddExpectedTransfer(ctx context.Context, in *domain.ExpectedTransfer) (*domain.ExpectedTransfer, error) {
	if in == nil || in.WalletID == "" {
		return nil, &reconcile.ValidationError{Field: "wallet_id", Reason: "empty"}
	}
	if !in.Direction.Valid() {
		return nil, &reconcile.ValidationError{Field: "direction", Reason: "unknown value " + string(in.Direction)}
	}
	if in.Amount.IsNegative() {
		return nil, &reconcile.ValidationError{Field: "amount", Reason: "negative"}
	}

	e := *in
	e.TokenMint = solana.NormalizeMint(in.TokenMint)
	e.SettledBy = nil
	e.SettledAt = nil
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = s.now()
	}
	if err := s.history.AddExpectedTransfer(ctx, &e); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("expected transfer %s: %w", e.ID, err)
		}
		return nil, fmt.Errorf("%w: add expected transfer: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	return &e, nil
}
