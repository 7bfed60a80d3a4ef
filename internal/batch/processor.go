// Package batch drives the reconciliation engine over sets of observations.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-autolink/internal/commit"
	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
)

// DefaultWorkers is the evaluation parallelism when Options.Workers is zero.
const DefaultWorkers = 8

// ErrNilSelector is returned when Process is called without a selector.
var ErrNilSelector = errors.New("batch: nil selector")

// Selector chooses the observations of a run.
type Selector struct {
	// WalletIDs scopes an all-pending run; empty means every wallet.
	WalletIDs []string
	// Signature selects one observation. It is an explicit re-submission,
	// so an observation in manual_review is re-scored too.
	Signature string
}

// AllPending selects every pending observation of the given wallets.
func AllPending(walletIDs ...string) *Selector {
	return &Selector{WalletIDs: walletIDs}
}

// BySignature selects the single observation with the given signature.
func BySignature(signature string) *Selector {
	return &Selector{Signature: signature}
}

// Label names the selector kind for logs and metrics.
func (s *Selector) Label() string {
	if s.Signature != "" {
		return "signature"
	}
	return "all_pending"
}

// ItemResult describes what happened to one observation.
type ItemResult struct {
	ObservationID   string        `json:"observation_id"`
	Signature       string        `json:"signature"`
	WalletID        string        `json:"wallet_id"`
	Status          domain.Status `json:"status"`
	ConfidenceScore float64       `json:"confidence_score"`
	Attempts        int           `json:"attempts"`
	Reason          string        `json:"reason,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Result groups item results by effect. Every slice is ordered by observation id.
type Result struct {
	RunID      string       `json:"run_id"`
	Linked     []ItemResult `json:"linked"`
	Escalated  []ItemResult `json:"escalated"`
	Unchanged  []ItemResult `json:"unchanged"`
	Failed     []ItemResult `json:"failed"`
	StartedAt  int64        `json:"started_at"`
	FinishedAt int64        `json:"finished_at"`
}

// Total returns the number of observations that were processed.
func (r *Result) Total() int {
	return len(r.Linked) + len(r.Escalated) + len(r.Unchanged) + len(r.Failed)
}

// Options configures a Processor.
type Options struct {
	Observations storage.ObservationStore
	Settings     storage.SettingsStore
	History      storage.WalletHistoryStore
	Engine       *reconcile.Engine
	Committer    *commit.Committer
	Workers      int
	Now          func() int64 // ms, default wall clock
	Logger       *zap.Logger
}

// Processor applies the engine to selected observations in parallel.
// Each observation is evaluated and committed independently, so one failure
// never aborts the run and evaluation order does not affect outcomes.
type Processor struct {
	observations storage.ObservationStore
	settings     storage.SettingsStore
	history      storage.WalletHistoryStore
	engine       *reconcile.Engine
	committer    *commit.Committer
	workers      int
	now          func() int64
	logger       *zap.Logger
}

// New creates a processor.
func New(opts Options) *Processor {
	p := &Processor{
		observations: opts.Observations,
		settings:     opts.Settings,
		history:      opts.History,
		engine:       opts.Engine,
		committer:    opts.Committer,
		workers:      opts.Workers,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if p.engine == nil {
		p.engine = reconcile.NewEngine(nil)
	}
	if p.committer == nil {
		p.committer = commit.New(commit.Options{Observations: opts.Observations, History: opts.History})
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.now == nil {
		p.now = func() int64 { return time.Now().UnixMilli() }
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Process runs the engine over the selected observations.
//
// Per-observation errors are reported in Result.Failed. An error is returned
// only for a nil selector, a failure to list the selection, or cancellation;
// on cancellation the partial result of the observations already committed is
// returned alongside ctx.Err().
func (p *Processor) Process(ctx context.Context, sel *Selector) (*Result, error) {
	if sel == nil {
		return nil, ErrNilSelector
	}

	start := time.Now()
	result := &Result{
		RunID:     uuid.NewString(),
		Linked:    []ItemResult{},
		Escalated: []ItemResult{},
		Unchanged: []ItemResult{},
		Failed:    []ItemResult{},
		StartedAt: p.now(),
	}
	logger := p.logger.With(zap.String("run_id", result.RunID), zap.String("selector", sel.Label()))

	targets, err := p.selectTargets(ctx, sel)
	if err != nil {
		observability.RecordBatchRun(sel.Label(), "error", time.Since(start).Seconds())
		return nil, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	explicit := sel.Signature != ""
	for _, obs := range targets {
		obs := obs
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			item, bucket := p.processOne(ctx, obs, explicit)
			if bucket == bucketCancelled {
				return nil
			}
			mu.Lock()
			result.add(bucket, item)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.sort()
	result.FinishedAt = p.now()

	status := "ok"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	observability.RecordBatchRun(sel.Label(), status, time.Since(start).Seconds())
	logger.Info("batch run finished",
		zap.Int("selected", len(targets)),
		zap.Int("linked", len(result.Linked)),
		zap.Int("escalated", len(result.Escalated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Processor) selectTargets(ctx context.Context, sel *Selector) ([]*domain.TransferObservation, error) {
	if sel.Signature != "" {
		obs, err := p.observations.GetBySignature(ctx, sel.Signature)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("observation with signature %s: %w", sel.Signature, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get by signature: %w", reconcile.ErrRepositoryUnavailable, err)
		}
		return []*domain.TransferObservation{obs}, nil
	}

	pending, err := p.observations.ListPending(ctx, sel.WalletIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending: %w", reconcile.ErrRepositoryUnavailable, err)
	}
	return pending, nil
}

type bucket int

const (
	bucketLinked bucket = iota
	bucketEscalated
	bucketUnchanged
	bucketFailed
	bucketCancelled
)

func (r *Result) add(b bucket, item ItemResult) {
	switch b {
	case bucketLinked:
		r.Linked = append(r.Linked, item)
	case bucketEscalated:
		r.Escalated = append(r.Escalated, item)
	case bucketUnchanged:
		r.Unchanged = append(r.Unchanged, item)
	case bucketFailed:
		r.Failed = append(r.Failed, item)
	}
}

func (r *Result) sort() {
	for _, items := range [][]ItemResult{r.Linked, r.Escalated, r.Unchanged, r.Failed} {
		sort.Slice(items, func(i, j int) bool {
			return items[i].ObservationID < items[j].ObservationID
		})
	}
}

// processOne evaluates and commits a single observation.
func (p *Processor) processOne(ctx context.Context, obs *domain.TransferObservation, explicit bool) (ItemResult, bucket) {
	now := p.now()
	latest := obs
	var historyErr error

	decide := func(ctx context.Context, cur *domain.TransferObservation) (*reconcile.Decision, error) {
		latest = cur
		historyErr = nil

		settings, err := p.settings.Get(ctx, cur.WalletID)
		if errors.Is(err, storage.ErrNotFound) {
			settings = nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: settings for wallet %s: %w", reconcile.ErrRepositoryUnavailable, cur.WalletID, err)
		}

		history, err := p.history.GetHistory(ctx, cur.WalletID)
		if err != nil {
			historyErr = fmt.Errorf("%w: history for wallet %s: %w", reconcile.ErrRepositoryUnavailable, cur.WalletID, err)
			history = nil
		}

		d, err := p.engine.Evaluate(reconcile.Request{
			Observation: cur,
			Settings:    settings,
			History:     history,
			Now:         now,
			Explicit:    explicit,
		})
		if err != nil || historyErr == nil || !d.Mutates() {
			return d, err
		}
		// The evaluation would have acted but its inputs were incomplete:
		// count the attempt without changing status.
		return p.engine.RecordFailedAttempt(cur, now)
	}

	d, err := p.committer.Commit(ctx, obs.ID, decide)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ItemResult{}, bucketCancelled
	}

	item := itemFrom(latest)
	if err != nil {
		return p.failed(item, err), bucketFailed
	}
	if d.Mutates() {
		item = itemFrom(d.Observation)
	}
	item.Reason = d.Reason

	scored := d.Explanation != nil
	score := 0.0
	if scored {
		score = d.Explanation.Score
	}
	observability.RecordEvaluation(string(d.Outcome), scored, score)

	if historyErr != nil && d.Outcome == reconcile.OutcomeAttemptRecorded {
		return p.failed(item, historyErr), bucketFailed
	}

	switch d.Outcome {
	case reconcile.OutcomeLinked:
		return item, bucketLinked
	case reconcile.OutcomeEscalated:
		return item, bucketEscalated
	default:
		return item, bucketUnchanged
	}
}

func (p *Processor) failed(item ItemResult, err error) ItemResult {
	item.Reason = reconcile.Reason(err)
	item.Error = err.Error()
	observability.RecordItemFailure(item.Reason)
	p.logger.Warn("observation evaluation failed",
		zap.String("observation_id", item.ObservationID),
		zap.String("signature", item.Signature),
		zap.String("reason", item.Reason),
		zap.String("error", item.Error),
	)
	return item
}

func itemFrom(o *domain.TransferObservation) ItemResult {
	return ItemResult{
		ObservationID:   o.ID,
		Signature:       o.Signature,
		WalletID:        o.WalletID,
		Status:          o.Status,
		ConfidenceScore: o.ConfidenceScore,
		Attempts:        o.Attempts,
	}
}
