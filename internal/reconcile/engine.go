// Package reconcile decides the lifecycle transitions of transfer observations.
//
// The Engine is pure over its inputs: it never performs I/O and never mutates
// the observation it is given. Every decision carries an updated copy to be
// persisted by the caller, plus the transition event when the status changed.
package reconcile

import (
	"fmt"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/scoring"
)

// Outcome classifies a Decision.
type Outcome string

// Outcome constants.
const (
	// OutcomeLinked: the observation moved to linked.
	OutcomeLinked Outcome = "linked"
	// OutcomeEscalated: pending moved to manual_review.
	OutcomeEscalated Outcome = "escalated"
	// OutcomeRetained: an explicit re-evaluation kept manual_review; attempts still grew.
	OutcomeRetained Outcome = "retained"
	// OutcomeIgnored: the observation moved to ignored (expiration or human).
	OutcomeIgnored Outcome = "ignored"
	// OutcomeAttemptRecorded: a failed evaluation was counted, status unchanged.
	OutcomeAttemptRecorded Outcome = "attempt_recorded"
	// OutcomeSkipped: nothing to do, the observation is left untouched.
	OutcomeSkipped Outcome = "skipped"
)

// Skip reasons.
const (
	ReasonTerminal       = "terminal status"
	ReasonDisabled       = "wallet disabled"
	ReasonAwaitingReview = "awaiting manual review"
	ReasonAwaitingSweep  = "expired, awaiting sweeper"
	ReasonNotExpired     = "not expired"
)

// Decision is the result of one engine operation.
type Decision struct {
	Outcome Outcome
	// Observation is the updated copy to save; nil when nothing changes.
	Observation *domain.TransferObservation
	// Event is set when the status changed. EventID is assigned by the committer.
	Event *domain.TransitionEvent
	// Explanation is set for evaluations that scored the observation.
	Explanation *scoring.Explanation
	Reason      string
}

// Mutates reports whether the decision must be persisted.
func (d *Decision) Mutates() bool {
	return d != nil && d.Observation != nil
}

// Request is the input of Evaluate.
type Request struct {
	Observation *domain.TransferObservation
	Settings    *domain.WalletLinkSettings // nil when the wallet is not configured
	History     *domain.WalletHistory
	Now         int64 // ms
	// Explicit marks a re-submission by signature. Only explicit requests
	// re-score observations already in manual_review.
	Explicit bool
}

// Engine applies the auto-link state machine.
type Engine struct {
	scorer scoring.Scorer
}

// NewEngine creates an engine. A nil scorer selects the reference ConfidenceScorer.
func NewEngine(scorer scoring.Scorer) *Engine {
	if scorer == nil {
		scorer = scoring.New()
	}
	return &Engine{scorer: scorer}
}

// Evaluate scores an observation and decides its next status.
//
// Returns *ValidationError for malformed input and *ConfigurationError for
// missing or invalid settings; in both cases nothing is to be saved.
func (e *Engine) Evaluate(req Request) (*Decision, error) {
	obs := req.Observation
	if err := ValidateObservation(obs); err != nil {
		return nil, err
	}
	if obs.Status.IsTerminal() {
		return skip(ReasonTerminal), nil
	}

	settings := req.Settings
	if settings == nil {
		return nil, &ConfigurationError{WalletID: obs.WalletID}
	}
	if err := settings.Validate(); err != nil {
		return nil, &ConfigurationError{WalletID: obs.WalletID, Err: err}
	}
	if settings.WalletID != obs.WalletID {
		return nil, &ValidationError{
			ObservationID: obs.ID,
			Field:         "wallet_id",
			Reason:        fmt.Sprintf("settings belong to wallet %q", settings.WalletID),
		}
	}
	if req.History != nil && req.History.WalletID != "" && req.History.WalletID != obs.WalletID {
		return nil, &ValidationError{
			ObservationID: obs.ID,
			Field:         "wallet_id",
			Reason:        fmt.Sprintf("history belongs to wallet %q", req.History.WalletID),
		}
	}

	if !settings.Enabled {
		return skip(ReasonDisabled), nil
	}
	// Expired observations belong to the sweeper and never link.
	if obs.IsExpired(req.Now) {
		return skip(ReasonAwaitingSweep), nil
	}
	if obs.Status == domain.StatusManualReview && !req.Explicit {
		return skip(ReasonAwaitingReview), nil
	}

	explanation := e.scorer.Explain(obs, settings, req.History, req.Now)

	next := obs.Clone()
	next.Attempts++
	next.ConfidenceScore = explanation.Score
	next.UpdatedAt = req.Now

	confident := explanation.Score >= settings.MinConfidenceScore
	switch {
	case confident && settings.AutoConfirmEnabled:
		next.Status = domain.StatusLinked
	default:
		next.Status = domain.StatusManualReview
	}

	d := &Decision{
		Observation: next,
		Explanation: &explanation,
	}
	switch {
	case next.Status == domain.StatusLinked:
		d.Outcome = OutcomeLinked
	case obs.Status == domain.StatusPending:
		d.Outcome = OutcomeEscalated
		d.Reason = escalationReason(confident)
	default:
		d.Outcome = OutcomeRetained
		d.Reason = escalationReason(confident)
	}
	if next.Status != obs.Status {
		d.Event = newEvent(obs, next, domain.TriggerEvaluation, domain.ActorEngine, req.Now)
	}
	return d, nil
}

// Expire demotes a pending or manual_review observation whose deadline has passed.
// Attempts and confidence score are left as they were.
func (e *Engine) Expire(obs *domain.TransferObservation, now int64) (*Decision, error) {
	if err := ValidateObservation(obs); err != nil {
		return nil, err
	}
	if obs.Status.IsTerminal() {
		return skip(ReasonTerminal), nil
	}
	if !obs.IsExpired(now) {
		return skip(ReasonNotExpired), nil
	}

	next := obs.Clone()
	next.Status = domain.StatusIgnored
	next.UpdatedAt = now
	return &Decision{
		Outcome:     OutcomeIgnored,
		Observation: next,
		Event:       newEvent(obs, next, domain.TriggerExpiration, domain.ActorSweeper, now),
	}, nil
}

// ManualLink confirms an observation awaiting review on behalf of actor.
func (e *Engine) ManualLink(obs *domain.TransferObservation, actor string, now int64) (*Decision, error) {
	if err := e.checkManual(obs, actor); err != nil {
		return nil, err
	}
	if obs.IsExpired(now) {
		return nil, fmt.Errorf("%w: observation %s expired at %d", ErrExpired, obs.ID, obs.ExpiresAt)
	}
	return manual(obs, domain.StatusLinked, OutcomeLinked, domain.TriggerManualLink, actor, now), nil
}

// ManualIgnore rejects an observation awaiting review on behalf of actor.
func (e *Engine) ManualIgnore(obs *domain.TransferObservation, actor string, now int64) (*Decision, error) {
	if err := e.checkManual(obs, actor); err != nil {
		return nil, err
	}
	return manual(obs, domain.StatusIgnored, OutcomeIgnored, domain.TriggerManualIgnore, actor, now), nil
}

// RecordFailedAttempt counts an evaluation that could not complete, e.g. because
// wallet history was unreadable. Status is unchanged, so the freshness signal
// keeps decaying on later passes.
func (e *Engine) RecordFailedAttempt(obs *domain.TransferObservation, now int64) (*Decision, error) {
	if err := ValidateObservation(obs); err != nil {
		return nil, err
	}
	if obs.Status.IsTerminal() {
		return skip(ReasonTerminal), nil
	}
	next := obs.Clone()
	next.Attempts++
	next.UpdatedAt = now
	return &Decision{Outcome: OutcomeAttemptRecorded, Observation: next}, nil
}

func (e *Engine) checkManual(obs *domain.TransferObservation, actor string) error {
	if err := ValidateObservation(obs); err != nil {
		return err
	}
	if actor == "" {
		return &ValidationError{ObservationID: obs.ID, Field: "actor", Reason: "empty"}
	}
	if obs.Status != domain.StatusManualReview {
		return fmt.Errorf("%w: observation %s is %s, manual actions require %s",
			ErrInvalidTransition, obs.ID, obs.Status, domain.StatusManualReview)
	}
	return nil
}

func manual(obs *domain.TransferObservation, to domain.Status, outcome Outcome, trigger domain.Trigger, actor string, now int64) *Decision {
	next := obs.Clone()
	next.Status = to
	next.UpdatedAt = now
	return &Decision{
		Outcome:     outcome,
		Observation: next,
		Event:       newEvent(obs, next, trigger, actor, now),
	}
}

func newEvent(prev, next *domain.TransferObservation, trigger domain.Trigger, actor string, now int64) *domain.TransitionEvent {
	return &domain.TransitionEvent{
		ObservationID:   next.ID,
		Signature:       next.Signature,
		WalletID:        next.WalletID,
		OldStatus:       prev.Status,
		NewStatus:       next.Status,
		ConfidenceScore: next.ConfidenceScore,
		Trigger:         trigger,
		Actor:           actor,
		OccurredAt:      now,
	}
}

func skip(reason string) *Decision {
	return &Decision{Outcome: OutcomeSkipped, Reason: reason}
}

func escalationReason(confident bool) string {
	if confident {
		return "auto-confirm disabled"
	}
	return "below confidence threshold"
}
