// Package scoring computes the confidence that a transfer observation belongs
// to a wallet's recent activity.
//
// The score is a weighted sum of four signals, each normalized to [0,1]:
//
//	address    0.40  candidate address is one the wallet owns
//	recency    0.25  on-chain time inside the wallet's window, linear decay to 2x window
//	amount     0.20  matches an open expected counterpart, or is plausible for the wallet
//	freshness  0.15  1.0 on the first attempt, minus 0.1 per previous attempt
//
// An implausible amount (signal 0) caps the score at ImplausibleAmountCeiling,
// below the lowest threshold a wallet may configure, so such transfers always
// go to manual review. Weights are policy, not derived values. Scoring is pure: no I/O, no clock,
// no mutation of its inputs.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"solana-autolink/internal/domain"
)

// Signal weights. They sum to 1.
const (
	WeightAddress   = 0.40
	WeightRecency   = 0.25
	WeightAmount    = 0.20
	WeightFreshness = 0.15
)

// Signal tuning.
const (
	// FreshnessDecayPerRetry is subtracted from the freshness signal per previous attempt.
	FreshnessDecayPerRetry = 0.1

	// MaxPlausibleMultiple bounds how far outside the wallet's linked amount range
	// an amount may fall before it is treated as implausible.
	MaxPlausibleMultiple = 100

	// AmountUnmatched is the amount signal for a plausible amount without counterpart.
	AmountUnmatched = 0.5

	// ImplausibleAmountCeiling bounds the score when the amount signal is 0.
	// It stays below domain.MinConfidenceFloor.
	ImplausibleAmountCeiling = 0.45

	scorePrecision = 1e6
	// scoreEpsilon absorbs float summation noise before truncation.
	scoreEpsilon = 1e-12
)

var (
	// AmountTolerance is the relative tolerance for counterpart amount matches (0.1%).
	AmountTolerance = decimal.NewFromFloat(0.001)

	// DustAmount is the smallest amount that is plausible without a counterpart.
	DustAmount = decimal.NewFromFloat(0.001)
)

// Signals holds the normalized value of every signal.
type Signals struct {
	Address   float64 `json:"address"`
	Recency   float64 `json:"recency"`
	Amount    float64 `json:"amount"`
	Freshness float64 `json:"freshness"`
}

// Weighted returns the weighted sum of the signals, clamped to [0,1] and
// truncated to six decimals. Only float summation noise is absorbed, so a
// score below a threshold is never lifted onto it.
func (s Signals) Weighted() float64 {
	sum := WeightAddress*s.Address +
		WeightRecency*s.Recency +
		WeightAmount*s.Amount +
		WeightFreshness*s.Freshness
	if s.Amount <= 0 {
		sum = math.Min(sum, ImplausibleAmountCeiling)
	}
	return truncate(clamp01(sum))
}

// Explanation is a score together with the evidence that produced it.
type Explanation struct {
	Score   float64 `json:"score"`
	Signals Signals `json:"signals"`
	// CounterpartID is the expected transfer the amount matched, empty if none.
	CounterpartID string `json:"counterpart_id,omitempty"`
}

// Scorer is the interface the reconciliation engine depends on.
type Scorer interface {
	Explain(obs *domain.TransferObservation, settings *domain.WalletLinkSettings, history *domain.WalletHistory, now int64) Explanation
}

// ConfidenceScorer is the reference Scorer.
type ConfidenceScorer struct{}

// New returns the reference scorer.
func New() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// Score returns only the final score.
func (c *ConfidenceScorer) Score(obs *domain.TransferObservation, settings *domain.WalletLinkSettings, history *domain.WalletHistory, now int64) float64 {
	return c.Explain(obs, settings, history, now).Score
}

// Explain computes every signal and the final score.
// settings may be nil, in which case the default time window applies.
func (c *ConfidenceScorer) Explain(obs *domain.TransferObservation, settings *domain.WalletLinkSettings, history *domain.WalletHistory, now int64) Explanation {
	windowMs := domain.HoursToMs(domain.DefaultTimeWindowHours)
	if settings != nil && domain.ValidTimeWindow(settings.TimeWindowHours) {
		windowMs = settings.WindowMs()
	}

	amount, counterpart := AmountSignal(obs, history)
	signals := Signals{
		Address:   AddressSignal(obs, history),
		Recency:   RecencySignal(observedAt(obs), now, windowMs),
		Amount:    amount,
		Freshness: FreshnessSignal(obs.Attempts),
	}

	return Explanation{
		Score:         signals.Weighted(),
		Signals:       signals,
		CounterpartID: counterpart,
	}
}

// AddressSignal is 1 when the candidate address is exactly one the wallet owns.
func AddressSignal(obs *domain.TransferObservation, history *domain.WalletHistory) float64 {
	if history.Owns(obs.WalletAddress) {
		return 1
	}
	return 0
}

// RecencySignal is 1 for ages within the window, decays linearly to 0 at twice
// the window, and is 0 beyond. Timestamps in the future count as age 0.
func RecencySignal(observedAt, now, windowMs int64) float64 {
	if windowMs <= 0 {
		return 0
	}
	age := now - observedAt
	if age <= windowMs {
		return 1
	}
	if age >= 2*windowMs {
		return 0
	}
	return float64(2*windowMs-age) / float64(windowMs)
}

// AmountSignal scores amount plausibility and returns the matched counterpart id.
//
//	1.0  matches an open expected transfer (same direction and mint) within AmountTolerance
//	0.5  no counterpart, amount plausible for the wallet (or no linked history yet)
//	0.0  zero, dust without counterpart, or more than MaxPlausibleMultiple
//	     outside the linked amount range
func AmountSignal(obs *domain.TransferObservation, history *domain.WalletHistory) (float64, string) {
	if !obs.Amount.IsPositive() {
		return 0, ""
	}
	if id := matchCounterpart(obs, history); id != "" {
		return 1, id
	}
	if obs.Amount.LessThan(DustAmount) {
		return 0, ""
	}
	if history == nil || history.LinkedAmounts.SampleCount == 0 {
		return AmountUnmatched, ""
	}

	multiple := decimal.NewFromInt(MaxPlausibleMultiple)
	upper := history.LinkedAmounts.Max.Mul(multiple)
	lower := history.LinkedAmounts.Min.Div(multiple)
	if obs.Amount.GreaterThan(upper) || obs.Amount.LessThan(lower) {
		return 0, ""
	}
	return AmountUnmatched, ""
}

// FreshnessSignal is 1 before any attempt and loses FreshnessDecayPerRetry per attempt, floor 0.
func FreshnessSignal(previousAttempts int) float64 {
	if previousAttempts <= 0 {
		return 1
	}
	return math.Max(0, 1-FreshnessDecayPerRetry*float64(previousAttempts))
}

// matchCounterpart returns the id of the closest open expected transfer within
// tolerance. Ties resolve to the lowest id so the result is order independent.
func matchCounterpart(obs *domain.TransferObservation, history *domain.WalletHistory) string {
	if history == nil {
		return ""
	}

	var bestID string
	var bestDiff decimal.Decimal
	for _, e := range history.Expected {
		if e == nil || !e.IsOpen() || e.Direction != obs.Direction || !domain.SameMint(e.TokenMint, obs.TokenMint) {
			continue
		}
		if !e.Amount.IsPositive() {
			continue
		}
		diff := obs.Amount.Sub(e.Amount).Abs()
		if diff.GreaterThan(e.Amount.Mul(AmountTolerance)) {
			continue
		}
		if bestID == "" || diff.LessThan(bestDiff) || (diff.Equal(bestDiff) && e.ID < bestID) {
			bestID = e.ID
			bestDiff = diff
		}
	}
	return bestID
}

func observedAt(obs *domain.TransferObservation) int64 {
	if obs.ObservedAt > 0 {
		return obs.ObservedAt
	}
	return obs.CreatedAt
}

func truncate(v float64) float64 {
	return math.Floor((v+scoreEpsilon)*scorePrecision) / scorePrecision
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
