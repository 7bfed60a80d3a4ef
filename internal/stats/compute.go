package stats

import (
	"solana-autolink/internal/domain"
)

// computeFromObservations derives Stats from a snapshot of observations.
// Resolutions count toward the success rate when their last update falls in
// [now-lookbackMs, now]; lookbackMs <= 0 counts every resolution.
func computeFromObservations(observations []*domain.TransferObservation, now, lookbackMs int64) *Stats {
	s := &Stats{
		ByStatus:   make(map[domain.Status]int, len(domain.AllStatuses)),
		LookbackMs: lookbackMs,
		ComputedAt: now,
	}
	for _, st := range domain.AllStatuses {
		s.ByStatus[st] = 0
	}

	var pendingScores []float64
	for _, o := range observations {
		s.ByStatus[o.Status]++

		switch o.Status {
		case domain.StatusPending:
			pendingScores = append(pendingScores, o.ConfidenceScore)
		case domain.StatusLinked:
			if inWindow(o.UpdatedAt, now, lookbackMs) {
				s.LinkedInWindow++
			}
		case domain.StatusIgnored:
			if inWindow(o.UpdatedAt, now, lookbackMs) {
				s.IgnoredInWindow++
			}
		}
	}

	s.TotalPending = len(pendingScores)
	s.AverageConfidencePending = computeMean(pendingScores)
	s.SuccessRate = computeRate(s.LinkedInWindow, s.LinkedInWindow+s.IgnoredInWindow)
	return s
}

func inWindow(ts, now, lookbackMs int64) bool {
	if ts > now {
		return false
	}
	if lookbackMs <= 0 {
		return true
	}
	return ts >= now-lookbackMs
}

// computeMean returns the arithmetic mean, 0 for an empty slice.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeRate returns num/den, 0 when den is 0.
func computeRate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
