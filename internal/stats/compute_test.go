package stats

import (
	"math"
	"testing"

	"solana-autolink/internal/domain"
)

func obs(status domain.Status, score float64, updatedAt int64) *domain.TransferObservation {
	return &domain.TransferObservation{Status: status, ConfidenceScore: score, UpdatedAt: updatedAt}
}

func TestComputeFromObservations_Empty(t *testing.T) {
	s := computeFromObservations(nil, 1000, 100)

	if s.TotalPending != 0 {
		t.Errorf("TotalPending = %d, want 0", s.TotalPending)
	}
	if s.SuccessRate != 0 || math.IsNaN(s.SuccessRate) {
		t.Errorf("SuccessRate = %v, want 0", s.SuccessRate)
	}
	if s.AverageConfidencePending != 0 || math.IsNaN(s.AverageConfidencePending) {
		t.Errorf("AverageConfidencePending = %v, want 0", s.AverageConfidencePending)
	}
	for _, st := range domain.AllStatuses {
		if n, ok := s.ByStatus[st]; !ok || n != 0 {
			t.Errorf("ByStatus[%s] = %d (present %v), want 0", st, n, ok)
		}
	}
}

func TestComputeFromObservations(t *testing.T) {
	now := int64(10_000)
	observations := []*domain.TransferObservation{
		obs(domain.StatusPending, 0.4, 9000),
		obs(domain.StatusPending, 0.8, 9500),
		obs(domain.StatusManualReview, 0.6, 9500),
		obs(domain.StatusLinked, 0.9, 9800),  // in window
		obs(domain.StatusLinked, 0.95, 9100), // in window
		obs(domain.StatusLinked, 0.9, 5000),  // outside window
		obs(domain.StatusIgnored, 0.3, 9900), // in window
		obs(domain.StatusIgnored, 0.3, 1000), // outside window
	}

	s := computeFromObservations(observations, now, 1000)

	if s.TotalPending != 2 {
		t.Errorf("TotalPending = %d, want 2", s.TotalPending)
	}
	if math.Abs(s.AverageConfidencePending-0.6) > 1e-9 {
		t.Errorf("AverageConfidencePending = %v, want 0.6", s.AverageConfidencePending)
	}
	want := map[domain.Status]int{
		domain.StatusPending:      2,
		domain.StatusManualReview: 1,
		domain.StatusLinked:       3,
		domain.StatusIgnored:      2,
	}
	for st, n := range want {
		if s.ByStatus[st] != n {
			t.Errorf("ByStatus[%s] = %d, want %d", st, s.ByStatus[st], n)
		}
	}
	if s.LinkedInWindow != 2 || s.IgnoredInWindow != 1 {
		t.Errorf("window counts = %d linked / %d ignored, want 2 / 1", s.LinkedInWindow, s.IgnoredInWindow)
	}
	if math.Abs(s.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v, want 2/3", s.SuccessRate)
	}
}

func TestComputeFromObservations_NoLookback(t *testing.T) {
	observations := []*domain.TransferObservation{
		obs(domain.StatusLinked, 1, 1),
		obs(domain.StatusIgnored, 0, 2),
		obs(domain.StatusIgnored, 0, 3),
		obs(domain.StatusLinked, 1, 99_999), // in the future of now
	}

	s := computeFromObservations(observations, 100, 0)
	if s.LinkedInWindow != 1 || s.IgnoredInWindow != 2 {
		t.Errorf("window counts = %d / %d, want 1 / 2", s.LinkedInWindow, s.IgnoredInWindow)
	}
}

func TestComputeRate(t *testing.T) {
	tests := []struct {
		num, den int
		want     float64
	}{
		{0, 0, 0},
		{3, 0, 0},
		{1, 4, 0.25},
		{4, 4, 1},
	}
	for _, tt := range tests {
		if got := computeRate(tt.num, tt.den); got != tt.want {
			t.Errorf("computeRate(%d, %d) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}
