package memory

import (
	"context"
	"sort"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// TransitionLogStore is an in-memory implementation of storage.TransitionLogStore.
type TransitionLogStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransitionEvent // keyed by event_id
}

// NewTransitionLogStore creates a new in-memory transition log.
func NewTransitionLogStore() *TransitionLogStore {
	return &TransitionLogStore{
		data: make(map[string]*domain.TransitionEvent),
	}
}

// Insert appends an event. Returns ErrDuplicateKey if event_id exists.
func (s *TransitionLogStore) Insert(_ context.Context, e *domain.TransitionEvent) error {
	if e == nil || e.EventID == "" || e.ObservationID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}
	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetByObservationID returns events of one observation.
func (s *TransitionLogStore) GetByObservationID(_ context.Context, observationID string) ([]*domain.TransitionEvent, error) {
	return s.filter(func(e *domain.TransitionEvent) bool {
		return e.ObservationID == observationID
	}), nil
}

// GetByTimeRange returns events within [start, end] (inclusive).
func (s *TransitionLogStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.TransitionEvent, error) {
	return s.filter(func(e *domain.TransitionEvent) bool {
		return e.OccurredAt >= start && e.OccurredAt <= end
	}), nil
}

func (s *TransitionLogStore) filter(keep func(*domain.TransitionEvent) bool) []*domain.TransitionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransitionEvent
	for _, e := range s.data {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	// Sort by (occurred_at, event_id) ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].OccurredAt != result[j].OccurredAt {
			return result[i].OccurredAt < result[j].OccurredAt
		}
		return result[i].EventID < result[j].EventID
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.TransitionLogStore = (*TransitionLogStore)(nil)
