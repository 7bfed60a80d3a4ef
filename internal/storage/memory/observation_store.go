package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu          sync.RWMutex
	data        map[string]*domain.TransferObservation // keyed by id
	bySignature map[string]string                      // signature -> id
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		data:        make(map[string]*domain.TransferObservation),
		bySignature: make(map[string]string),
	}
}

// Insert adds a new observation. Returns ErrDuplicateKey if id or signature exists.
func (s *ObservationStore) Insert(_ context.Context, o *domain.TransferObservation) error {
	if o == nil || o.ID == "" || o.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.bySignature[o.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[o.ID] = o.Clone()
	s.bySignature[o.Signature] = o.ID
	return nil
}

// GetByID returns an observation by id. Returns ErrNotFound if not exists.
func (s *ObservationStore) GetByID(_ context.Context, id string) (*domain.TransferObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return o.Clone(), nil
}

// GetBySignature returns an observation by signature. Returns ErrNotFound if not exists.
func (s *ObservationStore) GetBySignature(_ context.Context, signature string) (*domain.TransferObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.bySignature[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.data[id].Clone(), nil
}

// ListPending returns pending observations of the given wallets, ordered by (created_at, id).
func (s *ObservationStore) ListPending(ctx context.Context, walletIDs []string) ([]*domain.TransferObservation, error) {
	return s.List(ctx, storage.ObservationFilter{
		WalletIDs: walletIDs,
		Statuses:  []domain.Status{domain.StatusPending},
	})
}

// ListExpirable returns unresolved observations whose deadline passed before now.
func (s *ObservationStore) ListExpirable(_ context.Context, now int64, limit int) ([]*domain.TransferObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferObservation
	for _, o := range s.data {
		if o.Status.IsTerminal() || o.ExpiresAt >= now {
			continue
		}
		result = append(result, o.Clone())
	}

	// Sort by (expires_at, id) ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].ExpiresAt != result[j].ExpiresAt {
			return result[i].ExpiresAt < result[j].ExpiresAt
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// List returns observations matching filter, ordered by (created_at, id).
func (s *ObservationStore) List(_ context.Context, filter storage.ObservationFilter) ([]*domain.TransferObservation, error) {
	wallets := toSet(filter.WalletIDs)
	statuses := make(map[domain.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferObservation
	for _, o := range s.data {
		if len(wallets) > 0 && !wallets[o.WalletID] {
			continue
		}
		if len(statuses) > 0 && !statuses[o.Status] {
			continue
		}
		if filter.UpdatedSince > 0 && o.UpdatedAt < filter.UpdatedSince {
			continue
		}
		result = append(result, o.Clone())
	}

	// Sort by (created_at, id) ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Save persists o if the stored version equals o.Version, then bumps o.Version.
func (s *ObservationStore) Save(_ context.Context, o *domain.TransferObservation) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[o.ID]
	if !exists {
		return storage.ErrNotFound
	}
	if current.Version != o.Version {
		return fmt.Errorf("%w: observation %s version %d, have %d",
			storage.ErrConflict, o.ID, current.Version, o.Version)
	}
	if err := storage.CheckReplace(current, o); err != nil {
		return err
	}

	o.Version++
	s.data[o.ID] = o.Clone()
	return nil
}

// linkedAmountRange summarizes amounts of the wallet's linked observations.
func (s *ObservationStore) linkedAmountRange(walletID string) domain.AmountRange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r domain.AmountRange
	for _, o := range s.data {
		if o.WalletID != walletID || o.Status != domain.StatusLinked {
			continue
		}
		if r.SampleCount == 0 || o.Amount.LessThan(r.Min) {
			r.Min = o.Amount
		}
		if r.SampleCount == 0 || o.Amount.GreaterThan(r.Max) {
			r.Max = o.Amount
		}
		r.SampleCount++
	}
	if r.SampleCount == 0 {
		r.Min, r.Max = decimal.Zero, decimal.Zero
	}
	return r
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Verify interface compliance at compile time.
var _ storage.ObservationStore = (*ObservationStore)(nil)
