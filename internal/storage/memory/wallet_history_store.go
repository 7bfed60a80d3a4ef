package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// WalletHistoryStore is an in-memory implementation of storage.WalletHistoryStore.
// Linked amount statistics are read from the observation store.
type WalletHistoryStore struct {
	mu           sync.RWMutex
	addresses    map[string]map[string]bool // wallet_id -> set of addresses
	expected     map[string]*domain.ExpectedTransfer
	observations *ObservationStore
}

// NewWalletHistoryStore creates a new in-memory wallet history store.
// observations may be nil, in which case no linked amounts are reported.
func NewWalletHistoryStore(observations *ObservationStore) *WalletHistoryStore {
	return &WalletHistoryStore{
		addresses:    make(map[string]map[string]bool),
		expected:     make(map[string]*domain.ExpectedTransfer),
		observations: observations,
	}
}

// RegisterAddress records that walletID owns address.
func (s *WalletHistoryStore) RegisterAddress(_ context.Context, walletID, address string) error {
	if walletID == "" || address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.addresses[walletID] == nil {
		s.addresses[walletID] = make(map[string]bool)
	}
	s.addresses[walletID][address] = true
	return nil
}

// AddExpectedTransfer records a counterpart the wallet is waiting for.
func (s *WalletHistoryStore) AddExpectedTransfer(_ context.Context, e *domain.ExpectedTransfer) error {
	if e == nil || e.ID == "" || e.WalletID == "" || !e.Direction.Valid() || e.Amount.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expected[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.expected[e.ID] = copyExpected(e)
	return nil
}

// SettleExpectedTransfer binds an open counterpart to observationID.
func (s *WalletHistoryStore) SettleExpectedTransfer(_ context.Context, id, observationID string, settledAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.expected[id]
	if !exists {
		return storage.ErrNotFound
	}
	if e.SettledBy != nil {
		if *e.SettledBy == observationID {
			return nil
		}
		return fmt.Errorf("%w: expected transfer %s settled by %s", storage.ErrConflict, id, *e.SettledBy)
	}

	by := observationID
	at := settledAt
	e.SettledBy = &by
	e.SettledAt = &at
	return nil
}

// GetHistory returns the wallet's owned addresses, open counterparts and linked amount range.
func (s *WalletHistoryStore) GetHistory(_ context.Context, walletID string) (*domain.WalletHistory, error) {
	s.mu.RLock()
	h := &domain.WalletHistory{WalletID: walletID}
	for addr := range s.addresses[walletID] {
		h.OwnedAddresses = append(h.OwnedAddresses, addr)
	}
	for _, e := range s.expected {
		if e.WalletID == walletID && e.IsOpen() {
			h.Expected = append(h.Expected, copyExpected(e))
		}
	}
	s.mu.RUnlock()

	sort.Strings(h.OwnedAddresses)
	sort.Slice(h.Expected, func(i, j int) bool {
		if h.Expected[i].CreatedAt != h.Expected[j].CreatedAt {
			return h.Expected[i].CreatedAt < h.Expected[j].CreatedAt
		}
		return h.Expected[i].ID < h.Expected[j].ID
	})

	if s.observations != nil {
		h.LinkedAmounts = s.observations.linkedAmountRange(walletID)
	}
	return h, nil
}

func copyExpected(e *domain.ExpectedTransfer) *domain.ExpectedTransfer {
	c := *e
	if e.TokenMint != nil {
		mint := *e.TokenMint
		c.TokenMint = &mint
	}
	if e.SettledBy != nil {
		by := *e.SettledBy
		c.SettledBy = &by
	}
	if e.SettledAt != nil {
		at := *e.SettledAt
		c.SettledAt = &at
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.WalletHistoryStore = (*WalletHistoryStore)(nil)
