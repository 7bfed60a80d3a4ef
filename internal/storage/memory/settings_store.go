package memory

import (
	"context"
	"fmt"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletLinkSettings // keyed by wallet_id
}

// NewSettingsStore creates a new in-memory settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		data: make(map[string]*domain.WalletLinkSettings),
	}
}

// Get returns the settings of a wallet. Returns ErrNotFound if not configured.
func (s *SettingsStore) Get(_ context.Context, walletID string) (*domain.WalletLinkSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, exists := s.data[walletID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	settingsCopy := *settings
	return &settingsCopy, nil
}

// Upsert creates or replaces settings after validation.
func (s *SettingsStore) Upsert(_ context.Context, settings *domain.WalletLinkSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settingsCopy := *settings
	s.data[settings.WalletID] = &settingsCopy
	return nil
}

// Verify interface compliance at compile time.
var _ storage.SettingsStore = (*SettingsStore)(nil)
