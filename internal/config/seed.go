package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// Seed is a fixture of wallets used to pre-load a store, typically the
// memory backend in development.
type Seed struct {
	Wallets []SeedWallet `yaml:"wallets"`
}

// SeedWallet describes one wallet and its link configuration.
type SeedWallet struct {
	ID                  string         `yaml:"id"`
	Addresses           []string       `yaml:"addresses"`
	Enabled             bool           `yaml:"enabled"`
	MinConfidenceScore  float64        `yaml:"min_confidence_score"`
	TimeWindowHours     int            `yaml:"time_window_hours"`
	NotificationEnabled *bool          `yaml:"notification_enabled"` // default true
	AutoConfirmEnabled  bool           `yaml:"auto_confirm_enabled"`
	ExpectedTransfers   []SeedExpected `yaml:"expected_transfers"`
}

// SeedExpected is an expected transfer of a seeded wallet.
type SeedExpected struct {
	ID        string  `yaml:"id"`
	Direction string  `yaml:"direction"`
	Amount    string  `yaml:"amount"`
	TokenMint *string `yaml:"token_mint"`
}

// SeedTarget receives seeded data.
type SeedTarget interface {
	PutSettings(ctx context.Context, s *domain.WalletLinkSettings) (*domain.WalletLinkSettings, error)
	RegisterAddress(ctx context.Context, walletID, address string) error
	AddExpectedTransfer(ctx context.Context, e *domain.ExpectedTransfer) (*domain.ExpectedTransfer, error)
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Settings returns the wallet's link settings.
func (w *SeedWallet) Settings() *domain.WalletLinkSettings {
	s := domain.DefaultWalletLinkSettings(w.ID)
	s.Enabled = w.Enabled
	if w.MinConfidenceScore != 0 {
		s.MinConfidenceScore = w.MinConfidenceScore
	}
	if w.TimeWindowHours != 0 {
		s.TimeWindowHours = w.TimeWindowHours
	}
	if w.NotificationEnabled != nil {
		s.NotificationEnabled = *w.NotificationEnabled
	}
	s.AutoConfirmEnabled = w.AutoConfirmEnabled
	return s
}

// Validate checks wallet settings with the same rules the engine applies.
func (s *Seed) Validate() error {
	seen := make(map[string]bool, len(s.Wallets))
	var errs []error
	for i := range s.Wallets {
		w := &s.Wallets[i]
		if seen[w.ID] {
			errs = append(errs, fmt.Errorf("wallet %q: duplicate id", w.ID))
		}
		seen[w.ID] = true
		if err := w.Settings().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("wallet %q: %w", w.ID, err))
		}
		for _, e := range w.ExpectedTransfers {
			if !domain.Direction(e.Direction).Valid() {
				errs = append(errs, fmt.Errorf("wallet %q: expected transfer %q: unknown direction %q", w.ID, e.ID, e.Direction))
			}
			if _, err := decimal.NewFromString(e.Amount); err != nil {
				errs = append(errs, fmt.Errorf("wallet %q: expected transfer %q: amount: %w", w.ID, e.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply writes the seed into target. Expected transfers that already exist
// are left as they are, so applying a seed twice is harmless.
func (s *Seed) Apply(ctx context.Context, target SeedTarget) error {
	for i := range s.Wallets {
		w := &s.Wallets[i]
		if _, err := target.PutSettings(ctx, w.Settings()); err != nil {
			return fmt.Errorf("seed wallet %q settings: %w", w.ID, err)
		}
		for _, addr := range w.Addresses {
			if err := target.RegisterAddress(ctx, w.ID, addr); err != nil {
				return fmt.Errorf("seed wallet %q address %s: %w", w.ID, addr, err)
			}
		}
		for _, e := range w.ExpectedTransfers {
			amount, _ := decimal.NewFromString(e.Amount)
			_, err := target.AddExpectedTransfer(ctx, &domain.ExpectedTransfer{
				ID:        e.ID,
				WalletID:  w.ID,
				Direction: domain.Direction(e.Direction),
				Amount:    amount,
				TokenMint: e.TokenMint,
			})
			if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("seed wallet %q expected transfer %q: %w", w.ID, e.ID, err)
			}
		}
	}
	return nil
}
