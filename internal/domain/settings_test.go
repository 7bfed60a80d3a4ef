package domain

import (
	"errors"
	"testing"
)

func TestWalletLinkSettings_Validate(t *testing.T) {
	valid := func() *WalletLinkSettings {
		return &WalletLinkSettings{
			WalletID:           "wallet-1",
			Enabled:            true,
			MinConfidenceScore: 0.8,
			TimeWindowHours:    6,
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *WalletLinkSettings)
		wantErr bool
	}{
		{"valid", func(*WalletLinkSettings) {}, false},
		{"lower bound inclusive", func(s *WalletLinkSettings) { s.MinConfidenceScore = 0.5 }, false},
		{"upper bound inclusive", func(s *WalletLinkSettings) { s.MinConfidenceScore = 1.0 }, false},
		{"below floor", func(s *WalletLinkSettings) { s.MinConfidenceScore = 0.49 }, true},
		{"above ceiling", func(s *WalletLinkSettings) { s.MinConfidenceScore = 1.01 }, true},
		{"window not allowed", func(s *WalletLinkSettings) { s.TimeWindowHours = 2 }, true},
		{"zero window", func(s *WalletLinkSettings) { s.TimeWindowHours = 0 }, true},
		{"empty wallet", func(s *WalletLinkSettings) { s.WalletID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestWalletLinkSettings_WindowMs(t *testing.T) {
	s := &WalletLinkSettings{TimeWindowHours: 6}
	if got := s.WindowMs(); got != 6*3600*1000 {
		t.Errorf("WindowMs() = %d, want %d", got, 6*3600*1000)
	}
}

func TestDefaultWalletLinkSettings_Valid(t *testing.T) {
	s := DefaultWalletLinkSettings("wallet-1")
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings should validate: %v", err)
	}
	if s.Enabled {
		t.Error("auto-link should be opt-in")
	}
}

func TestSameMint(t *testing.T) {
	usdc := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	other := "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	empty := ""

	if !SameMint(nil, nil) {
		t.Error("two native mints should match")
	}
	if !SameMint(nil, &empty) {
		t.Error("empty mint should be treated as native")
	}
	if SameMint(nil, &usdc) {
		t.Error("native should not match a token mint")
	}
	if !SameMint(&usdc, &usdc) {
		t.Error("identical mints should match")
	}
	if SameMint(&usdc, &other) {
		t.Error("different mints should not match")
	}
}
