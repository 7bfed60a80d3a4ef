package domain

import (
	"errors"
	"fmt"
)

// Bounds for WalletLinkSettings.
const (
	MinConfidenceFloor   = 0.5
	MinConfidenceCeiling = 1.0

	// DefaultTimeWindowHours is used for wallets without valid settings.
	DefaultTimeWindowHours = 6
)

// AllowedTimeWindowHours lists the accepted expiration windows.
var AllowedTimeWindowHours = []int{1, 3, 6, 12, 24}

// ErrInvalidSettings is wrapped by every WalletLinkSettings validation failure.
var ErrInvalidSettings = errors.New("invalid wallet link settings")

// WalletLinkSettings is the per-wallet auto-link configuration.
// Corresponds to wallet_link_settings table in PostgreSQL.
type WalletLinkSettings struct {
	WalletID            string  // PRIMARY KEY
	Enabled             bool    // disabled wallets are frozen
	MinConfidenceScore  float64 // [0.5, 1.0]
	TimeWindowHours     int     // one of AllowedTimeWindowHours
	NotificationEnabled bool    // read only by the notifier
	AutoConfirmEnabled  bool    // false escalates confident matches to manual review
	UpdatedAt           int64   // last edit timestamp (ms)
}

// DefaultWalletLinkSettings returns the settings a newly created wallet starts with.
// Auto-linking is opt-in.
func DefaultWalletLinkSettings(walletID string) *WalletLinkSettings {
	return &WalletLinkSettings{
		WalletID:            walletID,
		Enabled:             false,
		MinConfidenceScore:  0.8,
		TimeWindowHours:     DefaultTimeWindowHours,
		NotificationEnabled: true,
		AutoConfirmEnabled:  false,
	}
}

// Validate rejects out-of-range configuration.
func (s *WalletLinkSettings) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil settings", ErrInvalidSettings)
	}
	if s.WalletID == "" {
		return fmt.Errorf("%w: empty wallet id", ErrInvalidSettings)
	}
	if s.MinConfidenceScore < MinConfidenceFloor || s.MinConfidenceScore > MinConfidenceCeiling {
		return fmt.Errorf("%w: min_confidence_score %.4f outside [%.1f, %.1f]",
			ErrInvalidSettings, s.MinConfidenceScore, MinConfidenceFloor, MinConfidenceCeiling)
	}
	if !ValidTimeWindow(s.TimeWindowHours) {
		return fmt.Errorf("%w: time_window_hours %d not in %v",
			ErrInvalidSettings, s.TimeWindowHours, AllowedTimeWindowHours)
	}
	return nil
}

// WindowMs returns the configured time window in milliseconds.
func (s *WalletLinkSettings) WindowMs() int64 {
	return HoursToMs(s.TimeWindowHours)
}

// ValidTimeWindow reports whether hours is an accepted window.
func ValidTimeWindow(hours int) bool {
	for _, h := range AllowedTimeWindowHours {
		if h == hours {
			return true
		}
	}
	return false
}

// HoursToMs converts hours to milliseconds.
func HoursToMs(hours int) int64 {
	return int64(hours) * 3600 * 1000
}
