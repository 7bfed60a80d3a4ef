package storage

import (
	"fmt"

	"solana-autolink/internal/domain"
)

// CheckReplace validates that next may replace current in a conditional save.
// Identity fields are immutable, terminal records are frozen, statuses only
// move forward and attempts never decrease.
func CheckReplace(current, next *domain.TransferObservation) error {
	if current.Status.IsTerminal() {
		return fmt.Errorf("%w: observation %s is %s", ErrInvalidInput, current.ID, current.Status)
	}
	if next.Signature != current.Signature || next.WalletID != current.WalletID ||
		next.WalletAddress != current.WalletAddress || next.Direction != current.Direction {
		return fmt.Errorf("%w: identity of observation %s changed", ErrInvalidInput, current.ID)
	}
	if next.Attempts < current.Attempts {
		return fmt.Errorf("%w: attempts decreased from %d to %d", ErrInvalidInput, current.Attempts, next.Attempts)
	}
	if !domain.IsForward(current.Status, next.Status) {
		return fmt.Errorf("%w: status %s -> %s", ErrInvalidInput, current.Status, next.Status)
	}
	return nil
}
