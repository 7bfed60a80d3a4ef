package domain

import "github.com/shopspring/decimal"

// ExpectedTransfer is a counterpart the wallet is waiting for, e.g. a withdrawal
// initiated from the app that has not been observed on-chain yet.
// Corresponds to expected_transfers table in PostgreSQL.
type ExpectedTransfer struct {
	ID        string          // PRIMARY KEY
	WalletID  string          // owning wallet
	Direction Direction       // incoming | outgoing
	Amount    decimal.Decimal // expected amount
	TokenMint *string         // nil means native SOL
	CreatedAt int64           // ms
	SettledBy *string         // observation that matched it (nullable)
	SettledAt *int64          // ms (nullable)
}

// IsOpen reports whether the counterpart can still be matched.
func (e *ExpectedTransfer) IsOpen() bool {
	return e.SettledBy == nil
}

// AmountRange summarizes amounts of previously linked observations.
type AmountRange struct {
	Min         decimal.Decimal
	Max         decimal.Decimal
	SampleCount int
}

// WalletHistory is the scorer's view of a wallet's recent activity.
type WalletHistory struct {
	WalletID       string
	OwnedAddresses []string
	Expected       []*ExpectedTransfer // open counterparts only
	LinkedAmounts  AmountRange
}

// Owns reports whether address exactly matches one of the wallet's addresses.
func (h *WalletHistory) Owns(address string) bool {
	if h == nil {
		return false
	}
	for _, a := range h.OwnedAddresses {
		if a == address {
			return true
		}
	}
	return false
}
