package reconcile

import (
	"solana-autolink/internal/domain"
	"solana-autolink/internal/solana"
)

// ValidateObservation checks the structural integrity of an observation.
func ValidateObservation(obs *domain.TransferObservation) error {
	if obs == nil {
		return &ValidationError{Field: "observation", Reason: "nil"}
	}
	invalid := func(field, reason string, err error) error {
		return &ValidationError{ObservationID: obs.ID, Field: field, Reason: reason, Err: err}
	}

	if obs.ID == "" {
		return invalid("id", "empty", nil)
	}
	if obs.WalletID == "" {
		return invalid("wallet_id", "empty", nil)
	}
	if err := solana.ValidateSignature(obs.Signature); err != nil {
		return invalid("signature", "malformed", err)
	}
	if err := solana.ValidateAddress(obs.WalletAddress); err != nil {
		return invalid("wallet_address", "malformed", err)
	}
	if obs.TokenMint != nil && *obs.TokenMint != "" {
		if err := solana.ValidateAddress(*obs.TokenMint); err != nil {
			return invalid("token_mint", "malformed", err)
		}
	}
	if obs.Amount.IsNegative() {
		return invalid("amount", "negative", nil)
	}
	if !obs.Direction.Valid() {
		return invalid("direction", "unknown value "+string(obs.Direction), nil)
	}
	if !obs.Status.Valid() {
		return invalid("status", "unknown value "+string(obs.Status), nil)
	}
	if obs.Attempts < 0 {
		return invalid("attempts", "negative", nil)
	}
	if obs.ConfidenceScore < 0 || obs.ConfidenceScore > 1 {
		return invalid("confidence_score", "outside [0,1]", nil)
	}
	if obs.ExpiresAt < obs.CreatedAt {
		return invalid("expires_at", "before created_at", nil)
	}
	return nil
}
