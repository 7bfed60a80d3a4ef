package api

import (
	"github.com/shopspring/decimal"

	"solana-autolink/internal/domain"
)

// ObservationRequest is the body of POST /v1/observations.
type ObservationRequest struct {
	ID            string          `json:"id,omitempty"`
	Signature     string          `json:"signature"`
	WalletID      string          `json:"wallet_id"`
	WalletAddress string          `json:"wallet_address"`
	Amount        decimal.Decimal `json:"amount"`
	TokenMint     *string         `json:"token_mint,omitempty"`
	Direction     string          `json:"direction"`
	ObservedAt    int64           `json:"observed_at,omitempty"`
	CreatedAt     int64           `json:"created_at,omitempty"`
}

func (r *ObservationRequest) toDomain() *domain.TransferObservation {
	return &domain.TransferObservation{
		ID:            r.ID,
		Signature:     r.Signature,
		WalletID:      r.WalletID,
		WalletAddress: r.WalletAddress,
		Amount:        r.Amount,
		TokenMint:     r.TokenMint,
		Direction:     domain.Direction(r.Direction),
		ObservedAt:    r.ObservedAt,
		CreatedAt:     r.CreatedAt,
	}
}

// ObservationResponse is the wire form of a TransferObservation.
type ObservationResponse struct {
	ID              string          `json:"id"`
	Signature       string          `json:"signature"`
	WalletID        string          `json:"wallet_id"`
	WalletAddress   string          `json:"wallet_address"`
	Amount          decimal.Decimal `json:"amount"`
	TokenMint       *string         `json:"token_mint"`
	Direction       string          `json:"direction"`
	ConfidenceScore float64         `json:"confidence_score"`
	Status          string          `json:"status"`
	Attempts        int             `json:"attempts"`
	ObservedAt      int64           `json:"observed_at"`
	CreatedAt       int64           `json:"created_at"`
	ExpiresAt       int64           `json:"expires_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

func newObservationResponse(o *domain.TransferObservation) ObservationResponse {
	return ObservationResponse{
		ID:              o.ID,
		Signature:       o.Signature,
		WalletID:        o.WalletID,
		WalletAddress:   o.WalletAddress,
		Amount:          o.Amount,
		TokenMint:       o.TokenMint,
		Direction:       string(o.Direction),
		ConfidenceScore: o.ConfidenceScore,
		Status:          string(o.Status),
		Attempts:        o.Attempts,
		ObservedAt:      o.ObservedAt,
		CreatedAt:       o.CreatedAt,
		ExpiresAt:       o.ExpiresAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// SettingsBody is the wire form of WalletLinkSettings.
type SettingsBody struct {
	Enabled             bool    `json:"enabled"`
	MinConfidenceScore  float64 `json:"min_confidence_score"`
	TimeWindowHours     int     `json:"time_window_hours"`
	NotificationEnabled bool    `json:"notification_enabled"`
	AutoConfirmEnabled  bool    `json:"auto_confirm_enabled"`
	UpdatedAt           int64   `json:"updated_at,omitempty"`
}

func newSettingsBody(s *domain.WalletLinkSettings) SettingsBody {
	return SettingsBody{
		Enabled:             s.Enabled,
		MinConfidenceScore:  s.MinConfidenceScore,
		TimeWindowHours:     s.TimeWindowHours,
		NotificationEnabled: s.NotificationEnabled,
		AutoConfirmEnabled:  s.AutoConfirmEnabled,
		UpdatedAt:           s.UpdatedAt,
	}
}

// ActorRequest is the body of the manual link and ignore endpoints.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// ProcessRequest is the optional body of POST /v1/process.
type ProcessRequest struct {
	WalletIDs []string `json:"wallet_ids"`
}

// AddressRequest is the body of POST /v1/wallets/{walletID}/addresses.
type AddressRequest struct {
	Address string `json:"address"`
}

// ExpectedTransferRequest is the body of POST /v1/wallets/{walletID}/expected-transfers.
type ExpectedTransferRequest struct {
	ID        string          `json:"id,omitempty"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	TokenMint *string         `json:"token_mint,omitempty"`
}

// TransitionResponse is the wire form of a TransitionEvent.
type TransitionResponse struct {
	EventID         string  `json:"event_id"`
	OldStatus       string  `json:"old_status"`
	NewStatus       string  `json:"new_status"`
	ConfidenceScore float64 `json:"confidence_score"`
	Trigger         string  `json:"trigger"`
	Actor           string  `json:"actor"`
	OccurredAt      int64   `json:"occurred_at"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
