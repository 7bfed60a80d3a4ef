package domain

import "github.com/shopspring/decimal"

// Direction of a token movement relative to the candidate wallet.
type Direction string

// Direction constants
const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// TransferObservation is one detected on-chain movement awaiting ownership resolution.
// Corresponds to transfer_observations table in PostgreSQL.
type TransferObservation struct {
	ID              string          // stable opaque identifier
	Signature       string          // Solana transaction signature, natural dedup key
	WalletID        string          // wallet record the candidate address belongs to
	WalletAddress   string          // candidate owning address (base58)
	Amount          decimal.Decimal // non-negative amount in token units
	TokenMint       *string         // nil means native SOL
	Direction       Direction       // incoming | outgoing
	ConfidenceScore float64         // score of the most recent evaluation, [0,1]
	Status          Status          // lifecycle state
	Attempts        int             // automatic evaluation attempts, never decreases
	ObservedAt      int64           // on-chain block time (ms)
	CreatedAt       int64           // record creation timestamp (ms)
	ExpiresAt       int64           // CreatedAt + wallet time window (ms)
	UpdatedAt       int64           // last mutation timestamp (ms)
	Version         int64           // optimistic concurrency token
}

// Clone returns a deep copy of the observation.
func (o *TransferObservation) Clone() *TransferObservation {
	c := *o
	if o.TokenMint != nil {
		mint := *o.TokenMint
		c.TokenMint = &mint
	}
	return &c
}

// IsNative reports whether the observation moves the native asset.
func (o *TransferObservation) IsNative() bool {
	return o.TokenMint == nil || *o.TokenMint == ""
}

// IsExpired reports whether the observation deadline has passed at now (ms).
func (o *TransferObservation) IsExpired(now int64) bool {
	return now > o.ExpiresAt
}

// SameMint reports whether two optional mints denote the same asset.
func SameMint(a, b *string) bool {
	aNative := a == nil || *a == ""
	bNative := b == nil || *b == ""
	if aNative || bNative {
		return aNative == bNative
	}
	return *a == *b
}
