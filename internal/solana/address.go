// Package solana holds Solana encoding rules needed to validate transfer observations.
package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// NativeMint is the wrapped SOL mint; observations of it are treated as native transfers.
const NativeMint = "So11111111111111111111111111111111111111112"

// Encoded sizes.
const (
	PublicKeyLength = 32
	SignatureLength = 64
)

// Validation errors.
var (
	ErrInvalidAddress   = errors.New("invalid solana address")
	ErrInvalidSignature = errors.New("invalid solana signature")
	ErrOffCurveAddress  = errors.New("address is off the ed25519 curve")
)

// ValidateAddress checks that addr is base58 encoding of a 32-byte public key.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return nil
}

// ValidateSignature checks that sig is base58 encoding of a 64-byte transaction signature.
func ValidateSignature(sig string) error {
	if sig == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSignature)
	}
	decoded, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(decoded) != SignatureLength {
		return fmt.Errorf("%w: decoded length %d", ErrInvalidSignature, len(decoded))
	}
	return nil
}

// ValidateWalletAddress checks that addr can be a keypair-owned wallet.
// Program derived addresses are off-curve and cannot sign, so they are rejected.
func ValidateWalletAddress(addr string) error {
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	decoded, _ := base58.Decode(addr)
	if !isOnCurve(decoded) {
		return fmt.Errorf("%w: %s", ErrOffCurveAddress, addr)
	}
	return nil
}

// NormalizeMint maps the wrapped SOL mint and empty mints to nil (native).
func NormalizeMint(mint *string) *string {
	if mint == nil || *mint == "" || *mint == NativeMint {
		return nil
	}
	m := *mint
	return &m
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
