// Package testutil provides deterministic Solana fixtures for tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// seed derives a 32-byte ed25519 seed from a label and index.
func seed(label string, n int) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", label, n)))
	return sum[:]
}

// WalletAddress returns the base58 public key of the n-th test keypair.
// Addresses are on-curve and stable across runs.
func WalletAddress(n int) string {
	key := ed25519.NewKeyFromSeed(seed("wallet", n))
	return base58.Encode(key.Public().(ed25519.PublicKey))
}

// Mint returns a stable base58 token mint address.
func Mint(n int) string {
	key := ed25519.NewKeyFromSeed(seed("mint", n))
	return base58.Encode(key.Public().(ed25519.PublicKey))
}

// Signature returns a stable base58 64-byte transaction signature.
func Signature(n int) string {
	key := ed25519.NewKeyFromSeed(seed("signer", 0))
	sig := ed25519.Sign(key, []byte(fmt.Sprintf("tx-%d", n)))
	return base58.Encode(sig)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
