package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-autolink/internal/domain"
)

// ComputeObservationID computes a deterministic observation id using SHA256.
// Formula: SHA256(signature|wallet_address|direction)
// Returns hex-encoded hash (64 characters).
func ComputeObservationID(signature, walletAddress string, direction domain.Direction) string {
	data := fmt.Sprintf("%s|%s|%s", signature, walletAddress, string(direction))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
