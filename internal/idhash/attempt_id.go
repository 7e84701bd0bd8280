package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAttemptID computes a deterministic attempt_id using SHA256.
// Formula: SHA256(mint|pool|discovery_signature|slot|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeAttemptID(mint, pool, discoverySig string, slot, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d", mint, pool, discoverySig, slot, createdAt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(mint|pool|buy_signature)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(mint, pool, buySignature string) string {
	data := fmt.Sprintf("%s|%s|%s", mint, pool, buySignature)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
