package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLen is the byte length of a Solana public key.
const PubkeyLen = 32

// DecodePubkey decodes a base58 public key into its 32-byte form.
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(b) != PubkeyLen {
		return nil, fmt.Errorf("pubkey %q: expected %d bytes, got %d", s, PubkeyLen, len(b))
	}
	return b, nil
}

// EncodePubkey encodes a 32-byte public key to base58.
func EncodePubkey(b []byte) string {
	return base58.Encode(b)
}

// IsOnCurve reports whether a 32-byte point lies on the ed25519 curve.
// Wallet addresses are on-curve; program derived addresses are not.
func IsOnCurve(point []byte) bool {
	if len(point) != PubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ValidWalletAddress reports whether s is a well-formed on-curve address.
func ValidWalletAddress(s string) bool {
	b, err := DecodePubkey(s)
	if err != nil {
		return false
	}
	return IsOnCurve(b)
}

// CreateProgramAddress hashes the seeds with the program ID and the PDA
// domain separator. Fails if the result lands on the curve, mirroring the
// on-chain rules.
func CreateProgramAddress(seeds [][]byte, program string) (string, error) {
	programKey, err := DecodePubkey(program)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > PubkeyLen {
			return "", fmt.Errorf("seed too long: %d bytes", len(seed))
		}
		h.Write(seed)
	}
	h.Write(programKey)
	h.Write([]byte("ProgramDerivedAddress"))

	candidate := h.Sum(nil)
	if IsOnCurve(candidate) {
		return "", fmt.Errorf("invalid seeds: address falls on the curve")
	}
	return EncodePubkey(candidate), nil
}

// FindProgramAddress finds the first off-curve address for the seeds,
// walking the bump seed down from 255 the way on-chain programs do.
func FindProgramAddress(seeds [][]byte, program string) (string, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(append(seeds, []byte{byte(bump)}), program)
		if err == nil {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no valid bump seed found")
}
