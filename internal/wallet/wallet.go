// Package wallet implements a local ed25519 keypair signer.
package wallet

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-sniper/internal/solana"
)

// Wallet signs transaction messages with a locally held ed25519 keypair.
type Wallet struct {
	priv   ed25519.PrivateKey
	pubkey string
}

var _ solana.Signer = (*Wallet)(nil)

// NewFromBase58 loads a wallet from a base58-encoded private key. Both the
// 64-byte keypair form used by Solana tooling and a bare 32-byte seed are
// accepted.
func NewFromBase58(encoded string) (*Wallet, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	pubkey := solana.EncodePubkey(pub)
	if !solana.ValidWalletAddress(pubkey) {
		return nil, fmt.Errorf("derived public key %s is not a valid wallet address", pubkey)
	}
	return &Wallet{priv: priv, pubkey: pubkey}, nil
}

// PublicKey returns the wallet address in base58.
func (w *Wallet) PublicKey() string {
	return w.pubkey
}

// Sign signs a serialized transaction message.
func (w *Wallet) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(w.priv, message), nil
}
