// Package safety scores newly listed tokens for rug-pull risk.
package safety

import (
	"context"

	"solana-sniper/internal/solana"
)

// LockInfo describes the liquidity-lock state of a pool.
type LockInfo struct {
	Locked     bool
	UnlockTime int64 // Unix seconds; 0 means indefinite (burned or program-owned)
}

// TokenMetadata is the decoded Metaplex metadata of a mint.
type TokenMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// Complete reports whether all metadata fields are populated.
func (m *TokenMetadata) Complete() bool {
	return m != nil && m.Name != "" && m.Symbol != "" && m.URI != ""
}

// Querier provides the on-chain point queries the safety battery needs.
// Every call honors the context deadline; a failed query makes the affected
// check contribute its most conservative sub-score.
type Querier interface {
	// MintAccount returns the decoded SPL mint account. Nil if not found.
	MintAccount(ctx context.Context, mint string) (*solana.MintAccount, error)

	// TokenSupply returns the total supply of the mint.
	TokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error)

	// LargestHolders returns the largest token accounts of the mint.
	LargestHolders(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error)

	// Metadata returns the Metaplex metadata of the mint. Nil if none exists.
	Metadata(ctx context.Context, mint string) (*TokenMetadata, error)

	// LiquidityLock returns the lock state of the pool's liquidity.
	LiquidityLock(ctx context.Context, pool, programID string) (*LockInfo, error)
}
