package safety

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

const (
	// metadataProgram is the Metaplex token metadata program.
	metadataProgram = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

	// incinerator is the conventional Solana burn address.
	incinerator = "1nc1nerator11111111111111111111111111111111"

	// Raydium AMM v4 liquidity state layout offsets. The account is a
	// packed struct of u64/u128 counters followed by pubkeys; lpMint sits
	// after baseMint (400) and quoteMint (432).
	raydiumLPMintOffset   = 464
	raydiumMinAccountSize = raydiumLPMintOffset + solana.PubkeyLen
)

// ChainQuerier answers safety queries against a Solana RPC node.
type ChainQuerier struct {
	rpc solana.RPCClient
}

// NewChainQuerier returns a Querier backed by the given RPC client.
func NewChainQuerier(rpc solana.RPCClient) *ChainQuerier {
	return &ChainQuerier{rpc: rpc}
}

var _ Querier = (*ChainQuerier)(nil)

// MintAccount fetches and decodes the SPL mint account.
func (q *ChainQuerier) MintAccount(ctx context.Context, mint string) (*solana.MintAccount, error) {
	info, err := q.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("fetching mint account %s: %w", mint, err)
	}
	if info == nil {
		return nil, nil
	}
	acct, err := solana.DecodeMintAccount(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding mint account %s: %w", mint, err)
	}
	return acct, nil
}

// TokenSupply returns the total supply of the mint.
func (q *ChainQuerier) TokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error) {
	return q.rpc.GetTokenSupply(ctx, mint)
}

// LargestHolders returns the largest token accounts of the mint.
func (q *ChainQuerier) LargestHolders(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	return q.rpc.GetTokenLargestAccounts(ctx, mint)
}

// Metadata derives the Metaplex metadata PDA for the mint and decodes the
// name, symbol and URI strings. Returns nil when no metadata account exists.
func (q *ChainQuerier) Metadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	mintKey, err := solana.DecodePubkey(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %s: %w", mint, err)
	}
	programKey, err := solana.DecodePubkey(metadataProgram)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata program: %w", err)
	}
	pda, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), programKey, mintKey}, metadataProgram)
	if err != nil {
		return nil, fmt.Errorf("deriving metadata PDA for %s: %w", mint, err)
	}
	info, err := q.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", mint, err)
	}
	if info == nil {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata account data: %w", err)
	}
	md, err := decodeMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", mint, err)
	}
	return md, nil
}

// LiquidityLock inspects the pool's liquidity. Pump.fun bonding curves hold
// liquidity in a program-owned account, which cannot be withdrawn before
// migration, so they count as locked. For Raydium pools the LP mint is read
// out of the AMM state; liquidity counts as locked only when the LP supply
// has been burned or the dominant LP holder is the incinerator.
func (q *ChainQuerier) LiquidityLock(ctx context.Context, pool, programID string) (*LockInfo, error) {
	if programID == domain.PumpFun {
		return &LockInfo{Locked: true}, nil
	}

	info, err := q.rpc.GetAccountInfo(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("fetching pool account %s: %w", pool, err)
	}
	if info == nil {
		return &LockInfo{Locked: false}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding pool account data: %w", err)
	}
	if len(raw) < raydiumMinAccountSize {
		return nil, fmt.Errorf("pool account %s too small: %d bytes", pool, len(raw))
	}
	lpMint := solana.EncodePubkey(raw[raydiumLPMintOffset : raydiumLPMintOffset+solana.PubkeyLen])

	supply, err := q.rpc.GetTokenSupply(ctx, lpMint)
	if err != nil {
		return nil, fmt.Errorf("fetching LP supply %s: %w", lpMint, err)
	}
	if supply == nil || supply.Amount == "0" {
		return &LockInfo{Locked: true}, nil
	}

	holders, err := q.rpc.GetTokenLargestAccounts(ctx, lpMint)
	if err != nil {
		return nil, fmt.Errorf("fetching LP holders %s: %w", lpMint, err)
	}
	if len(holders) > 0 && holders[0].Address == incinerator {
		return &LockInfo{Locked: true}, nil
	}
	return &LockInfo{Locked: false}, nil
}

// decodeMetadata parses the head of a Metaplex metadata account:
// key (1) | update authority (32) | mint (32) | name | symbol | uri,
// where each string is a u32 length prefix followed by zero-padded bytes.
func decodeMetadata(raw []byte) (*TokenMetadata, error) {
	offset := 1 + solana.PubkeyLen + solana.PubkeyLen
	name, offset, err := readBorshString(raw, offset)
	if err != nil {
		return nil, fmt.Errorf("reading name: %w", err)
	}
	symbol, offset, err := readBorshString(raw, offset)
	if err != nil {
		return nil, fmt.Errorf("reading symbol: %w", err)
	}
	uri, _, err := readBorshString(raw, offset)
	if err != nil {
		return nil, fmt.Errorf("reading uri: %w", err)
	}
	return &TokenMetadata{
		Name:   strings.TrimRight(name, "\x00"),
		Symbol: strings.TrimRight(symbol, "\x00"),
		URI:    strings.TrimRight(uri, "\x00"),
	}, nil
}

func readBorshString(raw []byte, offset int) (string, int, error) {
	if offset+4 > len(raw) {
		return "", 0, fmt.Errorf("length prefix out of bounds at %d", offset)
	}
	n := int(binary.LittleEndian.Uint32(raw[offset : offset+4]))
	offset += 4
	if n < 0 || offset+n > len(raw) {
		return "", 0, fmt.Errorf("string of %d bytes out of bounds at %d", n, offset)
	}
	return string(raw[offset : offset+n]), offset + n, nil
}
