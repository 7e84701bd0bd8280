package execution

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// raydiumAuthority is the fixed AMM authority PDA of the v4 program.
const raydiumAuthority = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"

// raydiumSwapFeeBps is the v4 pool fee, 25 bps charged on the input side.
const raydiumSwapFeeBps = 25

// Raydium AMM v4 pool state offsets.
const (
	raydiumBaseVaultOffset     = 336
	raydiumQuoteVaultOffset    = 368
	raydiumBaseMintOffset      = 400
	raydiumQuoteMintOffset     = 432
	raydiumOpenOrdersOffset    = 496
	raydiumMarketIDOffset      = 528
	raydiumMarketProgramOffset = 560
	raydiumTargetOrdersOffset  = 592
	raydiumPoolMinSize         = raydiumTargetOrdersOffset + 32
)

// Serum market v3 state offsets (5-byte padding plus account flags precede).
const (
	serumOwnAddressOffset  = 13
	serumVaultNonceOffset  = 45
	serumBaseVaultOffset   = 117
	serumQuoteVaultOffset  = 165
	serumEventQueueOffset  = 253
	serumBidsOffset        = 285
	serumAsksOffset        = 317
	serumMarketMinSize     = serumAsksOffset + 32
)

// raydiumPool is the subset of the v4 pool state the builder needs.
type raydiumPool struct {
	baseVault     string
	quoteVault    string
	baseMint      string
	quoteMint     string
	openOrders    string
	targetOrders  string
	marketID      string
	marketProgram string
}

// serumMarket is the subset of the market state the swap accounts reference.
type serumMarket struct {
	baseVault   string
	quoteVault  string
	eventQueue  string
	bids        string
	asks        string
	vaultSigner string
}

// RaydiumSwapBuilder builds swapBaseIn buys against Raydium AMM v4 pools.
// New-pool snipes pay with wrapped SOL, so the builder wraps the buy amount
// into the wallet's WSOL account as part of the same transaction.
type RaydiumSwapBuilder struct {
	rpc solana.RPCClient
}

func NewRaydiumSwapBuilder(rpc solana.RPCClient) *RaydiumSwapBuilder {
	return &RaydiumSwapBuilder{rpc: rpc}
}

var _ SwapBuilder = (*RaydiumSwapBuilder)(nil)

func (b *RaydiumSwapBuilder) Program() string {
	return domain.RaydiumAMMV4
}

func (b *RaydiumSwapBuilder) BuildBuy(ctx context.Context, ev *domain.PoolCreationEvent, wallet string, lamports uint64, slippageBps int) ([]solana.Instruction, *SwapQuote, error) {
	if lamports == 0 {
		return nil, nil, fmt.Errorf("zero buy amount")
	}

	pool, err := b.fetchPool(ctx, ev.Pool)
	if err != nil {
		return nil, nil, fmt.Errorf("pool state: %w", err)
	}

	// The new token sits on one side of the pair; the buy spends the other.
	var inVault, outVault string
	switch ev.Mint {
	case pool.baseMint:
		inVault, outVault = pool.quoteVault, pool.baseVault
	case pool.quoteMint:
		inVault, outVault = pool.baseVault, pool.quoteVault
	default:
		return nil, nil, fmt.Errorf("mint %s not in pool %s", ev.Mint, ev.Pool)
	}

	inRes, err := b.vaultBalance(ctx, inVault)
	if err != nil {
		return nil, nil, fmt.Errorf("input vault balance: %w", err)
	}
	outRes, err := b.vaultBalance(ctx, outVault)
	if err != nil {
		return nil, nil, fmt.Errorf("output vault balance: %w", err)
	}

	effIn := applySlippage(lamports, raydiumSwapFeeBps)
	quote := &SwapQuote{ExpectedOut: constantProductOut(inRes, outRes, effIn)}
	quote.MinOut = applySlippage(quote.ExpectedOut, slippageBps)
	if quote.MinOut == 0 {
		return nil, nil, fmt.Errorf("quote rounds to zero tokens")
	}

	market, err := b.fetchMarket(ctx, pool.marketID, pool.marketProgram)
	if err != nil {
		return nil, nil, fmt.Errorf("market state: %w", err)
	}

	wsolATA, err := solana.AssociatedTokenAddress(wallet, domain.WrappedSOL)
	if err != nil {
		return nil, nil, fmt.Errorf("wsol token account: %w", err)
	}
	destATA, err := solana.AssociatedTokenAddress(wallet, ev.Mint)
	if err != nil {
		return nil, nil, fmt.Errorf("destination token account: %w", err)
	}

	// swapBaseIn: tag 9, amount in, minimum amount out.
	data := make([]byte, 0, 17)
	data = append(data, 9)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, quote.MinOut)

	swap := solana.Instruction{
		ProgramID: domain.RaydiumAMMV4,
		Accounts: []solana.AccountMeta{
			{Pubkey: solana.TokenProgram},
			{Pubkey: ev.Pool, IsWritable: true},
			{Pubkey: raydiumAuthority},
			{Pubkey: pool.openOrders, IsWritable: true},
			{Pubkey: pool.targetOrders, IsWritable: true},
			{Pubkey: pool.baseVault, IsWritable: true},
			{Pubkey: pool.quoteVault, IsWritable: true},
			{Pubkey: pool.marketProgram},
			{Pubkey: pool.marketID, IsWritable: true},
			{Pubkey: market.bids, IsWritable: true},
			{Pubkey: market.asks, IsWritable: true},
			{Pubkey: market.eventQueue, IsWritable: true},
			{Pubkey: market.baseVault, IsWritable: true},
			{Pubkey: market.quoteVault, IsWritable: true},
			{Pubkey: market.vaultSigner},
			{Pubkey: wsolATA, IsWritable: true},
			{Pubkey: destATA, IsWritable: true},
			{Pubkey: wallet, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}

	ins := []solana.Instruction{
		createATAIdempotent(wallet, wallet, wsolATA, domain.WrappedSOL),
		solana.SystemTransfer(wallet, wsolATA, lamports),
		syncNative(wsolATA),
		createATAIdempotent(wallet, wallet, destATA, ev.Mint),
		swap,
	}
	return ins, quote, nil
}

func (b *RaydiumSwapBuilder) fetchPool(ctx context.Context, pool string) (*raydiumPool, error) {
	raw, err := b.accountData(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(raw) < raydiumPoolMinSize {
		return nil, fmt.Errorf("pool data too short: %d bytes", len(raw))
	}
	return &raydiumPool{
		baseVault:     pubkeyAt(raw, raydiumBaseVaultOffset),
		quoteVault:    pubkeyAt(raw, raydiumQuoteVaultOffset),
		baseMint:      pubkeyAt(raw, raydiumBaseMintOffset),
		quoteMint:     pubkeyAt(raw, raydiumQuoteMintOffset),
		openOrders:    pubkeyAt(raw, raydiumOpenOrdersOffset),
		targetOrders:  pubkeyAt(raw, raydiumTargetOrdersOffset),
		marketID:      pubkeyAt(raw, raydiumMarketIDOffset),
		marketProgram: pubkeyAt(raw, raydiumMarketProgramOffset),
	}, nil
}

func (b *RaydiumSwapBuilder) fetchMarket(ctx context.Context, marketID, marketProgram string) (*serumMarket, error) {
	raw, err := b.accountData(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if len(raw) < serumMarketMinSize {
		return nil, fmt.Errorf("market data too short: %d bytes", len(raw))
	}
	if got := pubkeyAt(raw, serumOwnAddressOffset); got != marketID {
		return nil, fmt.Errorf("market own address mismatch: %s", got)
	}
	nonce := binary.LittleEndian.Uint64(raw[serumVaultNonceOffset:])
	marketKey, err := solana.DecodePubkey(marketID)
	if err != nil {
		return nil, err
	}
	vaultSigner, err := solana.CreateProgramAddress(
		[][]byte{marketKey, binary.LittleEndian.AppendUint64(nil, nonce)}, marketProgram)
	if err != nil {
		return nil, fmt.Errorf("derive vault signer: %w", err)
	}
	return &serumMarket{
		baseVault:   pubkeyAt(raw, serumBaseVaultOffset),
		quoteVault:  pubkeyAt(raw, serumQuoteVaultOffset),
		eventQueue:  pubkeyAt(raw, serumEventQueueOffset),
		bids:        pubkeyAt(raw, serumBidsOffset),
		asks:        pubkeyAt(raw, serumAsksOffset),
		vaultSigner: vaultSigner,
	}, nil
}

func (b *RaydiumSwapBuilder) accountData(ctx context.Context, pubkey string) ([]byte, error) {
	info, err := b.rpc.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("account %s not found", pubkey)
	}
	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

func (b *RaydiumSwapBuilder) vaultBalance(ctx context.Context, vault string) (uint64, error) {
	info, err := b.rpc.GetAccountInfo(ctx, vault)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, fmt.Errorf("vault %s not found", vault)
	}
	return solana.DecodeTokenAccountAmount(info.Data)
}

func pubkeyAt(raw []byte, offset int) string {
	return solana.EncodePubkey(raw[offset : offset+solana.PubkeyLen])
}

// syncNative updates a wrapped SOL account's token balance to match its
// lamports after a transfer into it.
func syncNative(account string) solana.Instruction {
	return solana.Instruction{
		ProgramID: solana.TokenProgram,
		Accounts:  []solana.AccountMeta{{Pubkey: account, IsWritable: true}},
		Data:      []byte{17},
	}
}
