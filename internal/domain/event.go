package domain

// PoolCreationEvent represents a newly created liquidity pool discovered
// from on-chain program logs. Immutable once produced.
type PoolCreationEvent struct {
	Mint         string // new token mint address
	Pool         string // pool (AMM account) address
	BaseMint     string // other side of the pair (usually WSOL or a stable)
	ProgramID    string // originating AMM program
	TxSignature  string // creation transaction signature
	Slot         int64  // Solana slot number
	DiscoveredAt int64  // Unix timestamp in milliseconds, taken at decode time
}

// Known AMM program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// Well-known base mints that never count as "new tokens".
const (
	WrappedSOL = "So11111111111111111111111111111111111111112"
	USDC       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDT       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)
