package execution

import (
	"context"
	"math/big"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// SwapQuote is the estimated outcome of a buy at current reserves.
type SwapQuote struct {
	// ExpectedOut is the estimated token amount received, in raw units.
	ExpectedOut uint64
	// MinOut is ExpectedOut reduced by the slippage tolerance, enforced
	// on-chain by the swap instruction.
	MinOut uint64
}

// SwapBuilder produces the venue-specific instructions for buying a token
// with the base currency. Implementations quote current reserves, so they
// take a context for the required account fetches.
type SwapBuilder interface {
	// Program returns the AMM program ID this builder serves.
	Program() string

	// BuildBuy returns the instructions for buying ev.Mint with lamports of
	// the base currency, including idempotent creation of the destination
	// token account, plus the reserve-based quote used for the minimum out.
	BuildBuy(ctx context.Context, ev *domain.PoolCreationEvent, wallet string, lamports uint64, slippageBps int) ([]solana.Instruction, *SwapQuote, error)
}

// createATAIdempotent builds an associated-token-account CreateIdempotent
// instruction. It is a no-op on-chain when the account already exists.
func createATAIdempotent(payer, owner, ata, mint string) solana.Instruction {
	return solana.Instruction{
		ProgramID: solana.AssociatedTokenProgram,
		Accounts: []solana.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsWritable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: solana.SystemProgram},
			{Pubkey: solana.TokenProgram},
		},
		Data: []byte{1}, // CreateIdempotent
	}
}

// applySlippage reduces amount by the tolerance in basis points. Raw token
// amounts can approach the uint64 range, so the scaling runs through big.Int.
func applySlippage(amount uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return amount
	}
	if slippageBps >= 10_000 {
		return 0
	}
	out := new(big.Int).SetUint64(amount)
	out.Mul(out, big.NewInt(int64(10_000-slippageBps)))
	out.Div(out, big.NewInt(10_000))
	return out.Uint64()
}

// constantProductOut quotes an AMM swap: out = outRes * in / (inRes + in),
// with the venue fee already deducted from in by the caller.
func constantProductOut(inRes, outRes, in uint64) uint64 {
	if inRes == 0 || outRes == 0 || in == 0 {
		return 0
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(outRes), new(big.Int).SetUint64(in))
	den := new(big.Int).Add(new(big.Int).SetUint64(inRes), new(big.Int).SetUint64(in))
	return new(big.Int).Div(num, den).Uint64()
}
