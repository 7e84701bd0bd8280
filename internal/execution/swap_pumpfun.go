package execution

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

const (
	pumpFunFeeRecipient = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"
	rentSysvar          = "SysvarRent111111111111111111111111111111111"

	// Bonding curve account layout: 8-byte discriminator, then u64 fields.
	curveVirtualTokenOffset = 8
	curveVirtualSolOffset   = 16
	curveMinSize            = 40
)

// pumpFunBuyDiscriminator is the anchor instruction discriminator for "buy".
var pumpFunBuyDiscriminator = []byte{102, 6, 61, 18, 1, 218, 235, 234}

// PumpFunSwapBuilder builds buy instructions against pump.fun bonding curves.
// The pool address on the event is the bonding curve account.
type PumpFunSwapBuilder struct {
	rpc solana.RPCClient

	global         string
	eventAuthority string
}

// NewPumpFunSwapBuilder derives the program PDAs once and returns the builder.
func NewPumpFunSwapBuilder(rpc solana.RPCClient) (*PumpFunSwapBuilder, error) {
	global, err := solana.FindProgramAddress([][]byte{[]byte("global")}, domain.PumpFun)
	if err != nil {
		return nil, fmt.Errorf("derive global: %w", err)
	}
	eventAuthority, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, domain.PumpFun)
	if err != nil {
		return nil, fmt.Errorf("derive event authority: %w", err)
	}
	return &PumpFunSwapBuilder{
		rpc:            rpc,
		global:         global,
		eventAuthority: eventAuthority,
	}, nil
}

var _ SwapBuilder = (*PumpFunSwapBuilder)(nil)

func (b *PumpFunSwapBuilder) Program() string {
	return domain.PumpFun
}

func (b *PumpFunSwapBuilder) BuildBuy(ctx context.Context, ev *domain.PoolCreationEvent, wallet string, lamports uint64, slippageBps int) ([]solana.Instruction, *SwapQuote, error) {
	if lamports == 0 {
		return nil, nil, fmt.Errorf("zero buy amount")
	}

	virtualTok, virtualSol, err := b.curveReserves(ctx, ev.Pool)
	if err != nil {
		return nil, nil, fmt.Errorf("bonding curve reserves: %w", err)
	}

	quote := &SwapQuote{ExpectedOut: constantProductOut(virtualSol, virtualTok, lamports)}
	quote.MinOut = applySlippage(quote.ExpectedOut, slippageBps)
	if quote.MinOut == 0 {
		return nil, nil, fmt.Errorf("quote rounds to zero tokens")
	}

	curveATA, err := solana.AssociatedTokenAddress(ev.Pool, ev.Mint)
	if err != nil {
		return nil, nil, fmt.Errorf("curve token account: %w", err)
	}
	userATA, err := solana.AssociatedTokenAddress(wallet, ev.Mint)
	if err != nil {
		return nil, nil, fmt.Errorf("user token account: %w", err)
	}

	// Data: discriminator, token amount requested, max lamports to spend.
	// The curve refunds the difference when fewer lamports buy the amount.
	data := make([]byte, 0, 24)
	data = append(data, pumpFunBuyDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, quote.MinOut)
	data = binary.LittleEndian.AppendUint64(data, lamports)

	buy := solana.Instruction{
		ProgramID: domain.PumpFun,
		Accounts: []solana.AccountMeta{
			{Pubkey: b.global},
			{Pubkey: pumpFunFeeRecipient, IsWritable: true},
			{Pubkey: ev.Mint},
			{Pubkey: ev.Pool, IsWritable: true},
			{Pubkey: curveATA, IsWritable: true},
			{Pubkey: userATA, IsWritable: true},
			{Pubkey: wallet, IsSigner: true, IsWritable: true},
			{Pubkey: solana.SystemProgram},
			{Pubkey: solana.TokenProgram},
			{Pubkey: rentSysvar},
			{Pubkey: b.eventAuthority},
			{Pubkey: domain.PumpFun},
		},
		Data: data,
	}

	ins := []solana.Instruction{
		createATAIdempotent(wallet, wallet, userATA, ev.Mint),
		buy,
	}
	return ins, quote, nil
}

// curveReserves fetches the bonding curve account and reads the virtual
// reserves used for pricing.
func (b *PumpFunSwapBuilder) curveReserves(ctx context.Context, curve string) (virtualTok, virtualSol uint64, err error) {
	info, err := b.rpc.GetAccountInfo(ctx, curve)
	if err != nil {
		return 0, 0, err
	}
	if info == nil {
		return 0, 0, fmt.Errorf("bonding curve %s not found", curve)
	}
	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return 0, 0, fmt.Errorf("decode account data: %w", err)
	}
	if len(raw) < curveMinSize {
		return 0, 0, fmt.Errorf("bonding curve data too short: %d bytes", len(raw))
	}
	virtualTok = binary.LittleEndian.Uint64(raw[curveVirtualTokenOffset:])
	virtualSol = binary.LittleEndian.Uint64(raw[curveVirtualSolOffset:])
	if virtualTok == 0 || virtualSol == 0 {
		return 0, 0, fmt.Errorf("bonding curve has zero reserves")
	}
	return virtualTok, virtualSol, nil
}
