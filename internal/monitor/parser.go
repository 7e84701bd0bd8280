// Package monitor watches DEX program logs for newly created liquidity
// pools and emits pool-creation events to the pipeline.
package monitor

import (
	"regexp"
	"strings"

	"solana-sniper/internal/domain"
)

// PoolParser decodes pool-creation events from a specific AMM program.
type PoolParser interface {
	// Program returns the AMM program ID this parser understands.
	Program() string

	// Matches reports whether the logs look like a pool creation by this program.
	// A cheap pre-check so the monitor only fetches full transactions when needed.
	Matches(logs []string) bool

	// Parse extracts the pool-creation event. Returns nil if the logs do not
	// decode to a creation after all (malformed entries are never fatal).
	Parse(logs []string, accountKeys []string, txSig string, slot int64, timestampMs int64) *domain.PoolCreationEvent
}

// RaydiumPoolParser detects Raydium AMM v4 pool initializations.
//
// initialize2 transaction account layout (tx-level keys, as observed on
// mainnet pool creations):
//
//	 0: creator (fee payer)
//	 ...
//	 4: AMM ID (pool address)
//	 8: coin mint
//	 9: pc mint
//
// The pair side that is not in the denylist is the new token.
type RaydiumPoolParser struct {
	initPattern *regexp.Regexp
}

// NewRaydiumPoolParser creates a Raydium pool-creation parser.
func NewRaydiumPoolParser() *RaydiumPoolParser {
	return &RaydiumPoolParser{
		initPattern: regexp.MustCompile(`initialize2: InitializeInstruction2`),
	}
}

// Program returns the Raydium AMM v4 program ID.
func (p *RaydiumPoolParser) Program() string { return domain.RaydiumAMMV4 }

// Matches reports whether the logs contain a Raydium initialize2 invocation.
func (p *RaydiumPoolParser) Matches(logs []string) bool {
	invoked := false
	initialized := false
	for _, l := range logs {
		if strings.Contains(l, "Program "+domain.RaydiumAMMV4+" invoke") {
			invoked = true
		}
		if p.initPattern.MatchString(l) {
			initialized = true
		}
	}
	return invoked && initialized
}

// Parse extracts pool and pair mints from the transaction account keys.
func (p *RaydiumPoolParser) Parse(logs []string, accountKeys []string, txSig string, slot int64, timestampMs int64) *domain.PoolCreationEvent {
	if !p.Matches(logs) {
		return nil
	}
	if len(accountKeys) < 10 {
		return nil
	}

	return &domain.PoolCreationEvent{
		Mint:         accountKeys[8],
		BaseMint:     accountKeys[9],
		Pool:         accountKeys[4],
		ProgramID:    domain.RaydiumAMMV4,
		TxSignature:  txSig,
		Slot:         slot,
		DiscoveredAt: timestampMs,
	}
}

// PumpFunPoolParser detects pump.fun token creations. A create spawns the
// bonding curve that acts as the pool; the quote side is always SOL.
//
// Create transaction account layout (tx-level keys):
//
//	0: creator (fee payer)
//	1: mint (signer)
//	3: bonding curve (pool)
type PumpFunPoolParser struct {
	createPattern *regexp.Regexp
}

// NewPumpFunPoolParser creates a pump.fun creation parser.
func NewPumpFunPoolParser() *PumpFunPoolParser {
	return &PumpFunPoolParser{
		createPattern: regexp.MustCompile(`Program log: Instruction: Create$`),
	}
}

// Program returns the pump.fun program ID.
func (p *PumpFunPoolParser) Program() string { return domain.PumpFun }

// Matches reports whether the logs contain a pump.fun Create invocation.
func (p *PumpFunPoolParser) Matches(logs []string) bool {
	invoked := false
	created := false
	for _, l := range logs {
		if strings.Contains(l, "Program "+domain.PumpFun+" invoke") {
			invoked = true
		}
		if p.createPattern.MatchString(l) {
			created = true
		}
	}
	return invoked && created
}

// Parse extracts mint and bonding curve from the transaction account keys.
func (p *PumpFunPoolParser) Parse(logs []string, accountKeys []string, txSig string, slot int64, timestampMs int64) *domain.PoolCreationEvent {
	if !p.Matches(logs) {
		return nil
	}
	if len(accountKeys) < 4 {
		return nil
	}

	return &domain.PoolCreationEvent{
		Mint:         accountKeys[1],
		BaseMint:     domain.WrappedSOL,
		Pool:         accountKeys[3],
		ProgramID:    domain.PumpFun,
		TxSignature:  txSig,
		Slot:         slot,
		DiscoveredAt: timestampMs,
	}
}

// DefaultParsers returns parsers for all supported AMM programs.
func DefaultParsers() []PoolParser {
	return []PoolParser{
		NewRaydiumPoolParser(),
		NewPumpFunPoolParser(),
	}
}
