package domain

// TradeIntent captures the configured parameters for one buy attempt.
// One intent exists per (mint, discovery event) pair; values come from
// configuration, never derived at runtime.
type TradeIntent struct {
	Mint             string
	Pool             string
	MaxBuyLamports   uint64 // ceiling for the buy, in lamports
	MinSafetyScore   int    // minimum score required to act
	SlippageBps      int    // slippage tolerance in basis points
	PriorityFee      uint64 // compute-unit price in micro-lamports
	TipLamports      uint64 // MEV tip attached to protected bundles
	ProtectedSubmit  bool   // submit through the bundle relay instead of broadcasting
	DiscoveredAtMs   int64  // discovery timestamp carried for latency measurement
	DiscoverySig     string // transaction signature of the pool creation
	DiscoverySlot    int64
	AssessmentScore  int // score at decision time
	SizedBuyLamports uint64 // actual sized amount after tiering
}

// AttemptStatus is the lifecycle state of a TradeAttempt.
type AttemptStatus string

const (
	AttemptSubmitted AttemptStatus = "SUBMITTED"
	AttemptConfirmed AttemptStatus = "CONFIRMED"
	AttemptFailed    AttemptStatus = "FAILED"
	AttemptTimedOut  AttemptStatus = "TIMED_OUT"
)

// Terminal reports whether the status is final. Terminal attempts are never mutated.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptConfirmed || s == AttemptFailed || s == AttemptTimedOut
}

// TradeAttempt records one execution try for a TradeIntent.
type TradeAttempt struct {
	AttemptID   string // deterministic hash
	Mint        string
	Pool        string
	Intent      TradeIntent
	Status      AttemptStatus
	TxSignature string // submitted transaction signature, empty if never submitted
	LatencyMs   int64  // wall clock from discovery to confirmation (terminal only)
	FailReason  string // populated for FAILED / TIMED_OUT
	CreatedAt   int64  // Unix timestamp in milliseconds
	ResolvedAt  int64  // set when status becomes terminal
}
