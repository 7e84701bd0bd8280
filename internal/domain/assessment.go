package domain

// Verdict classifies a token after safety analysis.
type Verdict string

const (
	// VerdictBuy means the token cleared the configured safety threshold.
	VerdictBuy Verdict = "BUY"
	// VerdictRisky means the score landed within 10 points below the threshold.
	VerdictRisky Verdict = "RISKY"
	// VerdictSkip means the token failed analysis or tripped a critical flag.
	VerdictSkip Verdict = "SKIP"
)

// Red-flag tags raised by individual safety checks.
const (
	FlagMintAuthorityActive   = "MINT_AUTHORITY_ACTIVE"
	FlagFreezeAuthorityActive = "FREEZE_AUTHORITY_ACTIVE"
	FlagLiquidityUnlocked     = "LIQUIDITY_UNLOCKED"
	FlagHolderConcentration   = "HOLDER_CONCENTRATION"
	FlagMetadataIncomplete    = "METADATA_INCOMPLETE"
	FlagQueryFailed           = "QUERY_FAILED"
)

// RedFlag is a single finding raised by a safety check.
type RedFlag struct {
	Tag      string // machine-readable tag, one of the Flag* constants
	Reason   string // human-readable explanation
	Critical bool   // critical flags force VerdictSkip regardless of score
}

// SafetyAssessment is the scored result of running the safety battery for a mint.
// Score is a pure function of the on-chain inputs sampled at ComputedAt;
// Verdict is a pure function of Score and the critical flags. Assessments are
// never mutated: after ExpiresAt a fresh one supersedes this entry.
type SafetyAssessment struct {
	Mint       string
	Score      int // 0..100
	Verdict    Verdict
	RedFlags   []RedFlag
	ComputedAt int64 // Unix timestamp in milliseconds
	ExpiresAt  int64 // Unix timestamp in milliseconds
}

// HasCriticalFlag reports whether any red flag is critical.
func (a *SafetyAssessment) HasCriticalFlag() bool {
	for _, f := range a.RedFlags {
		if f.Critical {
			return true
		}
	}
	return false
}

// Expired reports whether the assessment is past its TTL at the given time (ms).
func (a *SafetyAssessment) Expired(nowMs int64) bool {
	return nowMs >= a.ExpiresAt
}
