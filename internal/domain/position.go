package domain

// PositionState is the lifecycle state of a Position.
type PositionState string

const (
	PositionOpen   PositionState = "OPEN"
	PositionClosed PositionState = "CLOSED"
)

// Position is an acquired token holding, opened when a buy confirms.
// At most one Open position may exist per mint at any time.
type Position struct {
	PositionID  string // deterministic hash
	Mint        string
	Pool        string
	SpentSOL    float64 // base currency spent, in SOL
	TokenAmount float64 // tokens received (UI amount)
	EntryPrice  float64 // SOL per token at entry
	State       PositionState
	OpenedAt    int64 // Unix timestamp in milliseconds
	ClosedAt    int64 // set when the position closes
}

// UnrealizedPnL returns the profit or loss in SOL and as a percentage of
// the entry cost, if the whole position were sold at currentPrice.
func (p *Position) UnrealizedPnL(currentPrice float64) (pnlSOL float64, pnlPct float64) {
	if p.State != PositionOpen || p.SpentSOL == 0 {
		return 0, 0
	}
	value := p.TokenAmount * currentPrice
	pnlSOL = value - p.SpentSOL
	pnlPct = pnlSOL / p.SpentSOL * 100
	return pnlSOL, pnlPct
}
