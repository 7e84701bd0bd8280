package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/ledger"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/relay"
	"solana-sniper/internal/solana"
)

// jitoTipAccount receives the tip transfer attached to protected bundles.
const jitoTipAccount = "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"

const (
	DefaultSubmitRetries    = 3
	DefaultSubmitBackoff    = 250 * time.Millisecond
	DefaultConfirmTimeout   = 30 * time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultComputeUnitLimit = 120_000
)

var (
	// ErrScoreTooLow means the assessment did not clear the intent's bar.
	ErrScoreTooLow = errors.New("safety score below threshold")
	// ErrAlreadyInFlight means a buy for the same mint is in progress.
	ErrAlreadyInFlight = errors.New("buy already in flight for mint")
	// ErrPositionExists means the mint already has an open position.
	ErrPositionExists = errors.New("open position exists for mint")
	// ErrPaused means the engine refused the buy while paused.
	ErrPaused = errors.New("buying is paused")
)

// WalletSigner signs transactions and exposes the fee payer address.
type WalletSigner interface {
	solana.Signer
	PublicKey() string
}

// Options configures an Engine. RPC, Wallet, Ledger, Direct and at least one
// builder are required.
type Options struct {
	RPC      solana.RPCClient
	Wallet   WalletSigner
	Builders []SwapBuilder
	Direct   relay.Submitter
	Bundle   relay.Submitter // required only when intents request protected submit
	Ledger   *ledger.Ledger

	SubmitRetries    int
	SubmitBackoff    time.Duration
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	ComputeUnitLimit uint32

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// Engine turns a discovery event plus a passing assessment into a signed,
// submitted and confirmed buy, recording every attempt in the ledger.
type Engine struct {
	rpc      solana.RPCClient
	wallet   WalletSigner
	builders map[string]SwapBuilder
	direct   relay.Submitter
	bundle   relay.Submitter
	ledger   *ledger.Ledger

	retries        int
	backoff        time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
	cuLimit        uint32

	logger  *log.Logger
	metrics *observability.Metrics

	inFlight sync.Map // mint -> struct{}
	paused   atomic.Bool

	now func() time.Time
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.RPC == nil {
		return nil, errors.New("rpc client is required")
	}
	if opts.Wallet == nil {
		return nil, errors.New("wallet is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.Direct == nil {
		return nil, errors.New("direct submitter is required")
	}
	if len(opts.Builders) == 0 {
		return nil, errors.New("at least one swap builder is required")
	}

	builders := make(map[string]SwapBuilder, len(opts.Builders))
	for _, b := range opts.Builders {
		builders[b.Program()] = b
	}

	e := &Engine{
		rpc:            opts.RPC,
		wallet:         opts.Wallet,
		builders:       builders,
		direct:         opts.Direct,
		bundle:         opts.Bundle,
		ledger:         opts.Ledger,
		retries:        opts.SubmitRetries,
		backoff:        opts.SubmitBackoff,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		cuLimit:        opts.ComputeUnitLimit,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            time.Now,
	}
	if e.retries <= 0 {
		e.retries = DefaultSubmitRetries
	}
	if e.backoff <= 0 {
		e.backoff = DefaultSubmitBackoff
	}
	if e.confirmTimeout <= 0 {
		e.confirmTimeout = DefaultConfirmTimeout
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.cuLimit == 0 {
		e.cuLimit = DefaultComputeUnitLimit
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	return e, nil
}

// Paused reports whether the engine is refusing new buys.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Resume lifts a pause set after resource exhaustion.
func (e *Engine) Resume() {
	if e.paused.CompareAndSwap(true, false) {
		e.logger.Printf("[execution] buying resumed")
		if e.metrics != nil {
			e.metrics.BuyingPaused.Set(0)
		}
	}
}

func (e *Engine) pause(reason string) {
	if e.paused.CompareAndSwap(false, true) {
		e.logger.Printf("[execution] buying paused: %s", reason)
		if e.metrics != nil {
			e.metrics.BuyingPaused.Set(1)
		}
	}
}

// ExecuteBuy runs the full buy flow for a discovered pool: gate on the
// assessment, size the position, build and sign the swap, submit with
// retries, then poll until the transaction confirms or times out. The
// returned attempt carries the terminal outcome; an error means the buy was
// rejected before anything was signed.
func (e *Engine) ExecuteBuy(ctx context.Context, ev *domain.PoolCreationEvent, assessment *domain.SafetyAssessment, intent domain.TradeIntent) (*domain.TradeAttempt, error) {
	if e.Paused() {
		return nil, ErrPaused
	}
	if assessment.Verdict == domain.VerdictSkip {
		return nil, fmt.Errorf("%w: verdict %s for %s", ErrScoreTooLow, assessment.Verdict, ev.Mint)
	}
	if assessment.Score < intent.MinSafetyScore {
		return nil, fmt.Errorf("%w: %d < %d for %s", ErrScoreTooLow, assessment.Score, intent.MinSafetyScore, ev.Mint)
	}

	sized := SizeBuy(assessment.Score, intent.MaxBuyLamports)
	if sized == 0 {
		return nil, fmt.Errorf("%w: score %d sizes to zero", ErrScoreTooLow, assessment.Score)
	}

	builder, ok := e.builders[ev.ProgramID]
	if !ok {
		return nil, fmt.Errorf("no swap builder for program %s", ev.ProgramID)
	}

	if _, loaded := e.inFlight.LoadOrStore(ev.Mint, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInFlight, ev.Mint)
	}
	defer e.inFlight.Delete(ev.Mint)

	open, err := e.ledger.HasOpenPosition(ctx, ev.Mint)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, ev.Mint)
	}

	intent.Mint = ev.Mint
	intent.Pool = ev.Pool
	intent.AssessmentScore = assessment.Score
	intent.SizedBuyLamports = sized

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		e.maybePause(err)
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}

	ins, quote, err := builder.BuildBuy(ctx, ev, e.wallet.PublicKey(), sized, intent.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}

	txb := solana.NewTxBuilder(e.wallet.PublicKey()).
		Add(solana.ComputeUnitLimit(e.cuLimit), solana.ComputeUnitPrice(intent.PriorityFee)).
		Add(ins...)
	tx, err := txb.Sign(ctx, e.wallet, blockhash.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("sign swap: %w", err)
	}

	txs := []*solana.SignedTx{tx}
	submitter := e.direct
	if intent.ProtectedSubmit {
		if e.bundle == nil {
			return nil, errors.New("protected submit requested without a bundle relay")
		}
		submitter = e.bundle
		if intent.TipLamports > 0 {
			tipTx, err := solana.NewTxBuilder(e.wallet.PublicKey()).
				Add(solana.SystemTransfer(e.wallet.PublicKey(), jitoTipAccount, intent.TipLamports)).
				Sign(ctx, e.wallet, blockhash.Blockhash)
			if err != nil {
				return nil, fmt.Errorf("sign tip: %w", err)
			}
			txs = append(txs, tipTx)
		}
	}

	createdAt := e.now().UnixMilli()
	attempt := &domain.TradeAttempt{
		AttemptID:   idhash.ComputeAttemptID(ev.Mint, ev.Pool, intent.DiscoverySig, intent.DiscoverySlot, createdAt),
		Mint:        ev.Mint,
		Pool:        ev.Pool,
		Intent:      intent,
		Status:      domain.AttemptSubmitted,
		TxSignature: tx.Signature,
		CreatedAt:   createdAt,
	}
	if err := e.ledger.RecordAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	if err := e.submit(ctx, submitter, txs); err != nil {
		e.maybePause(err)
		return e.resolve(ctx, attempt, domain.AttemptFailed, fmt.Sprintf("submit: %v", err))
	}
	e.logger.Printf("[execution] submitted buy mint=%s sig=%s via=%s lamports=%d",
		ev.Mint, tx.Signature, submitter.Name(), sized)

	return e.awaitConfirmation(ctx, attempt, quote, sized)
}

// submit pushes the transactions through the submitter, retrying transient
// failures with doubling backoff.
func (e *Engine) submit(ctx context.Context, submitter relay.Submitter, txs []*solana.SignedTx) error {
	var lastErr error
	delay := e.backoff
	for i := 0; i < e.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if _, err := submitter.Submit(ctx, txs...); err != nil {
			lastErr = err
			e.logger.Printf("[execution] submit attempt %d/%d failed: %v", i+1, e.retries, err)
			continue
		}
		return nil
	}
	return lastErr
}

// awaitConfirmation polls signature status until the transaction lands,
// fails on-chain, or the confirmation window closes.
func (e *Engine) awaitConfirmation(ctx context.Context, attempt *domain.TradeAttempt, quote *SwapQuote, sized uint64) (*domain.TradeAttempt, error) {
	deadline := e.now().Add(e.confirmTimeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Persist the outcome even though the caller's context is gone.
			return e.resolve(context.WithoutCancel(ctx), attempt, domain.AttemptTimedOut,
				"canceled while awaiting confirmation")
		case <-ticker.C:
		}

		statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{attempt.TxSignature})
		if err != nil {
			e.logger.Printf("[execution] signature status poll failed: %v", err)
		} else if len(statuses) == 1 {
			st := statuses[0]
			if st != nil && st.Err != nil {
				return e.resolve(ctx, attempt, domain.AttemptFailed, fmt.Sprintf("transaction error: %v", st.Err))
			}
			if st.Confirmed() {
				return e.confirm(ctx, attempt, quote, sized)
			}
		}

		if e.now().After(deadline) {
			return e.resolve(ctx, attempt, domain.AttemptTimedOut,
				fmt.Sprintf("no confirmation within %s", e.confirmTimeout))
		}
	}
}

// confirm resolves the attempt as CONFIRMED and opens the position.
func (e *Engine) confirm(ctx context.Context, attempt *domain.TradeAttempt, quote *SwapQuote, sized uint64) (*domain.TradeAttempt, error) {
	nowMs := e.now().UnixMilli()
	attempt.Status = domain.AttemptConfirmed
	attempt.LatencyMs = nowMs - attempt.Intent.DiscoveredAtMs
	attempt.ResolvedAt = nowMs
	if err := e.ledger.ResolveAttempt(ctx, attempt); err != nil {
		return attempt, err
	}
	if e.metrics != nil {
		e.metrics.DiscoveryToConfirmation.Observe(float64(attempt.LatencyMs) / 1000)
	}
	e.logger.Printf("[execution] confirmed buy mint=%s sig=%s latency=%dms",
		attempt.Mint, attempt.TxSignature, attempt.LatencyMs)

	spentSOL := float64(sized) / 1e9
	tokens := e.uiTokenAmount(ctx, attempt.Mint, quote.ExpectedOut)
	pos := &domain.Position{
		PositionID:  idhash.ComputePositionID(attempt.Mint, attempt.Pool, attempt.TxSignature),
		Mint:        attempt.Mint,
		Pool:        attempt.Pool,
		SpentSOL:    spentSOL,
		TokenAmount: tokens,
		State:       domain.PositionOpen,
		OpenedAt:    nowMs,
	}
	if tokens > 0 {
		pos.EntryPrice = spentSOL / tokens
	}
	if err := e.ledger.OpenPosition(ctx, pos); err != nil {
		if errors.Is(err, ledger.ErrMaxPositions) {
			e.logger.Printf("[execution] confirmed buy for %s but position cap reached", attempt.Mint)
			return attempt, nil
		}
		return attempt, err
	}
	return attempt, nil
}

// resolve records a terminal non-confirmed outcome on the attempt.
func (e *Engine) resolve(ctx context.Context, attempt *domain.TradeAttempt, status domain.AttemptStatus, reason string) (*domain.TradeAttempt, error) {
	attempt.Status = status
	attempt.FailReason = reason
	attempt.ResolvedAt = e.now().UnixMilli()
	e.logger.Printf("[execution] attempt %s mint=%s %s: %s", attempt.AttemptID[:8], attempt.Mint, status, reason)
	if err := e.ledger.ResolveAttempt(ctx, attempt); err != nil {
		return attempt, err
	}
	return attempt, nil
}

// uiTokenAmount converts the raw quote into a UI amount using the mint's
// decimals. Falls back to the raw amount if the supply lookup fails.
func (e *Engine) uiTokenAmount(ctx context.Context, mint string, raw uint64) float64 {
	supply, err := e.rpc.GetTokenSupply(ctx, mint)
	if err != nil || supply == nil {
		e.logger.Printf("[execution] decimals lookup failed for %s: %v", mint, err)
		return float64(raw)
	}
	return float64(raw) / math.Pow10(supply.Decimals)
}

// maybePause inspects an RPC or submit error and pauses buying on resource
// exhaustion: provider rate limits and insufficient wallet balance.
func (e *Engine) maybePause(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, solana.ErrRateLimited) {
		e.pause("rpc rate limited")
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient") {
		e.pause("insufficient funds")
	}
}
