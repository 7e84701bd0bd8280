package execution

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/ledger"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/wallet"
)

// engineRPC fakes the RPC surface the engine touches. Signature status
// responses are consumed from a queue; an empty queue reports unknown.
type engineRPC struct {
	solana.RPCClient

	mu       sync.Mutex
	statuses [][]*solana.SignatureStatus
}

func (r *engineRPC) GetLatestBlockhash(ctx context.Context) (*solana.LatestBlockhash, error) {
	return &solana.LatestBlockhash{Blockhash: testPubkey(0xaa), LastValidBlockHeight: 100}, nil
}

func (r *engineRPC) GetSignatureStatuses(ctx context.Context, sigs []string) ([]*solana.SignatureStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return []*solana.SignatureStatus{nil}, nil
	}
	next := r.statuses[0]
	r.statuses = r.statuses[1:]
	return next, nil
}

func (r *engineRPC) GetTokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error) {
	return &solana.TokenAmount{Amount: "1000000000000", Decimals: 6}, nil
}

func confirmedStatus() []*solana.SignatureStatus {
	return []*solana.SignatureStatus{{ConfirmationStatus: "confirmed"}}
}

func failedStatus(reason string) []*solana.SignatureStatus {
	return []*solana.SignatureStatus{{ConfirmationStatus: "confirmed", Err: reason}}
}

// stubBuilder returns a fixed instruction and quote. When block is set,
// BuildBuy signals entered and then waits on it.
type stubBuilder struct {
	program string
	block   chan struct{}
	entered chan struct{}
}

func (b *stubBuilder) Program() string { return b.program }

func (b *stubBuilder) BuildBuy(ctx context.Context, ev *domain.PoolCreationEvent, walletAddr string, lamports uint64, slippageBps int) ([]solana.Instruction, *SwapQuote, error) {
	if b.entered != nil {
		close(b.entered)
	}
	if b.block != nil {
		<-b.block
	}
	ins := []solana.Instruction{solana.SystemTransfer(walletAddr, testPubkey(0x30), lamports)}
	return ins, &SwapQuote{ExpectedOut: 5_000_000, MinOut: 4_950_000}, nil
}

// stubSubmitter records submissions and fails with queued errors.
type stubSubmitter struct {
	name string
	errs []error

	mu    sync.Mutex
	calls [][]*solana.SignedTx
}

func (s *stubSubmitter) Name() string { return s.name }

func (s *stubSubmitter) Submit(ctx context.Context, txs ...*solana.SignedTx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, txs)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return txs[0].Signature, nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewFromBase58(base58.Encode(bytes.Repeat([]byte{7}, 32)))
	require.NoError(t, err)
	return w
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Options{
		Positions:        memory.NewPositionStore(),
		Attempts:         memory.NewAttemptStore(),
		MaxOpenPositions: 5,
		Logger:           log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return l
}

func testEngine(t *testing.T, rpc solana.RPCClient, builder SwapBuilder, direct, bundle *stubSubmitter, l *ledger.Ledger) *Engine {
	t.Helper()
	opts := Options{
		RPC:            rpc,
		Wallet:         testWallet(t),
		Builders:       []SwapBuilder{builder},
		Direct:         direct,
		Ledger:         l,
		SubmitRetries:  3,
		SubmitBackoff:  time.Millisecond,
		ConfirmTimeout: 100 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Logger:         log.New(io.Discard, "", 0),
	}
	if bundle != nil {
		opts.Bundle = bundle
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

func testEvent() *domain.PoolCreationEvent {
	return &domain.PoolCreationEvent{
		Mint:         testPubkey(0x01),
		Pool:         testPubkey(0x02),
		BaseMint:     domain.WrappedSOL,
		ProgramID:    domain.PumpFun,
		TxSignature:  "discovery-sig",
		Slot:         42,
		DiscoveredAt: time.Now().UnixMilli() - 150,
	}
}

func testIntent(ev *domain.PoolCreationEvent) domain.TradeIntent {
	return domain.TradeIntent{
		MaxBuyLamports: 1_000_000_000,
		MinSafetyScore: 60,
		SlippageBps:    100,
		PriorityFee:    1_000,
		DiscoveredAtMs: ev.DiscoveredAt,
		DiscoverySig:   ev.TxSignature,
		DiscoverySlot:  ev.Slot,
	}
}

func buyAssessment(mint string, score int) *domain.SafetyAssessment {
	v := domain.VerdictBuy
	if score < 70 {
		v = domain.VerdictRisky
	}
	return &domain.SafetyAssessment{Mint: mint, Score: score, Verdict: v}
}

func TestExecuteBuyConfirmsAndOpensPosition(t *testing.T) {
	rpc := &engineRPC{statuses: [][]*solana.SignatureStatus{
		{nil}, // still unknown on first poll
		confirmedStatus(),
	}}
	direct := &stubSubmitter{name: "direct"}
	l := testLedger(t)
	e := testEngine(t, rpc, &stubBuilder{program: domain.PumpFun}, direct, nil, l)

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)

	assert.Equal(t, domain.AttemptConfirmed, attempt.Status)
	assert.NotEmpty(t, attempt.TxSignature)
	assert.GreaterOrEqual(t, attempt.LatencyMs, int64(150))
	assert.Equal(t, uint64(1_000_000_000), attempt.Intent.SizedBuyLamports)
	assert.Equal(t, 1, direct.callCount())

	open, err := l.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ev.Mint, open[0].Mint)
	assert.InDelta(t, 1.0, open[0].SpentSOL, 1e-9)
	assert.InDelta(t, 5.0, open[0].TokenAmount, 1e-9) // 5_000_000 raw at 6 decimals
	assert.InDelta(t, 0.2, open[0].EntryPrice, 1e-9)
}

func TestExecuteBuyRejectsSkipVerdict(t *testing.T) {
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	a := &domain.SafetyAssessment{Mint: ev.Mint, Score: 80, Verdict: domain.VerdictSkip}
	_, err := e.ExecuteBuy(context.Background(), ev, a, testIntent(ev))
	assert.ErrorIs(t, err, ErrScoreTooLow)
}

func TestExecuteBuyRejectsLowScore(t *testing.T) {
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	intent := testIntent(ev)
	intent.MinSafetyScore = 90
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 75), intent)
	assert.ErrorIs(t, err, ErrScoreTooLow)
}

func TestExecuteBuySizesToZero(t *testing.T) {
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	intent := testIntent(ev)
	intent.MinSafetyScore = 0
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 59), intent)
	assert.ErrorIs(t, err, ErrScoreTooLow)
}

func TestExecuteBuyUnknownProgram(t *testing.T) {
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	ev.ProgramID = testPubkey(0x77)
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	assert.ErrorContains(t, err, "no swap builder")
}

func TestExecuteBuyDeduplicatesInFlight(t *testing.T) {
	rpc := &engineRPC{statuses: [][]*solana.SignatureStatus{confirmedStatus()}}
	builder := &stubBuilder{
		program: domain.PumpFun,
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	e := testEngine(t, rpc, builder, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	done := make(chan error, 1)
	go func() {
		_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
		done <- err
	}()

	// Wait until the first buy holds the mint, then race a second one.
	<-builder.entered
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	assert.ErrorIs(t, err, ErrAlreadyInFlight)

	close(builder.block)
	require.NoError(t, <-done)
}

func TestExecuteBuySubmitRetriesExhausted(t *testing.T) {
	boom := errors.New("relay unavailable")
	direct := &stubSubmitter{name: "direct", errs: []error{boom, boom, boom}}
	l := testLedger(t)
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, direct, nil, l)

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)

	assert.Equal(t, domain.AttemptFailed, attempt.Status)
	assert.Contains(t, attempt.FailReason, "relay unavailable")
	assert.Equal(t, 3, direct.callCount())

	// No position opened for a failed submit.
	open, err := l.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExecuteBuySubmitRecoversOnRetry(t *testing.T) {
	direct := &stubSubmitter{name: "direct", errs: []error{errors.New("transient")}}
	rpc := &engineRPC{statuses: [][]*solana.SignatureStatus{confirmedStatus()}}
	e := testEngine(t, rpc, &stubBuilder{program: domain.PumpFun}, direct, nil, testLedger(t))

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptConfirmed, attempt.Status)
	assert.Equal(t, 2, direct.callCount())
}

func TestExecuteBuyTimesOut(t *testing.T) {
	// Status stays unknown past the confirmation window.
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptTimedOut, attempt.Status)
	assert.Contains(t, attempt.FailReason, "no confirmation")
}

func TestExecuteBuyFailsOnChain(t *testing.T) {
	rpc := &engineRPC{statuses: [][]*solana.SignatureStatus{failedStatus("InstructionError")}}
	l := testLedger(t)
	e := testEngine(t, rpc, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, l)

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, attempt.Status)
	assert.Contains(t, attempt.FailReason, "transaction error")

	open, err := l.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExecuteBuyPausesOnRateLimit(t *testing.T) {
	direct := &stubSubmitter{name: "direct", errs: []error{
		solana.ErrRateLimited, solana.ErrRateLimited, solana.ErrRateLimited,
	}}
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, direct, nil, testLedger(t))

	ev := testEvent()
	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, attempt.Status)
	assert.True(t, e.Paused())

	_, err = e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	assert.ErrorIs(t, err, ErrPaused)

	e.Resume()
	assert.False(t, e.Paused())
}

func TestExecuteBuyRejectsExistingPosition(t *testing.T) {
	l := testLedger(t)
	ev := testEvent()
	require.NoError(t, l.OpenPosition(context.Background(), &domain.Position{
		PositionID: "existing",
		Mint:       ev.Mint,
		Pool:       ev.Pool,
		State:      domain.PositionOpen,
		OpenedAt:   time.Now().UnixMilli(),
	}))

	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, l)
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), testIntent(ev))
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestExecuteBuyProtectedSubmitBundlesTip(t *testing.T) {
	rpc := &engineRPC{statuses: [][]*solana.SignatureStatus{confirmedStatus()}}
	direct := &stubSubmitter{name: "direct"}
	bundle := &stubSubmitter{name: "bundle"}
	e := testEngine(t, rpc, &stubBuilder{program: domain.PumpFun}, direct, bundle, testLedger(t))

	ev := testEvent()
	intent := testIntent(ev)
	intent.ProtectedSubmit = true
	intent.TipLamports = 100_000

	attempt, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), intent)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptConfirmed, attempt.Status)

	assert.Zero(t, direct.callCount())
	require.Equal(t, 1, bundle.callCount())
	require.Len(t, bundle.calls[0], 2) // buy plus tip transfer
	assert.Equal(t, attempt.TxSignature, bundle.calls[0][0].Signature)
}

func TestExecuteBuyProtectedWithoutRelay(t *testing.T) {
	e := testEngine(t, &engineRPC{}, &stubBuilder{program: domain.PumpFun}, &stubSubmitter{name: "direct"}, nil, testLedger(t))

	ev := testEvent()
	intent := testIntent(ev)
	intent.ProtectedSubmit = true
	_, err := e.ExecuteBuy(context.Background(), ev, buyAssessment(ev.Mint, 95), intent)
	assert.ErrorContains(t, err, "bundle relay")
}
