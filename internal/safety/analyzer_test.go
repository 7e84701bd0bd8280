package safety

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// fakeQuerier serves canned answers and counts queries per mint. A non-zero
// delay makes every query slow, to widen concurrency windows in tests.
type fakeQuerier struct {
	lock     *LockInfo
	lockErr  error
	mint     *solana.MintAccount
	mintErr  error
	supply   *solana.TokenAmount
	holders  []solana.TokenAccountBalance
	holdErr  error
	metadata *TokenMetadata
	metaErr  error
	delay    time.Duration

	calls     atomic.Int64
	lockCalls atomic.Int64
}

func (f *fakeQuerier) slow() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeQuerier) MintAccount(ctx context.Context, mint string) (*solana.MintAccount, error) {
	f.calls.Add(1)
	f.slow()
	return f.mint, f.mintErr
}

func (f *fakeQuerier) TokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error) {
	f.calls.Add(1)
	f.slow()
	return f.supply, f.holdErr
}

func (f *fakeQuerier) LargestHolders(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	f.calls.Add(1)
	f.slow()
	return f.holders, f.holdErr
}

func (f *fakeQuerier) Metadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	f.calls.Add(1)
	f.slow()
	return f.metadata, f.metaErr
}

func (f *fakeQuerier) LiquidityLock(ctx context.Context, pool, programID string) (*LockInfo, error) {
	f.calls.Add(1)
	f.lockCalls.Add(1)
	f.slow()
	return f.lock, f.lockErr
}

func defaultWeights() config.SafetyWeights {
	return config.SafetyWeights{
		LiquidityLock:   30,
		MintAuthority:   15,
		FreezeAuthority: 15,
		HolderSpread:    25,
		Metadata:        15,
	}
}

// cleanQuerier describes a token with nothing wrong: locked liquidity,
// revoked authorities, 18% top-holder share and complete metadata.
func cleanQuerier() *fakeQuerier {
	return &fakeQuerier{
		lock: &LockInfo{Locked: true},
		mint: &solana.MintAccount{Decimals: 9, Initialized: true},
		supply: &solana.TokenAmount{
			Amount:   "1000000000000000000",
			Decimals: 9,
			UIAmount: 1_000_000_000,
		},
		holders: []solana.TokenAccountBalance{
			{Address: "acct1", UIAmount: 100_000_000},
			{Address: "acct2", UIAmount: 80_000_000},
		},
		metadata: &TokenMetadata{Name: "Test Token", Symbol: "TT", URI: "https://example.com/tt.json"},
	}
}

func newTestAnalyzer(t *testing.T, q Querier) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Options{
		Querier:         q,
		Weights:         defaultWeights(),
		MinScore:        70,
		TTL:             5 * time.Minute,
		Budget:          time.Second,
		TopHolderCount:  10,
		MaxTopHolderPct: 50,
	})
	require.NoError(t, err)
	return a
}

func TestAssessCleanToken(t *testing.T) {
	a := newTestAnalyzer(t, cleanQuerier())

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, 100, got.Score)
	assert.Equal(t, domain.VerdictBuy, got.Verdict)
	assert.Empty(t, got.RedFlags)
	assert.Equal(t, "mintA", got.Mint)
	assert.Greater(t, got.ExpiresAt, got.ComputedAt)
}

func TestAssessActiveMintAuthorityForcesSkip(t *testing.T) {
	q := cleanQuerier()
	q.mint = &solana.MintAccount{
		MintAuthority: "AuthKey1111111111111111111111111111111111111",
		Decimals:      9,
		Initialized:   true,
	}

	a := newTestAnalyzer(t, q)

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	// The remaining checks still pass, but the critical flag overrides
	// whatever the score says.
	assert.Equal(t, 85, got.Score)
	assert.Equal(t, domain.VerdictSkip, got.Verdict)
	require.Len(t, got.RedFlags, 1)
	assert.Equal(t, domain.FlagMintAuthorityActive, got.RedFlags[0].Tag)
	assert.True(t, got.RedFlags[0].Critical)
}

func TestAssessUnlockedLiquidityForcesSkip(t *testing.T) {
	q := cleanQuerier()
	q.lock = &LockInfo{Locked: false}

	a := newTestAnalyzer(t, q)

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, 70, got.Score)
	assert.Equal(t, domain.VerdictSkip, got.Verdict)
	assert.True(t, got.HasCriticalFlag())
}

func TestAssessQueryFailureScoresConservatively(t *testing.T) {
	q := cleanQuerier()
	q.holdErr = fmt.Errorf("rpc timeout")
	q.metadata = nil

	a := newTestAnalyzer(t, q)

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	// Lock + both authorities only: 30 + 15 + 15.
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, domain.VerdictRisky, got.Verdict)

	var tags []string
	for _, f := range got.RedFlags {
		tags = append(tags, f.Tag)
		assert.False(t, f.Critical)
	}
	assert.Contains(t, tags, domain.FlagQueryFailed)
	assert.Contains(t, tags, domain.FlagMetadataIncomplete)
}

func TestAssessHolderConcentrationScoresZero(t *testing.T) {
	q := cleanQuerier()
	q.holders = []solana.TokenAccountBalance{
		{Address: "whale", UIAmount: 600_000_000},
	}

	a := newTestAnalyzer(t, q)

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, 75, got.Score)
	require.Len(t, got.RedFlags, 1)
	assert.Equal(t, domain.FlagHolderConcentration, got.RedFlags[0].Tag)
	assert.False(t, got.RedFlags[0].Critical)
}

func TestAssessCachesWithinTTL(t *testing.T) {
	q := cleanQuerier()
	a := newTestAnalyzer(t, q)

	now := time.Now()
	a.now = func() time.Time { return now }

	first, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)
	callsAfterFirst := q.calls.Load()

	second, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, callsAfterFirst, q.calls.Load(), "cached assessment must not re-query the chain")

	// Past the TTL the entry is stale and gets recomputed.
	now = now.Add(6 * time.Minute)
	third, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Greater(t, q.calls.Load(), callsAfterFirst)
}

func TestAssessConcurrentCallersShareOneComputation(t *testing.T) {
	q := cleanQuerier()
	q.delay = 50 * time.Millisecond

	a := newTestAnalyzer(t, q)

	const callers = 8
	results := make([]*domain.SafetyAssessment, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	// One check battery for all callers: the lock query ran exactly once
	// and the five checks account for all chain traffic.
	assert.EqualValues(t, 1, q.lockCalls.Load(), "concurrent callers must not duplicate on-chain queries")
	assert.EqualValues(t, 5, q.calls.Load())
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestAssessTimedLockScalesScore(t *testing.T) {
	q := cleanQuerier()
	a := newTestAnalyzer(t, q)

	now := time.Now()
	a.now = func() time.Time { return now }

	// Half the 30-day full-credit horizon earns half the lock weight.
	q.lock = &LockInfo{Locked: true, UnlockTime: now.Add(15 * 24 * time.Hour).Unix()}

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, 85, got.Score)
	assert.Equal(t, domain.VerdictBuy, got.Verdict)
	assert.Empty(t, got.RedFlags)
}

func TestAssessShortLockForcesSkip(t *testing.T) {
	q := cleanQuerier()
	a := newTestAnalyzer(t, q)

	now := time.Now()
	a.now = func() time.Time { return now }

	q.lock = &LockInfo{Locked: true, UnlockTime: now.Add(6 * time.Hour).Unix()}

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, 70, got.Score)
	assert.Equal(t, domain.VerdictSkip, got.Verdict)
	require.Len(t, got.RedFlags, 1)
	assert.Equal(t, domain.FlagLiquidityUnlocked, got.RedFlags[0].Tag)
	assert.True(t, got.RedFlags[0].Critical)
}

func TestAssessExpiredLockForcesSkip(t *testing.T) {
	q := cleanQuerier()
	a := newTestAnalyzer(t, q)

	now := time.Now()
	a.now = func() time.Time { return now }

	q.lock = &LockInfo{Locked: true, UnlockTime: now.Add(-time.Hour).Unix()}

	got, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictSkip, got.Verdict)
	assert.True(t, got.HasCriticalFlag())
}

func TestAssessDistinctMintsAreIndependent(t *testing.T) {
	a := newTestAnalyzer(t, cleanQuerier())

	first, err := a.Assess(context.Background(), "mintA", "poolA", domain.RaydiumAMMV4)
	require.NoError(t, err)
	second, err := a.Assess(context.Background(), "mintB", "poolB", domain.RaydiumAMMV4)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "mintB", second.Mint)
}

func TestNewAnalyzerRejectsBadWeights(t *testing.T) {
	w := defaultWeights()
	w.Metadata = 20

	_, err := NewAnalyzer(Options{Querier: cleanQuerier(), Weights: w})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func TestVerdictBands(t *testing.T) {
	a := newTestAnalyzer(t, cleanQuerier())

	cases := []struct {
		score int
		want  domain.Verdict
	}{
		{100, domain.VerdictBuy},
		{70, domain.VerdictBuy},
		{69, domain.VerdictRisky},
		{60, domain.VerdictRisky},
		{59, domain.VerdictSkip},
		{0, domain.VerdictSkip},
	}
	for _, tc := range cases {
		got := a.verdict(&domain.SafetyAssessment{Score: tc.score})
		assert.Equal(t, tc.want, got, "score %d", tc.score)
	}
}
