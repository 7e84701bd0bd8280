package safety

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
)

// Options configures an Analyzer.
type Options struct {
	Querier Querier
	Weights config.SafetyWeights

	// MinScore is the buy threshold. Scores within 10 points below it
	// produce VerdictRisky instead of VerdictSkip.
	MinScore int

	// TTL bounds how long an assessment may be served from cache.
	TTL time.Duration

	// Budget bounds the wall-clock time of one full check battery.
	Budget time.Duration

	// TopHolderCount is how many of the largest accounts count toward
	// concentration. MaxTopHolderPct is the share at or above which the
	// holder check scores zero.
	TopHolderCount  int
	MaxTopHolderPct float64

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// Analyzer runs the safety check battery and caches assessments per mint.
// Concurrent requests for the same uncached mint share one computation.
type Analyzer struct {
	querier   Querier
	weights   config.SafetyWeights
	minScore  int
	ttl       time.Duration
	budget    time.Duration
	topN      int
	maxTopPct float64
	logger    *log.Logger
	metrics   *observability.Metrics

	mu    sync.RWMutex
	cache map[string]*domain.SafetyAssessment
	group singleflight.Group

	now func() time.Time
}

// NewAnalyzer creates an Analyzer. Querier must not be nil.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if opts.Weights.Sum() != 100 {
		return nil, fmt.Errorf("safety weights must sum to 100, got %d", opts.Weights.Sum())
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Budget <= 0 {
		opts.Budget = 800 * time.Millisecond
	}
	if opts.TopHolderCount <= 0 {
		opts.TopHolderCount = 10
	}
	if opts.MaxTopHolderPct <= 0 {
		opts.MaxTopHolderPct = 50
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Analyzer{
		querier:   opts.Querier,
		weights:   opts.Weights,
		minScore:  opts.MinScore,
		ttl:       opts.TTL,
		budget:    opts.Budget,
		topN:      opts.TopHolderCount,
		maxTopPct: opts.MaxTopHolderPct,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		cache:     make(map[string]*domain.SafetyAssessment),
		now:       time.Now,
	}, nil
}

// Assess returns the safety assessment for the mint, computing it if no
// fresh cached entry exists. The pool and program identify the liquidity
// venue for the lock check.
func (a *Analyzer) Assess(ctx context.Context, mint, pool, programID string) (*domain.SafetyAssessment, error) {
	if cached := a.lookup(mint); cached != nil {
		if a.metrics != nil {
			a.metrics.AssessmentCacheHits.Inc()
		}
		return cached, nil
	}

	v, err, _ := a.group.Do(mint, func() (interface{}, error) {
		// A concurrent caller may have populated the cache while this
		// call waited on the flight group.
		if cached := a.lookup(mint); cached != nil {
			return cached, nil
		}
		return a.compute(ctx, mint, pool, programID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SafetyAssessment), nil
}

// Invalidate drops the cached assessment for a mint, if any.
func (a *Analyzer) Invalidate(mint string) {
	a.mu.Lock()
	delete(a.cache, mint)
	a.mu.Unlock()
}

func (a *Analyzer) lookup(mint string) *domain.SafetyAssessment {
	a.mu.RLock()
	cached, ok := a.cache[mint]
	a.mu.RUnlock()
	if ok && !cached.Expired(a.now().UnixMilli()) {
		return cached
	}
	return nil
}

// checkResult is the outcome of one safety check: a fraction in [0,1] that
// scales the check's weight, plus any flags raised.
type checkResult struct {
	fraction float64
	flags    []domain.RedFlag
}

// queryFailed is the conservative outcome when a check cannot observe the
// chain: zero points and a non-critical flag recording the failure.
func queryFailed(check string, err error) checkResult {
	return checkResult{
		fraction: 0,
		flags: []domain.RedFlag{{
			Tag:    domain.FlagQueryFailed,
			Reason: fmt.Sprintf("%s check failed: %v", check, err),
		}},
	}
}

func (a *Analyzer) compute(ctx context.Context, mint, pool, programID string) (*domain.SafetyAssessment, error) {
	started := a.now()
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	var (
		wg       sync.WaitGroup
		lockRes  checkResult
		mintRes  checkResult
		frzRes   checkResult
		holdRes  checkResult
		metaRes  checkResult
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		lockRes = a.checkLiquidityLock(ctx, pool, programID)
	}()
	go func() {
		defer wg.Done()
		mintRes, frzRes = a.checkAuthorities(ctx, mint)
	}()
	go func() {
		defer wg.Done()
		holdRes = a.checkHolderSpread(ctx, mint)
	}()
	go func() {
		defer wg.Done()
		metaRes = a.checkMetadata(ctx, mint)
	}()
	wg.Wait()

	score := a.weights.LiquidityLock*pct(lockRes.fraction) +
		a.weights.MintAuthority*pct(mintRes.fraction) +
		a.weights.FreezeAuthority*pct(frzRes.fraction) +
		a.weights.HolderSpread*pct(holdRes.fraction) +
		a.weights.Metadata*pct(metaRes.fraction)
	total := int(math.Round(float64(score) / 100))
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	var flags []domain.RedFlag
	for _, r := range []checkResult{lockRes, mintRes, frzRes, holdRes, metaRes} {
		flags = append(flags, r.flags...)
	}

	nowMs := a.now().UnixMilli()
	assessment := &domain.SafetyAssessment{
		Mint:       mint,
		Score:      total,
		RedFlags:   flags,
		ComputedAt: nowMs,
		ExpiresAt:  nowMs + a.ttl.Milliseconds(),
	}
	assessment.Verdict = a.verdict(assessment)

	a.mu.Lock()
	a.cache[mint] = assessment
	a.mu.Unlock()

	elapsed := a.now().Sub(started)
	a.logger.Printf("[safety] mint=%s score=%d verdict=%s flags=%d took=%s",
		mint, assessment.Score, assessment.Verdict, len(flags), elapsed.Round(time.Millisecond))
	if a.metrics != nil {
		a.metrics.AssessmentsComputed.Inc()
		a.metrics.Verdicts.WithLabelValues(string(assessment.Verdict)).Inc()
		a.metrics.AnalysisDuration.Observe(elapsed.Seconds())
		for _, f := range flags {
			if f.Tag == domain.FlagQueryFailed {
				a.metrics.CheckFailures.WithLabelValues(f.Tag).Inc()
			}
		}
	}
	return assessment, nil
}

// verdict maps score and flags onto a trade decision. Critical flags always
// force a skip; otherwise the score is compared against the buy threshold
// with a 10-point risky band below it.
func (a *Analyzer) verdict(assessment *domain.SafetyAssessment) domain.Verdict {
	if assessment.HasCriticalFlag() {
		return domain.VerdictSkip
	}
	switch {
	case assessment.Score >= a.minScore:
		return domain.VerdictBuy
	case assessment.Score >= a.minScore-10:
		return domain.VerdictRisky
	default:
		return domain.VerdictSkip
	}
}

const (
	// minLockDuration is the remaining lock time below which liquidity
	// counts as effectively unlocked.
	minLockDuration = 24 * time.Hour
	// fullLockCredit is the remaining lock time at which the check earns
	// full points; shorter locks earn a linear share.
	fullLockCredit = 30 * 24 * time.Hour
)

// checkLiquidityLock scores lock presence and duration. Indefinite locks
// (burned LP, program-owned curve) earn full points; timed locks scale with
// remaining time, and anything under 24h is as bad as no lock at all.
func (a *Analyzer) checkLiquidityLock(ctx context.Context, pool, programID string) checkResult {
	lock, err := a.querier.LiquidityLock(ctx, pool, programID)
	if err != nil {
		return queryFailed("liquidity lock", err)
	}
	if lock == nil || !lock.Locked {
		return checkResult{flags: []domain.RedFlag{{
			Tag:      domain.FlagLiquidityUnlocked,
			Reason:   "liquidity is not locked or burned",
			Critical: true,
		}}}
	}
	if lock.UnlockTime == 0 {
		return checkResult{fraction: 1}
	}

	remaining := time.Duration(lock.UnlockTime-a.now().Unix()) * time.Second
	switch {
	case remaining <= 0:
		return checkResult{flags: []domain.RedFlag{{
			Tag:      domain.FlagLiquidityUnlocked,
			Reason:   "liquidity lock has expired",
			Critical: true,
		}}}
	case remaining < minLockDuration:
		return checkResult{flags: []domain.RedFlag{{
			Tag:      domain.FlagLiquidityUnlocked,
			Reason:   fmt.Sprintf("liquidity lock expires in %s", remaining.Round(time.Minute)),
			Critical: true,
		}}}
	case remaining >= fullLockCredit:
		return checkResult{fraction: 1}
	default:
		return checkResult{fraction: float64(remaining) / float64(fullLockCredit)}
	}
}

// checkAuthorities scores the mint and freeze authority checks off a single
// mint account fetch.
func (a *Analyzer) checkAuthorities(ctx context.Context, mint string) (mintRes, frzRes checkResult) {
	acct, err := a.querier.MintAccount(ctx, mint)
	if err != nil {
		return queryFailed("mint authority", err), queryFailed("freeze authority", err)
	}
	if acct == nil {
		err := fmt.Errorf("mint account not found")
		return queryFailed("mint authority", err), queryFailed("freeze authority", err)
	}

	if acct.MintAuthorityRevoked() {
		mintRes = checkResult{fraction: 1}
	} else {
		mintRes = checkResult{flags: []domain.RedFlag{{
			Tag:      domain.FlagMintAuthorityActive,
			Reason:   "mint authority can create new supply at will",
			Critical: true,
		}}}
	}
	if acct.FreezeAuthorityRevoked() {
		frzRes = checkResult{fraction: 1}
	} else {
		frzRes = checkResult{flags: []domain.RedFlag{{
			Tag:      domain.FlagFreezeAuthorityActive,
			Reason:   "freeze authority can lock holder accounts",
			Critical: true,
		}}}
	}
	return mintRes, frzRes
}

// checkHolderSpread measures what share of supply the largest accounts hold.
// At or below 20% the check scores full points; at or above the configured
// maximum it scores zero; in between the score falls off linearly.
func (a *Analyzer) checkHolderSpread(ctx context.Context, mint string) checkResult {
	supply, err := a.querier.TokenSupply(ctx, mint)
	if err != nil {
		return queryFailed("holder spread", err)
	}
	if supply == nil || supply.UIAmount <= 0 {
		return queryFailed("holder spread", fmt.Errorf("zero or unknown supply"))
	}
	holders, err := a.querier.LargestHolders(ctx, mint)
	if err != nil {
		return queryFailed("holder spread", err)
	}

	var top float64
	for i, h := range holders {
		if i >= a.topN {
			break
		}
		top += h.UIAmount
	}
	share := top / supply.UIAmount * 100

	const fullScoreBelow = 20.0
	switch {
	case share <= fullScoreBelow:
		return checkResult{fraction: 1}
	case share >= a.maxTopPct:
		return checkResult{flags: []domain.RedFlag{{
			Tag:    domain.FlagHolderConcentration,
			Reason: fmt.Sprintf("top %d accounts hold %.1f%% of supply", a.topN, share),
		}}}
	default:
		return checkResult{fraction: (a.maxTopPct - share) / (a.maxTopPct - fullScoreBelow)}
	}
}

func (a *Analyzer) checkMetadata(ctx context.Context, mint string) checkResult {
	md, err := a.querier.Metadata(ctx, mint)
	if err != nil {
		return queryFailed("metadata", err)
	}
	if md == nil {
		return checkResult{flags: []domain.RedFlag{{
			Tag:    domain.FlagMetadataIncomplete,
			Reason: "no metadata account",
		}}}
	}
	if !md.Complete() {
		return checkResult{
			fraction: 0.5,
			flags: []domain.RedFlag{{
				Tag:    domain.FlagMetadataIncomplete,
				Reason: "metadata is missing name, symbol or URI",
			}},
		}
	}
	return checkResult{fraction: 1}
}

// pct scales a [0,1] fraction to integer hundredths so weighted sums stay
// in integer arithmetic until the final rounding.
func pct(fraction float64) int {
	return int(math.Round(fraction * 100))
}
