package ledger

import (
	"context"
	"fmt"
	"sort"

	"solana-sniper/internal/domain"
)

// performanceWindow bounds how many attempts feed the summary.
const performanceWindow = 10_000

// PerformanceSummary aggregates attempt outcomes and confirmation latency.
type PerformanceSummary struct {
	TotalAttempts int
	Confirmed     int
	Failed        int
	TimedOut      int
	Pending       int

	// WinRate is confirmed / terminal attempts, 0 when nothing is terminal.
	WinRate float64

	// Latency statistics over confirmed attempts, in milliseconds.
	MeanLatencyMs float64
	P50LatencyMs  float64
	P95LatencyMs  float64
}

// Performance summarizes the most recent attempts.
func (l *Ledger) Performance(ctx context.Context) (*PerformanceSummary, error) {
	attempts, err := l.attempts.Recent(ctx, performanceWindow)
	if err != nil {
		return nil, fmt.Errorf("load attempts for summary: %w", err)
	}

	summary := &PerformanceSummary{TotalAttempts: len(attempts)}
	var latencies []float64
	for _, a := range attempts {
		switch a.Status {
		case domain.AttemptConfirmed:
			summary.Confirmed++
			latencies = append(latencies, float64(a.LatencyMs))
		case domain.AttemptFailed:
			summary.Failed++
		case domain.AttemptTimedOut:
			summary.TimedOut++
		default:
			summary.Pending++
		}
	}

	terminal := summary.Confirmed + summary.Failed + summary.TimedOut
	if terminal > 0 {
		summary.WinRate = float64(summary.Confirmed) / float64(terminal)
	}

	sort.Float64s(latencies)
	summary.MeanLatencyMs = computeMean(latencies)
	summary.P50LatencyMs = computePercentile(latencies, 0.50)
	summary.P95LatencyMs = computePercentile(latencies, 0.95)

	return summary, nil
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computePercentile uses linear interpolation. sorted must be pre-sorted ASC;
// p is the percentile level (0.50 = median).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
