package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/memory"
)

// failingArchive always rejects batches, for exercising requeue behavior.
type failingArchive struct {
	received [][]*domain.TradeAttempt
	fail     bool
}

func (f *failingArchive) InsertBulk(_ context.Context, attempts []*domain.TradeAttempt) error {
	if f.fail {
		return fmt.Errorf("archive unavailable")
	}
	f.received = append(f.received, attempts)
	return nil
}

func (f *failingArchive) CountByStatus(context.Context) (map[domain.AttemptStatus]uint64, error) {
	return nil, nil
}

func (f *failingArchive) LatencyQuantiles(context.Context, []float64) ([]float64, error) {
	return nil, nil
}

func newTestLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	if opts.Positions == nil {
		opts.Positions = memory.NewPositionStore()
	}
	if opts.Attempts == nil {
		opts.Attempts = memory.NewAttemptStore()
	}
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func position(id, mint string) *domain.Position {
	return &domain.Position{
		PositionID: id,
		Mint:       mint,
		Pool:       "pool-" + mint,
		SpentSOL:   0.05,
		State:      domain.PositionOpen,
		OpenedAt:   1000,
	}
}

func attempt(id string, status domain.AttemptStatus, latencyMs int64) *domain.TradeAttempt {
	return &domain.TradeAttempt{
		AttemptID: id,
		Mint:      "mint-" + id,
		Pool:      "pool-" + id,
		Status:    status,
		LatencyMs: latencyMs,
		CreatedAt: 1000,
	}
}

func TestOpenPositionCap(t *testing.T) {
	l := newTestLedger(t, Options{MaxOpenPositions: 2})
	ctx := context.Background()

	require.NoError(t, l.OpenPosition(ctx, position("pos1", "mintA")))
	require.NoError(t, l.OpenPosition(ctx, position("pos2", "mintB")))

	err := l.OpenPosition(ctx, position("pos3", "mintC"))
	assert.ErrorIs(t, err, ErrMaxPositions)

	// Closing frees a slot.
	require.NoError(t, l.ClosePosition(ctx, "pos1", 2000))
	require.NoError(t, l.OpenPosition(ctx, position("pos3", "mintC")))
}

func TestOpenPositionDuplicateMint(t *testing.T) {
	l := newTestLedger(t, Options{})
	ctx := context.Background()

	require.NoError(t, l.OpenPosition(ctx, position("pos1", "mintA")))
	err := l.OpenPosition(ctx, position("pos2", "mintA"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	has, err := l.HasOpenPosition(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = l.HasOpenPosition(ctx, "mintB")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResolveAttemptBuffersTerminalForArchive(t *testing.T) {
	archive := &failingArchive{}
	l := newTestLedger(t, Options{Archive: archive})
	ctx := context.Background()

	a := attempt("att1", domain.AttemptSubmitted, 0)
	require.NoError(t, l.RecordAttempt(ctx, a))

	a.Status = domain.AttemptConfirmed
	a.LatencyMs = 700
	a.ResolvedAt = 1700
	require.NoError(t, l.ResolveAttempt(ctx, a))

	require.NoError(t, l.FlushArchive(ctx))
	require.Len(t, archive.received, 1)
	require.Len(t, archive.received[0], 1)
	assert.Equal(t, "att1", archive.received[0][0].AttemptID)

	// Nothing pending, second flush is a no-op.
	require.NoError(t, l.FlushArchive(ctx))
	assert.Len(t, archive.received, 1)
}

func TestFlushArchiveRequeuesOnFailure(t *testing.T) {
	archive := &failingArchive{fail: true}
	l := newTestLedger(t, Options{Archive: archive})
	ctx := context.Background()

	a := attempt("att1", domain.AttemptSubmitted, 0)
	require.NoError(t, l.RecordAttempt(ctx, a))
	a.Status = domain.AttemptFailed
	a.ResolvedAt = 1500
	require.NoError(t, l.ResolveAttempt(ctx, a))

	assert.Error(t, l.FlushArchive(ctx))

	archive.fail = false
	require.NoError(t, l.FlushArchive(ctx))
	require.Len(t, archive.received, 1)
	assert.Equal(t, "att1", archive.received[0][0].AttemptID)
}

func TestPerformanceSummary(t *testing.T) {
	l := newTestLedger(t, Options{})
	ctx := context.Background()

	for i, tc := range []struct {
		status  domain.AttemptStatus
		latency int64
	}{
		{domain.AttemptConfirmed, 400},
		{domain.AttemptConfirmed, 600},
		{domain.AttemptConfirmed, 800},
		{domain.AttemptFailed, 0},
		{domain.AttemptTimedOut, 0},
		{domain.AttemptSubmitted, 0},
	} {
		a := attempt(fmt.Sprintf("att%d", i), tc.status, tc.latency)
		require.NoError(t, l.RecordAttempt(ctx, a))
	}

	got, err := l.Performance(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, got.TotalAttempts)
	assert.Equal(t, 3, got.Confirmed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.TimedOut)
	assert.Equal(t, 1, got.Pending)
	assert.InDelta(t, 0.6, got.WinRate, 1e-9)
	assert.InDelta(t, 600, got.MeanLatencyMs, 1e-9)
	assert.InDelta(t, 600, got.P50LatencyMs, 1e-9)
	assert.InDelta(t, 780, got.P95LatencyMs, 1e-9)
}

func TestPerformanceSummaryEmpty(t *testing.T) {
	l := newTestLedger(t, Options{})

	got, err := l.Performance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalAttempts)
	assert.Zero(t, got.WinRate)
	assert.Zero(t, got.P95LatencyMs)
}
