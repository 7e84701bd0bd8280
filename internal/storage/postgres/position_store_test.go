package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func testPosition(id, mint string, openedAt int64) *domain.Position {
	return &domain.Position{
		PositionID:  id,
		Mint:        mint,
		Pool:        "pool-" + mint,
		SpentSOL:    0.05,
		TokenAmount: 12_500,
		EntryPrice:  0.000004,
		State:       domain.PositionOpen,
		OpenedAt:    openedAt,
	}
}

func TestPositionStoreRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s := NewPositionStore(pool)
	p := testPosition("pos1", "mintA", 1000)
	require.NoError(t, s.Insert(ctx, p))

	got, err := s.GetByID(ctx, "pos1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStoreOneOpenPerMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s := NewPositionStore(pool)
	require.NoError(t, s.Insert(ctx, testPosition("pos1", "mintA", 1000)))

	err := s.Insert(ctx, testPosition("pos2", "mintA", 2000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, s.MarkClosed(ctx, "pos1", 3000))
	require.NoError(t, s.Insert(ctx, testPosition("pos2", "mintA", 4000)))
}

func TestPositionStoreOpenByMintAndCount(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s := NewPositionStore(pool)
	require.NoError(t, s.Insert(ctx, testPosition("pos1", "mintA", 1000)))
	require.NoError(t, s.Insert(ctx, testPosition("pos2", "mintB", 2000)))

	got, err := s.GetOpenByMint(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, "pos1", got.PositionID)

	n, err := s.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.MarkClosed(ctx, "pos1", 3000))

	_, err = s.GetOpenByMint(ctx, "mintA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err = s.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPositionStoreListByState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s := NewPositionStore(pool)
	require.NoError(t, s.Insert(ctx, testPosition("pos1", "mintA", 1000)))
	require.NoError(t, s.Insert(ctx, testPosition("pos2", "mintB", 3000)))
	require.NoError(t, s.MarkClosed(ctx, "pos1", 5000))

	open, err := s.ListByState(ctx, domain.PositionOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pos2", open[0].PositionID)

	closed, err := s.ListByState(ctx, domain.PositionClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(5000), closed[0].ClosedAt)
}

func TestPositionStoreMarkClosedIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	s := NewPositionStore(pool)
	require.NoError(t, s.Insert(ctx, testPosition("pos1", "mintA", 1000)))

	require.NoError(t, s.MarkClosed(ctx, "pos1", 2000))
	require.NoError(t, s.MarkClosed(ctx, "pos1", 9000))

	got, err := s.GetByID(ctx, "pos1")
	require.NoError(t, err)
	// The second close must not move the close time.
	assert.Equal(t, int64(2000), got.ClosedAt)

	assert.ErrorIs(t, s.MarkClosed(ctx, "missing", 1000), storage.ErrNotFound)
}
