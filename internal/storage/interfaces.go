// Package storage defines the persistence interfaces for positions and
// trade attempts, with in-memory, Postgres and ClickHouse implementations.
package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if position_id
	// exists or an open position for the same mint already exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// GetOpenByMint retrieves the open position for a mint.
	// Returns ErrNotFound if the mint has no open position.
	GetOpenByMint(ctx context.Context, mint string) (*domain.Position, error)

	// ListByState retrieves positions in the given state, newest first.
	ListByState(ctx context.Context, state domain.PositionState) ([]*domain.Position, error)

	// CountOpen returns the number of open positions.
	CountOpen(ctx context.Context) (int, error)

	// MarkClosed transitions a position to CLOSED, recording the close time.
	// Returns ErrNotFound if the position does not exist.
	MarkClosed(ctx context.Context, positionID string, closedAt int64) error
}

// AttemptStore provides access to trade_attempts storage.
type AttemptStore interface {
	// Insert adds a new attempt. Returns ErrDuplicateKey if attempt_id exists.
	Insert(ctx context.Context, a *domain.TradeAttempt) error

	// Resolve updates the mutable fields of an attempt after submission or
	// settlement. Returns ErrNotFound if the attempt does not exist.
	Resolve(ctx context.Context, a *domain.TradeAttempt) error

	// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, attemptID string) (*domain.TradeAttempt, error)

	// GetByMint retrieves all attempts for a mint, ordered by created_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.TradeAttempt, error)

	// Recent retrieves the most recent attempts, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.TradeAttempt, error)
}

// AttemptArchive is an append-only analytics sink for terminal attempts.
// Unlike AttemptStore it is queried for aggregates, never for single rows.
type AttemptArchive interface {
	// InsertBulk appends terminal attempts to the archive.
	InsertBulk(ctx context.Context, attempts []*domain.TradeAttempt) error

	// CountByStatus returns how many archived attempts ended in each status.
	CountByStatus(ctx context.Context) (map[domain.AttemptStatus]uint64, error)

	// LatencyQuantiles returns discovery-to-confirmation latency quantiles
	// in milliseconds over confirmed attempts, index-aligned with qs.
	LatencyQuantiles(ctx context.Context, qs []float64) ([]float64, error)
}
