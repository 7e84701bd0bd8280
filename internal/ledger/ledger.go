// Package ledger tracks positions and trade attempts for the live pipeline.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

// ErrMaxPositions is returned when opening a position would exceed the
// configured cap on concurrent open positions.
var ErrMaxPositions = errors.New("max open positions reached")

// Options configures a Ledger.
type Options struct {
	Positions storage.PositionStore
	Attempts  storage.AttemptStore

	// Archive, when set, receives terminal attempts on FlushArchive.
	Archive storage.AttemptArchive

	// MaxOpenPositions caps concurrent open positions. Zero means no cap.
	MaxOpenPositions int

	Logger  *log.Logger
	Metrics *observability.Metrics
}

// Ledger is the authoritative record of attempts and positions. All writes
// go through its stores; terminal attempts are additionally buffered for the
// analytics archive.
type Ledger struct {
	positions storage.PositionStore
	attempts  storage.AttemptStore
	archive   storage.AttemptArchive
	maxOpen   int
	logger    *log.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	pending []*domain.TradeAttempt // terminal attempts awaiting archive flush
}

// New creates a Ledger. Positions and Attempts stores are required.
func New(opts Options) (*Ledger, error) {
	if opts.Positions == nil || opts.Attempts == nil {
		return nil, fmt.Errorf("position and attempt stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Ledger{
		positions: opts.Positions,
		attempts:  opts.Attempts,
		archive:   opts.Archive,
		maxOpen:   opts.MaxOpenPositions,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// RecordAttempt stores a newly created attempt.
func (l *Ledger) RecordAttempt(ctx context.Context, a *domain.TradeAttempt) error {
	if err := l.attempts.Insert(ctx, a); err != nil {
		return fmt.Errorf("record attempt %s: %w", a.AttemptID, err)
	}
	if l.metrics != nil {
		l.metrics.AttemptsByStatus.WithLabelValues(string(a.Status)).Inc()
	}
	return nil
}

// ResolveAttempt persists an attempt's terminal state and queues it for the
// archive. Resolving with a non-terminal status only updates the store.
func (l *Ledger) ResolveAttempt(ctx context.Context, a *domain.TradeAttempt) error {
	if err := l.attempts.Resolve(ctx, a); err != nil {
		return fmt.Errorf("resolve attempt %s: %w", a.AttemptID, err)
	}
	if l.metrics != nil {
		l.metrics.AttemptsByStatus.WithLabelValues(string(a.Status)).Inc()
	}

	if a.Status.Terminal() && l.archive != nil {
		copy := *a
		l.mu.Lock()
		l.pending = append(l.pending, &copy)
		l.mu.Unlock()
	}
	return nil
}

// OpenPosition records a confirmed buy as an open position. Returns
// ErrMaxPositions when the cap is reached and storage.ErrDuplicateKey when
// the mint already has an open position.
func (l *Ledger) OpenPosition(ctx context.Context, p *domain.Position) error {
	if l.maxOpen > 0 {
		n, err := l.positions.CountOpen(ctx)
		if err != nil {
			return fmt.Errorf("count open positions: %w", err)
		}
		if n >= l.maxOpen {
			return ErrMaxPositions
		}
	}

	if err := l.positions.Insert(ctx, p); err != nil {
		return fmt.Errorf("open position %s: %w", p.PositionID, err)
	}
	l.logger.Printf("[ledger] opened position %s mint=%s spent=%.4f SOL", p.PositionID, p.Mint, p.SpentSOL)
	l.updateOpenGauge(ctx)
	return nil
}

// ClosePosition transitions a position to CLOSED.
func (l *Ledger) ClosePosition(ctx context.Context, positionID string, closedAt int64) error {
	if err := l.positions.MarkClosed(ctx, positionID, closedAt); err != nil {
		return fmt.Errorf("close position %s: %w", positionID, err)
	}
	l.logger.Printf("[ledger] closed position %s", positionID)
	l.updateOpenGauge(ctx)
	return nil
}

// HasOpenPosition reports whether the mint has an open position.
func (l *Ledger) HasOpenPosition(ctx context.Context, mint string) (bool, error) {
	_, err := l.positions.GetOpenByMint(ctx, mint)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("check open position for %s: %w", mint, err)
}

// OpenPositions returns all open positions, newest first.
func (l *Ledger) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	return l.positions.ListByState(ctx, domain.PositionOpen)
}

// RecentAttempts returns the most recent attempts, newest first.
func (l *Ledger) RecentAttempts(ctx context.Context, limit int) ([]*domain.TradeAttempt, error) {
	return l.attempts.Recent(ctx, limit)
}

// AttemptsForMint returns all attempts for a mint, oldest first.
func (l *Ledger) AttemptsForMint(ctx context.Context, mint string) ([]*domain.TradeAttempt, error) {
	return l.attempts.GetByMint(ctx, mint)
}

// FlushArchive sends buffered terminal attempts to the analytics archive.
// On failure the batch is requeued for the next flush.
func (l *Ledger) FlushArchive(ctx context.Context) error {
	if l.archive == nil {
		return nil
	}

	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := l.archive.InsertBulk(ctx, batch); err != nil {
		l.mu.Lock()
		l.pending = append(batch, l.pending...)
		l.mu.Unlock()
		return fmt.Errorf("flush %d attempts to archive: %w", len(batch), err)
	}
	l.logger.Printf("[ledger] archived %d attempts", len(batch))
	return nil
}

func (l *Ledger) updateOpenGauge(ctx context.Context) {
	if l.metrics == nil {
		return
	}
	if n, err := l.positions.CountOpen(ctx); err == nil {
		l.metrics.OpenPositions.Set(float64(n))
	}
}
