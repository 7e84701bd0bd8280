package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	position_id, mint, pool, spent_sol, token_amount, entry_price,
	state, opened_at, closed_at
`

// Insert adds a new position. The partial unique index on open positions
// enforces one open position per mint at the database level.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PositionID, p.Mint, p.Pool, p.SpentSOL, p.TokenAmount, p.EntryPrice,
		string(p.State), p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, positionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpenByMint retrieves the open position for a mint.
func (s *PositionStore) GetOpenByMint(ctx context.Context, mint string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE mint = $1 AND state = 'OPEN'`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open position by mint: %w", err)
	}
	return p, nil
}

// ListByState retrieves positions in the given state, newest first.
func (s *PositionStore) ListByState(ctx context.Context, state domain.PositionState) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE state = $1
		ORDER BY opened_at DESC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("list positions by state: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM positions WHERE state = 'OPEN'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open positions: %w", err)
	}
	return n, nil
}

// MarkClosed transitions a position to CLOSED. Closing an already closed
// position is a no-op.
func (s *PositionStore) MarkClosed(ctx context.Context, positionID string, closedAt int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET state = 'CLOSED', closed_at = $2
		WHERE position_id = $1 AND state = 'OPEN'
	`, positionID, closedAt)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM positions WHERE position_id = $1)`, positionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check position exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var state string

	err := row.Scan(
		&p.PositionID, &p.Mint, &p.Pool, &p.SpentSOL, &p.TokenAmount, &p.EntryPrice,
		&state, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.State = domain.PositionState(state)

	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
