package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore implements storage.AttemptStore using PostgreSQL.
// The TradeIntent is flattened into columns so attempts stay queryable
// without JSON unpacking.
type AttemptStore struct {
	pool *Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AttemptStore = (*AttemptStore)(nil)

const attemptColumns = `
	attempt_id, mint, pool, status, tx_signature, fail_reason,
	latency_ms, created_at, resolved_at,
	max_buy_lamports, sized_buy_lamports, min_safety_score, slippage_bps,
	priority_fee, tip_lamports, protected_submit,
	discovered_at_ms, discovery_sig, discovery_slot, assessment_score
`

// Insert adds a new attempt. Returns ErrDuplicateKey if attempt_id exists.
func (s *AttemptStore) Insert(ctx context.Context, a *domain.TradeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_attempts (` + attemptColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20
		)
	`

	_, err := s.pool.Exec(ctx, query,
		a.AttemptID, a.Mint, a.Pool, string(a.Status), a.TxSignature, a.FailReason,
		a.LatencyMs, a.CreatedAt, a.ResolvedAt,
		int64(a.Intent.MaxBuyLamports), int64(a.Intent.SizedBuyLamports), a.Intent.MinSafetyScore, a.Intent.SlippageBps,
		int64(a.Intent.PriorityFee), int64(a.Intent.TipLamports), a.Intent.ProtectedSubmit,
		a.Intent.DiscoveredAtMs, a.Intent.DiscoverySig, a.Intent.DiscoverySlot, a.Intent.AssessmentScore,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Resolve updates the mutable fields of an attempt.
func (s *AttemptStore) Resolve(ctx context.Context, a *domain.TradeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE trade_attempts
		SET status = $2, tx_signature = $3, fail_reason = $4, latency_ms = $5, resolved_at = $6
		WHERE attempt_id = $1
	`, a.AttemptID, string(a.Status), a.TxSignature, a.FailReason, a.LatencyMs, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("resolve attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
func (s *AttemptStore) GetByID(ctx context.Context, attemptID string) (*domain.TradeAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM trade_attempts WHERE attempt_id = $1`

	a, err := scanAttempt(s.pool.QueryRow(ctx, query, attemptID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get attempt by id: %w", err)
	}
	return a, nil
}

// GetByMint retrieves all attempts for a mint, ordered by created_at ASC.
func (s *AttemptStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM trade_attempts
		WHERE mint = $1
		ORDER BY created_at ASC, attempt_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get attempts by mint: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// Recent retrieves the most recent attempts, newest first.
func (s *AttemptStore) Recent(ctx context.Context, limit int) ([]*domain.TradeAttempt, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + attemptColumns + `
		FROM trade_attempts
		ORDER BY created_at DESC, attempt_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// scanAttempt scans a single row into a TradeAttempt.
func scanAttempt(row pgx.Row) (*domain.TradeAttempt, error) {
	var a domain.TradeAttempt
	var status string
	var maxBuy, sizedBuy, priorityFee, tip int64

	err := row.Scan(
		&a.AttemptID, &a.Mint, &a.Pool, &status, &a.TxSignature, &a.FailReason,
		&a.LatencyMs, &a.CreatedAt, &a.ResolvedAt,
		&maxBuy, &sizedBuy, &a.Intent.MinSafetyScore, &a.Intent.SlippageBps,
		&priorityFee, &tip, &a.Intent.ProtectedSubmit,
		&a.Intent.DiscoveredAtMs, &a.Intent.DiscoverySig, &a.Intent.DiscoverySlot, &a.Intent.AssessmentScore,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AttemptStatus(status)
	a.Intent.Mint = a.Mint
	a.Intent.Pool = a.Pool
	a.Intent.MaxBuyLamports = uint64(maxBuy)
	a.Intent.SizedBuyLamports = uint64(sizedBuy)
	a.Intent.PriorityFee = uint64(priorityFee)
	a.Intent.TipLamports = uint64(tip)

	return &a, nil
}

// scanAttempts scans multiple rows into a slice of TradeAttempt.
func scanAttempts(rows pgx.Rows) ([]*domain.TradeAttempt, error) {
	var attempts []*domain.TradeAttempt

	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}

	return attempts, nil
}
