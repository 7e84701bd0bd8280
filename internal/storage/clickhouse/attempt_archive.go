package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptArchive implements storage.AttemptArchive using ClickHouse.
// Rows are append-only; the archive only serves aggregate queries.
type AttemptArchive struct {
	conn *Conn
}

// NewAttemptArchive creates a new AttemptArchive.
func NewAttemptArchive(conn *Conn) *AttemptArchive {
	return &AttemptArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.AttemptArchive = (*AttemptArchive)(nil)

// InsertBulk appends terminal attempts to the archive.
func (s *AttemptArchive) InsertBulk(ctx context.Context, attempts []*domain.TradeAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO attempt_history (
			attempt_id, mint, pool, status, tx_signature, fail_reason,
			latency_ms, created_at, resolved_at,
			sized_buy_lamports, protected_submit, assessment_score
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range attempts {
		if a == nil || a.AttemptID == "" {
			return storage.ErrInvalidInput
		}
		if !a.Status.Terminal() {
			return fmt.Errorf("%w: attempt %s is not terminal", storage.ErrInvalidInput, a.AttemptID)
		}

		var protected uint8
		if a.Intent.ProtectedSubmit {
			protected = 1
		}
		err = batch.Append(
			a.AttemptID, a.Mint, a.Pool, string(a.Status), a.TxSignature, a.FailReason,
			a.LatencyMs, a.CreatedAt, a.ResolvedAt,
			a.Intent.SizedBuyLamports, protected, int32(a.Intent.AssessmentScore),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByStatus returns how many archived attempts ended in each status.
func (s *AttemptArchive) CountByStatus(ctx context.Context) (map[domain.AttemptStatus]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT status, count() AS n
		FROM attempt_history
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.AttemptStatus]uint64)
	for rows.Next() {
		var status string
		var n uint64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		result[domain.AttemptStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return result, nil
}

// LatencyQuantiles returns discovery-to-confirmation latency quantiles in
// milliseconds over confirmed attempts, index-aligned with qs.
func (s *AttemptArchive) LatencyQuantiles(ctx context.Context, qs []float64) ([]float64, error) {
	if len(qs) == 0 {
		return nil, storage.ErrInvalidInput
	}

	levels := make([]string, len(qs))
	for i, q := range qs {
		if q < 0 || q > 1 {
			return nil, fmt.Errorf("%w: quantile %v out of [0,1]", storage.ErrInvalidInput, q)
		}
		levels[i] = fmt.Sprintf("%g", q)
	}

	query := fmt.Sprintf(`
		SELECT quantiles(%s)(latency_ms)
		FROM attempt_history
		WHERE status = 'CONFIRMED'
	`, strings.Join(levels, ", "))

	var quantiles []float64
	if err := s.conn.QueryRow(ctx, query).Scan(&quantiles); err != nil {
		return nil, fmt.Errorf("latency quantiles: %w", err)
	}
	return quantiles, nil
}
