// Package memory provides in-memory store implementations, used by the live
// pipeline as its primary ledger backing and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.Position // keyed by position_id
	openMint map[string]string           // mint -> position_id for open positions
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data:     make(map[string]*domain.Position),
		openMint: make(map[string]string),
	}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists
// or the mint already has an open position.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}
	if p.State == domain.PositionOpen {
		if _, exists := s.openMint[p.Mint]; exists {
			return storage.ErrDuplicateKey
		}
		s.openMint[p.Mint] = p.PositionID
	}

	copy := *p
	s.data[p.PositionID] = &copy
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}

// GetOpenByMint retrieves the open position for a mint.
func (s *PositionStore) GetOpenByMint(_ context.Context, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.openMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *s.data[id]
	return &copy, nil
}

// ListByState retrieves positions in the given state, newest first.
func (s *PositionStore) ListByState(_ context.Context, state domain.PositionState) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.State == state {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt > result[j].OpenedAt
		}
		return result[i].PositionID < result[j].PositionID
	})

	return result, nil
}

// CountOpen returns the number of open positions.
func (s *PositionStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.openMint), nil
}

// MarkClosed transitions a position to CLOSED.
func (s *PositionStore) MarkClosed(_ context.Context, positionID string, closedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[positionID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.State == domain.PositionClosed {
		return nil
	}

	p.State = domain.PositionClosed
	p.ClosedAt = closedAt
	delete(s.openMint, p.Mint)
	return nil
}
