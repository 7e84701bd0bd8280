package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
type AttemptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeAttempt // keyed by attempt_id
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		data: make(map[string]*domain.TradeAttempt),
	}
}

var _ storage.AttemptStore = (*AttemptStore)(nil)

// Insert adds a new attempt. Returns ErrDuplicateKey if attempt_id exists.
func (s *AttemptStore) Insert(_ context.Context, a *domain.TradeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.AttemptID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.data[a.AttemptID] = &copy
	return nil
}

// Resolve updates the mutable fields of an attempt.
func (s *AttemptStore) Resolve(_ context.Context, a *domain.TradeAttempt) error {
	if a == nil || a.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[a.AttemptID]
	if !exists {
		return storage.ErrNotFound
	}

	stored.Status = a.Status
	stored.TxSignature = a.TxSignature
	stored.LatencyMs = a.LatencyMs
	stored.FailReason = a.FailReason
	stored.ResolvedAt = a.ResolvedAt
	return nil
}

// GetByID retrieves an attempt by its ID. Returns ErrNotFound if not exists.
func (s *AttemptStore) GetByID(_ context.Context, attemptID string) (*domain.TradeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[attemptID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// GetByMint retrieves all attempts for a mint, ordered by created_at ASC.
func (s *AttemptStore) GetByMint(_ context.Context, mint string) ([]*domain.TradeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeAttempt
	for _, a := range s.data {
		if a.Mint == mint {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].AttemptID < result[j].AttemptID
	})

	return result, nil
}

// Recent retrieves the most recent attempts, newest first.
func (s *AttemptStore) Recent(_ context.Context, limit int) ([]*domain.TradeAttempt, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TradeAttempt, 0, len(s.data))
	for _, a := range s.data {
		copy := *a
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].AttemptID < result[j].AttemptID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
