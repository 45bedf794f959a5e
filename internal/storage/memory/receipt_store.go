package memory

import (
	"context"
	"sort"
	"sync"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PaymentReceipt // keyed by attempt_id
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		data: make(map[string]*domain.PaymentReceipt),
	}
}

// Insert adds a new receipt. Returns ErrDuplicateKey if attempt_id exists.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.PaymentReceipt) error {
	if r == nil || r.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.AttemptID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	receiptCopy := *r
	s.data[r.AttemptID] = &receiptCopy
	return nil
}

// GetByAttemptID retrieves a receipt by attempt ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByAttemptID(_ context.Context, attemptID string) (*domain.PaymentReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[attemptID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	receiptCopy := *r
	return &receiptCopy, nil
}

// GetBySignature retrieves the receipt carrying a transaction signature.
func (s *ReceiptStore) GetBySignature(_ context.Context, signature string) (*domain.PaymentReceipt, error) {
	if signature == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.data {
		if r.TxSignature != nil && *r.TxSignature == signature {
			receiptCopy := *r
			return &receiptCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByState retrieves receipts in a terminal state, ordered by created_at DESC.
func (s *ReceiptStore) ListByState(_ context.Context, state domain.AttemptState, limit int) ([]*domain.PaymentReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PaymentReceipt
	for _, r := range s.data {
		if r.State == state {
			receiptCopy := *r
			result = append(result, &receiptCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)
