package storage

import (
	"context"

	"solana-checkout/internal/domain"
)

// ReceiptStore provides access to payment_receipts storage. Receipts are a
// merchant-side audit record written once per attempt at its terminal
// state; the payment flow itself never reads them back.
type ReceiptStore interface {
	// Insert adds a new receipt. Returns ErrDuplicateKey if attempt_id exists.
	Insert(ctx context.Context, r *domain.PaymentReceipt) error

	// GetByAttemptID retrieves a receipt by attempt ID. Returns ErrNotFound
	// if not exists.
	GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentReceipt, error)

	// GetBySignature retrieves the receipt carrying a transaction signature.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.PaymentReceipt, error)

	// ListByState retrieves receipts in a terminal state, ordered by
	// created_at DESC, up to limit (0 means no limit).
	ListByState(ctx context.Context, state domain.AttemptState, limit int) ([]*domain.PaymentReceipt, error)
}
