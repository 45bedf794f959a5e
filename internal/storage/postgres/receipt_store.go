package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/observability"
	"solana-checkout/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if attempt_id exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.PaymentReceipt) error {
	if r == nil || r.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO payment_receipts (
			attempt_id, payer, merchant, input_mint, settlement_mint,
			in_amount, out_amount, tx_signature, state, failure_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.AttemptID,
		r.Payer,
		r.Merchant,
		r.InputMint,
		r.SettlementMint,
		int64(r.InAmount),
		int64(r.OutAmount),
		r.TxSignature,
		string(r.State),
		r.FailureCode,
		r.CreatedAt,
	)
	observability.RecordDBQuery("insert_receipt", time.Since(start).Seconds(), err)

	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetByAttemptID retrieves a receipt by attempt ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentReceipt, error) {
	query := `
		SELECT attempt_id, payer, merchant, input_mint, settlement_mint,
		       in_amount, out_amount, tx_signature, state, failure_code, created_at
		FROM payment_receipts
		WHERE attempt_id = $1
	`

	row := s.pool.QueryRow(ctx, query, attemptID)
	r, err := scanReceipt(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt by attempt id: %w", err)
	}
	return r, nil
}

// GetBySignature retrieves the receipt carrying a transaction signature.
func (s *ReceiptStore) GetBySignature(ctx context.Context, signature string) (*domain.PaymentReceipt, error) {
	if signature == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT attempt_id, payer, merchant, input_mint, settlement_mint,
		       in_amount, out_amount, tx_signature, state, failure_code, created_at
		FROM payment_receipts
		WHERE tx_signature = $1
	`

	row := s.pool.QueryRow(ctx, query, signature)
	r, err := scanReceipt(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt by signature: %w", err)
	}
	return r, nil
}

// ListByState retrieves receipts in a terminal state, ordered by created_at DESC.
func (s *ReceiptStore) ListByState(ctx context.Context, state domain.AttemptState, limit int) ([]*domain.PaymentReceipt, error) {
	query := `
		SELECT attempt_id, payer, merchant, input_mint, settlement_mint,
		       in_amount, out_amount, tx_signature, state, failure_code, created_at
		FROM payment_receipts
		WHERE state = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{string(state)}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts by state: %w", err)
	}
	defer rows.Close()

	var result []*domain.PaymentReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// scanReceipt scans one payment_receipts row.
func scanReceipt(row pgx.Row) (*domain.PaymentReceipt, error) {
	var r domain.PaymentReceipt
	var inAmount, outAmount int64
	var state string

	err := row.Scan(
		&r.AttemptID,
		&r.Payer,
		&r.Merchant,
		&r.InputMint,
		&r.SettlementMint,
		&inAmount,
		&outAmount,
		&r.TxSignature,
		&state,
		&r.FailureCode,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.InAmount = uint64(inAmount)
	r.OutAmount = uint64(outAmount)
	r.State = domain.AttemptState(state)
	return &r, nil
}
