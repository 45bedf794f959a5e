package memory

import (
	"context"
	"errors"
	"testing"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/storage"
)

func strPtr(s string) *string { return &s }

func testReceipt(attemptID string, state domain.AttemptState, createdAt int64) *domain.PaymentReceipt {
	return &domain.PaymentReceipt{
		AttemptID:      attemptID,
		Payer:          "payeraddr",
		Merchant:       "merchantaddr",
		InputMint:      "inputmint",
		SettlementMint: "usdcmint",
		OutAmount:      10_000_000,
		State:          state,
		CreatedAt:      createdAt,
	}
}

func TestReceiptStore_InsertAndGet(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt("attempt1", domain.StateSettled, 1000)
	r.TxSignature = strPtr("sig1")

	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.GetByAttemptID(ctx, "attempt1")
	if err != nil {
		t.Fatalf("GetByAttemptID: %v", err)
	}
	if got.OutAmount != 10_000_000 {
		t.Errorf("expected out amount 10000000, got %d", got.OutAmount)
	}

	bySig, err := store.GetBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetBySignature: %v", err)
	}
	if bySig.AttemptID != "attempt1" {
		t.Errorf("expected attempt1, got %s", bySig.AttemptID)
	}
}

func TestReceiptStore_DuplicateKey(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := testReceipt("attempt1", domain.StateSettled, 1000)
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := store.Insert(ctx, r)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestReceiptStore_InvalidInput(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}

	if err := store.Insert(ctx, &domain.PaymentReceipt{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty attempt ID, got %v", err)
	}
}

func TestReceiptStore_NotFound(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	if _, err := store.GetByAttemptID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.GetBySignature(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReceiptStore_ListByState(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	store.Insert(ctx, testReceipt("a1", domain.StateSettled, 100))
	store.Insert(ctx, testReceipt("a2", domain.StateFailed, 200))
	store.Insert(ctx, testReceipt("a3", domain.StateSettled, 300))
	store.Insert(ctx, testReceipt("a4", domain.StateSettled, 200))

	settled, err := store.ListByState(ctx, domain.StateSettled, 0)
	if err != nil {
		t.Fatalf("ListByState: %v", err)
	}

	if len(settled) != 3 {
		t.Fatalf("expected 3 settled receipts, got %d", len(settled))
	}

	// Ordered by created_at DESC
	if settled[0].AttemptID != "a3" {
		t.Errorf("expected a3 first, got %s", settled[0].AttemptID)
	}

	limited, err := store.ListByState(ctx, domain.StateSettled, 2)
	if err != nil {
		t.Fatalf("ListByState: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 receipts with limit, got %d", len(limited))
	}
}

func TestReceiptStore_ReturnsCopies(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	store.Insert(ctx, testReceipt("a1", domain.StateSettled, 100))

	got, _ := store.GetByAttemptID(ctx, "a1")
	got.OutAmount = 999

	again, _ := store.GetByAttemptID(ctx, "a1")
	if again.OutAmount != 10_000_000 {
		t.Errorf("store data mutated through returned copy")
	}
}
