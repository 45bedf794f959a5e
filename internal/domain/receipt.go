package domain

// PaymentReceipt records a terminal payment attempt for merchant-side
// audit. Corresponds to the payment_receipts table in PostgreSQL. One
// receipt per attempt, written once the attempt reaches a terminal state.
type PaymentReceipt struct {
	AttemptID      string  // PRIMARY KEY, deterministic hash
	Payer          string  // payer wallet address
	Merchant       string  // merchant wallet address
	InputMint      string  // token the payer spent
	SettlementMint string  // stablecoin the merchant receives
	InAmount       uint64  // input smallest units (0 on direct transfer)
	OutAmount      uint64  // settlement smallest units delivered
	TxSignature    *string // nullable: absent when no transaction was submitted
	State          AttemptState
	FailureCode    *string // nullable: set for failed attempts
	CreatedAt      int64   // record creation timestamp (ms)
}
