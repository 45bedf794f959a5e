package domain

import "errors"

// FailureCode classifies terminal payment failures for UI surfacing.
type FailureCode string

const (
	// FailureQuoteUnavailable: the aggregator returned no route. Fatal to
	// the attempt, never retried silently.
	FailureQuoteUnavailable FailureCode = "QUOTE_UNAVAILABLE"

	// FailureSignatureRejected: the wallet declined to sign. User-initiated,
	// never retried automatically.
	FailureSignatureRejected FailureCode = "SIGNATURE_REJECTED"

	// FailureSubmission: the network rejected the transaction before
	// execution (insufficient funds, expired blockhash, preflight failure).
	FailureSubmission FailureCode = "SUBMISSION_ERROR"

	// FailureSettlement: the ledger accepted the transaction but execution
	// failed on-chain.
	FailureSettlement FailureCode = "SETTLEMENT_ERROR"

	// FailureConfirmationTimeout: confirmation polling exceeded its bound.
	// Unknown outcome, distinct from a confirmed failure: the transaction
	// can still land after the polling window, so the UI must advise
	// checking status externally rather than assume failure.
	FailureConfirmationTimeout FailureCode = "CONFIRMATION_TIMEOUT"
)

// Payment flow errors.
var (
	// ErrQuoteUnavailable is returned when the swap service has no route
	// for the requested pair and amount.
	ErrQuoteUnavailable = errors.New("no swap route available")

	// ErrSignatureRejected is returned when the wallet declines to sign.
	ErrSignatureRejected = errors.New("wallet rejected signature")

	// ErrSubmission is returned when the network rejects the raw transaction.
	ErrSubmission = errors.New("transaction submission rejected")

	// ErrSettlement is returned when confirmation reveals an on-chain
	// execution failure.
	ErrSettlement = errors.New("on-chain execution failed")

	// ErrConfirmationTimeout is returned when confirmation polling exceeds
	// its bounded timeout. The outcome is unknown, not failed.
	ErrConfirmationTimeout = errors.New("confirmation timed out: outcome unknown")

	// ErrPaymentInProgress is returned when ProcessPayment is called while
	// another attempt is in flight. Prevents double submission of the same
	// logical payment.
	ErrPaymentInProgress = errors.New("payment already in progress")

	// ErrWalletNotConnected is returned when no wallet connection is
	// active; the caller should trigger connect UI and retry.
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrMetadataUnavailable marks a metadata source failure. Non-fatal:
	// descriptors degrade to placeholders instead of failing the call.
	ErrMetadataUnavailable = errors.New("token metadata unavailable")

	// ErrSettlementMintMismatch is a configuration error: a quoted route
	// delivers a different mint than the configured settlement mint.
	ErrSettlementMintMismatch = errors.New("route output does not match configured settlement mint")
)

// CodeForError maps a flow error to its terminal failure code.
func CodeForError(err error) (FailureCode, bool) {
	switch {
	case errors.Is(err, ErrQuoteUnavailable):
		return FailureQuoteUnavailable, true
	case errors.Is(err, ErrSignatureRejected):
		return FailureSignatureRejected, true
	case errors.Is(err, ErrSubmission):
		return FailureSubmission, true
	case errors.Is(err, ErrSettlement):
		return FailureSettlement, true
	case errors.Is(err, ErrConfirmationTimeout):
		return FailureConfirmationTimeout, true
	}
	return "", false
}
