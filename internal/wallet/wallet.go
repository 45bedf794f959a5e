// Package wallet is the boundary to the payer's signing authority. The
// orchestrator only ever sees this interface; a declined signature is a
// first-class outcome, not a crash.
package wallet

import (
	"context"

	"solana-checkout/internal/txbuilder"
)

// Wallet abstracts connect/sign for the payer.
type Wallet interface {
	// Connect establishes the wallet session.
	Connect(ctx context.Context) error

	// Connected reports whether a session is active.
	Connected() bool

	// Address returns the wallet's public address. Empty until connected.
	Address() string

	// SignTransaction signs an unsigned transaction. A declined signature
	// returns domain.ErrSignatureRejected.
	SignTransaction(ctx context.Context, tx *txbuilder.UnsignedTransaction) (*txbuilder.SignedTransaction, error)
}
