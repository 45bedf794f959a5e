package stub

import (
	"context"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/txbuilder"
)

// Wallet implements wallet.Wallet for testing.
type Wallet struct {
	Addr        string
	IsConnected bool

	// RejectSign makes SignTransaction return ErrSignatureRejected,
	// modeling a user cancel in the wallet UI.
	RejectSign bool

	ConnectErr error

	// Signed records every transaction passed to SignTransaction.
	Signed []*txbuilder.UnsignedTransaction
}

// Connect marks the stub connected unless ConnectErr is set.
func (w *Wallet) Connect(_ context.Context) error {
	if w.ConnectErr != nil {
		return w.ConnectErr
	}
	w.IsConnected = true
	return nil
}

// Connected reports the scripted connection state.
func (w *Wallet) Connected() bool {
	return w.IsConnected
}

// Address returns the scripted address.
func (w *Wallet) Address() string {
	return w.Addr
}

// SignTransaction returns a transaction with zero-filled signatures, or the
// rejection error when scripted.
func (w *Wallet) SignTransaction(_ context.Context, tx *txbuilder.UnsignedTransaction) (*txbuilder.SignedTransaction, error) {
	w.Signed = append(w.Signed, tx)
	if w.RejectSign {
		return nil, domain.ErrSignatureRejected
	}

	signatures := make([][]byte, tx.Message.Header.NumRequiredSignatures)
	for i := range signatures {
		signatures[i] = make([]byte, 64)
	}
	return &txbuilder.SignedTransaction{
		Signatures: signatures,
		Message:    tx.Message,
	}, nil
}
