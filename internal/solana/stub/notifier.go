package stub

import (
	"context"

	"solana-checkout/internal/solana"
)

// Notifier implements solana.SignatureNotifier for testing.
type Notifier struct {
	Result *solana.SignatureResult
	Err    error
	Waited []string // signatures passed to WaitForSignature
}

// WaitForSignature returns the scripted result immediately.
func (n *Notifier) WaitForSignature(ctx context.Context, signature string) (*solana.SignatureResult, error) {
	n.Waited = append(n.Waited, signature)
	if n.Err != nil {
		return nil, n.Err
	}
	if n.Result == nil {
		return &solana.SignatureResult{}, nil
	}
	return n.Result, nil
}

// Close is a no-op.
func (n *Notifier) Close() error { return nil }

var _ solana.SignatureNotifier = (*Notifier)(nil)
