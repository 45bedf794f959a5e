package solana

import "context"

// SignatureNotifier waits for signature confirmation pushed over a
// WebSocket subscription, as an alternative to status polling.
type SignatureNotifier interface {
	// WaitForSignature blocks until the signature is confirmed, the context
	// ends, or the connection fails. The returned result carries the
	// on-chain execution error, if any.
	WaitForSignature(ctx context.Context, signature string) (*SignatureResult, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureResult is a signatureNotification payload.
type SignatureResult struct {
	Slot int64
	Err  interface{} // non-nil on execution failure
}
