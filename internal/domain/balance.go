package domain

import "math"

// WalletTokenBalance is a token holding of a connected wallet.
// Superseded wholesale on each refresh; never persisted.
type WalletTokenBalance struct {
	TokenDescriptor

	RawAmount uint64  // smallest-unit integer amount
	UIAmount  float64 // RawAmount / 10^Decimals
}

// NewWalletTokenBalance derives the UI amount from the raw amount so the
// RawAmount/10^Decimals == UIAmount invariant holds by construction.
func NewWalletTokenBalance(desc TokenDescriptor, rawAmount uint64) WalletTokenBalance {
	return WalletTokenBalance{
		TokenDescriptor: desc,
		RawAmount:       rawAmount,
		UIAmount:        float64(rawAmount) / math.Pow10(desc.Decimals),
	}
}

// IsZero reports whether the holding is empty. Zero balances are excluded
// from wallet listings.
func (b WalletTokenBalance) IsZero() bool {
	return b.RawAmount == 0
}
