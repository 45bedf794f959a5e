package domain

import "fmt"

// TokenDescriptor identifies a fungible asset and its display metadata.
// A descriptor is either resolved from a metadata source or a placeholder
// built from the mint alone; placeholders never block a payment.
type TokenDescriptor struct {
	Mint     string // token mint address
	Symbol   string
	Name     string
	Decimals int    // scale between raw units and UI amount
	LogoURL  string // optional
	Resolved bool   // false for placeholder descriptors
}

// PlaceholderSymbol is the symbol used when metadata lookup misses.
const PlaceholderSymbol = "Unknown"

// PlaceholderDescriptor builds a descriptor for a mint with no known
// metadata. The name carries a truncated mint so the UI stays identifiable.
func PlaceholderDescriptor(mint string, decimals int) TokenDescriptor {
	return TokenDescriptor{
		Mint:     mint,
		Symbol:   PlaceholderSymbol,
		Name:     fmt.Sprintf("Token: %s", TruncateMint(mint)),
		Decimals: decimals,
		Resolved: false,
	}
}

// TruncateMint shortens a mint address to "ABCD...WXYZ" form for display.
func TruncateMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + "..." + mint[len(mint)-4:]
}
