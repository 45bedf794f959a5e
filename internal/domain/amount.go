package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// RawUnits converts a human-readable decimal amount to smallest units at
// the given decimals, truncating any sub-unit remainder. 10.00 at 6
// decimals becomes 10_000_000.
func RawUnits(amount decimal.Decimal, decimals int) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	raw := amount.Shift(int32(decimals)).Truncate(0)
	if !raw.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows uint64 at %d decimals", amount, decimals)
	}
	return raw.BigInt().Uint64(), nil
}

// UIUnits converts a smallest-unit amount back to a decimal at the given
// decimals.
func UIUnits(raw uint64, decimals int) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(int32(-decimals))
}

// UIFloat converts a smallest-unit amount to a float64 for display.
func UIFloat(raw uint64, decimals int) float64 {
	return float64(raw) / math.Pow10(decimals)
}
