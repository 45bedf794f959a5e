package domain

import "encoding/json"

// SwapMode selects which side of a swap is fixed.
type SwapMode string

const (
	// SwapModeExactIn fixes the input amount; the output is estimated.
	SwapModeExactIn SwapMode = "ExactIn"

	// SwapModeExactOut fixes the output amount; the input is estimated with
	// slippage headroom. Used when the merchant must receive an exact
	// settlement amount.
	SwapModeExactOut SwapMode = "ExactOut"
)

// Valid reports whether the mode is one of the two known swap modes.
func (m SwapMode) Valid() bool {
	return m == SwapModeExactIn || m == SwapModeExactOut
}

// QuoteRoute is a priced swap route from the aggregator. Created per
// pricing request, consumed at most once to build a transaction, and
// discarded on any token or amount change. A route must never be reused
// with a stale amount: its slippage bounds only hold for the market state
// it was priced against.
type QuoteRoute struct {
	InputMint  string
	OutputMint string
	InAmount   uint64 // smallest units of the input mint
	OutAmount  uint64 // smallest units of the output mint

	// OtherAmountThreshold bounds the unfixed side after slippage:
	// minimum received for ExactIn, maximum spent for ExactOut.
	OtherAmountThreshold uint64

	PriceImpactPct float64
	SlippageBps    int
	Mode           SwapMode

	// Payload is the opaque aggregator response, replayed verbatim when
	// requesting the executable transaction.
	Payload json.RawMessage
}
