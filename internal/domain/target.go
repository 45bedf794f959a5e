package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// SettlementTarget is the merchant-controlled destination of a checkout
// session: who gets paid, in which stablecoin, and how much. Configured
// once per session and immutable afterwards.
type SettlementTarget struct {
	MerchantAddress    string          // merchant wallet address
	SettlementMint     string          // the stablecoin the merchant always receives
	SettlementDecimals int             // decimals of the settlement mint
	DesiredAmount      decimal.Decimal // in settlement-token units
}

// Validate checks the target for configuration errors. The settlement mint
// is a single configured value; any mismatch downstream is a configuration
// error, never silently resolved.
func (t SettlementTarget) Validate() error {
	if err := validateAddress(t.MerchantAddress); err != nil {
		return fmt.Errorf("merchant address: %w", err)
	}
	if err := validateAddress(t.SettlementMint); err != nil {
		return fmt.Errorf("settlement mint: %w", err)
	}
	if t.SettlementDecimals < 0 {
		return fmt.Errorf("settlement decimals must be >= 0, got %d", t.SettlementDecimals)
	}
	if !t.DesiredAmount.IsPositive() {
		return fmt.Errorf("desired amount must be positive, got %s", t.DesiredAmount)
	}
	return nil
}

// DesiredRawAmount returns the desired amount in settlement-token smallest
// units. This is the authoritative amount; input-token amounts are always
// derived from a fresh quote.
func (t SettlementTarget) DesiredRawAmount() (uint64, error) {
	return RawUnits(t.DesiredAmount, t.SettlementDecimals)
}

// validateAddress checks that an address is base58 text decoding to 32 bytes.
func validateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}
