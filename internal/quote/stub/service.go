package stub

import (
	"context"

	"solana-checkout/internal/domain"
)

// Service implements quote.Service for testing.
type Service struct {
	Route    *domain.QuoteRoute
	QuoteErr error

	SwapTx  string
	SwapErr error

	// QuoteCalls counts GetQuote invocations; the direct-transfer path must
	// leave it at zero.
	QuoteCalls int
	LastMode   domain.SwapMode
	LastAmount uint64

	SwapCalls int
}

// GetQuote returns the scripted route or error.
func (s *Service) GetQuote(_ context.Context, inputMint, outputMint string, amount uint64, mode domain.SwapMode, slippageBps int) (*domain.QuoteRoute, error) {
	s.QuoteCalls++
	s.LastMode = mode
	s.LastAmount = amount

	if s.QuoteErr != nil {
		return nil, s.QuoteErr
	}
	return s.Route, nil
}

// GetSwapTransaction returns the scripted payload or error.
func (s *Service) GetSwapTransaction(_ context.Context, route *domain.QuoteRoute, payer, destinationTokenAccount string) (string, error) {
	s.SwapCalls++
	if s.SwapErr != nil {
		return "", s.SwapErr
	}
	return s.SwapTx, nil
}
