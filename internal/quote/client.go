package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-checkout/internal/domain"
)

// DefaultEndpoint is the public v6 aggregator API.
const DefaultEndpoint = "https://quote-api.jup.ag/v6"

// DefaultTimeout bounds a single quote or swap request.
const DefaultTimeout = 15 * time.Second

// Service prices swaps and produces executable swap transactions. No route
// is cached beyond a single request/response pair; every amount or token
// change requires a fresh quote.
type Service interface {
	// GetQuote prices a swap. Returns domain.ErrQuoteUnavailable when the
	// aggregator has no route for the pair and amount.
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, mode domain.SwapMode, slippageBps int) (*domain.QuoteRoute, error)

	// GetSwapTransaction exchanges a route for an unsigned base64
	// transaction payload built for the payer.
	GetSwapTransaction(ctx context.Context, route *domain.QuoteRoute, payer, destinationTokenAccount string) (string, error)
}

// Client is an HTTP client for the aggregator quote API. Requests are
// single-shot: a failed quote is reported, never retried silently, because
// stale retries risk acting on outdated market conditions.
type Client struct {
	endpoint string
	client   *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a quote API client. An empty endpoint selects the
// public aggregator.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// quoteResponse is the aggregator's quote shape. Amounts arrive as decimal
// strings in smallest units.
type quoteResponse struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

type quoteErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// GetQuote prices a swap through GET /quote.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, mode domain.SwapMode, slippageBps int) (*domain.QuoteRoute, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid swap mode %q", mode)
	}
	if amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	params.Set("swapMode", string(mode))
	params.Set("asLegacyTransaction", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr quoteErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuoteUnavailable, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrQuoteUnavailable, resp.StatusCode)
	}

	var quote quoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}

	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, fmt.Errorf("%w: empty route", domain.ErrQuoteUnavailable)
	}

	inAmount, err := strconv.ParseUint(quote.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse inAmount %q: %w", quote.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse outAmount %q: %w", quote.OutAmount, err)
	}

	var threshold uint64
	if quote.OtherAmountThreshold != "" {
		threshold, err = strconv.ParseUint(quote.OtherAmountThreshold, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse otherAmountThreshold %q: %w", quote.OtherAmountThreshold, err)
		}
	}

	var priceImpact float64
	if quote.PriceImpactPct != "" {
		priceImpact, _ = strconv.ParseFloat(quote.PriceImpactPct, 64)
	}

	return &domain.QuoteRoute{
		InputMint:            quote.InputMint,
		OutputMint:           quote.OutputMint,
		InAmount:             inAmount,
		OutAmount:            outAmount,
		OtherAmountThreshold: threshold,
		PriceImpactPct:       priceImpact,
		SlippageBps:          quote.SlippageBps,
		Mode:                 domain.SwapMode(quote.SwapMode),
		Payload:              json.RawMessage(body),
	}, nil
}

// swapRequest is the POST /swap body. The quote response is replayed
// verbatim so the aggregator builds against exactly what it priced.
type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	DestinationTokenAccount string          `json:"destinationTokenAccount,omitempty"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction     bool            `json:"asLegacyTransaction"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// GetSwapTransaction exchanges a priced route for the executable unsigned
// transaction through POST /swap.
func (c *Client) GetSwapTransaction(ctx context.Context, route *domain.QuoteRoute, payer, destinationTokenAccount string) (string, error) {
	if route == nil || len(route.Payload) == 0 {
		return "", fmt.Errorf("route with payload required")
	}

	body, err := json.Marshal(swapRequest{
		QuoteResponse:           route.Payload,
		UserPublicKey:           payer,
		DestinationTokenAccount: destinationTokenAccount,
		WrapAndUnwrapSol:        true,
		AsLegacyTransaction:     true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/swap", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap request failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	var swap swapResponse
	if err := json.Unmarshal(respBody, &swap); err != nil {
		return "", fmt.Errorf("unmarshal swap response: %w", err)
	}

	if swap.SwapTransaction == "" {
		return "", fmt.Errorf("empty swap transaction in response")
	}

	return swap.SwapTransaction, nil
}

var _ Service = (*Client)(nil)
