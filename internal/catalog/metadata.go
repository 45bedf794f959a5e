package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"solana-checkout/internal/domain"
)

// DefaultTokenListURL is the public token registry snapshot.
const DefaultTokenListURL = "https://cdn.jsdelivr.net/gh/solana-labs/token-list@main/src/tokens/solana.tokenlist.json"

// MetadataSource looks up display metadata for mints. A miss is not an
// error; a nil entry means the mint is unknown to the source.
type MetadataSource interface {
	Lookup(ctx context.Context, mint string) (*domain.TokenDescriptor, error)
}

// TokenListSource serves metadata from a token-list JSON document fetched
// over HTTP. The list is fetched once, lazily, and held in memory; a fetch
// failure is remembered and retried on the next lookup.
type TokenListSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	byMint map[string]domain.TokenDescriptor
	loaded bool
}

// NewTokenListSource creates a token-list metadata source. An empty URL
// selects the public registry.
func NewTokenListSource(url string, client *http.Client) *TokenListSource {
	if url == "" {
		url = DefaultTokenListURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenListSource{
		url:    url,
		client: client,
	}
}

// tokenList is the registry document shape.
type tokenList struct {
	Tokens []struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Decimals int    `json:"decimals"`
		LogoURI  string `json:"logoURI"`
	} `json:"tokens"`
}

// Lookup returns the descriptor for a mint, or nil when the list does not
// carry it.
func (s *TokenListSource) Lookup(ctx context.Context, mint string) (*domain.TokenDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
		}
		s.loaded = true
	}

	desc, ok := s.byMint[mint]
	if !ok {
		return nil, nil
	}
	return &desc, nil
}

func (s *TokenListSource) load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token list fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read token list: %w", err)
	}

	var list tokenList
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("unmarshal token list: %w", err)
	}

	s.byMint = make(map[string]domain.TokenDescriptor, len(list.Tokens))
	for _, tok := range list.Tokens {
		s.byMint[tok.Address] = domain.TokenDescriptor{
			Mint:     tok.Address,
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Decimals: tok.Decimals,
			LogoURL:  tok.LogoURI,
			Resolved: true,
		}
	}

	return nil
}

var _ MetadataSource = (*TokenListSource)(nil)
