package catalog

import (
	"context"
	"fmt"
	"log"
	"sort"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/observability"
	"solana-checkout/internal/solana"
)

// BalanceSource is the RPC slice the catalog needs for wallet holdings.
type BalanceSource interface {
	GetTokenAccountsByOwner(ctx context.Context, owner string) ([]solana.TokenAccount, error)
}

// Catalog resolves token metadata and lists wallet holdings. Metadata is
// best-effort: a lookup miss or source failure degrades to a placeholder
// descriptor and is logged, never surfaced as an error to the payment flow.
type Catalog struct {
	metadata MetadataSource
	balances BalanceSource
	logger   *log.Logger
}

// Options configures Catalog construction.
type Options struct {
	// Metadata is the display-metadata source. Optional: without one, every
	// descriptor is a placeholder.
	Metadata MetadataSource

	// Balances provides wallet token holdings. Required.
	Balances BalanceSource

	// Logger receives metadata-miss reports. Optional.
	Logger *log.Logger
}

// New creates a token catalog.
func New(opts Options) (*Catalog, error) {
	if opts.Balances == nil {
		return nil, fmt.Errorf("balance source required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Catalog{
		metadata: opts.Metadata,
		balances: opts.Balances,
		logger:   logger,
	}, nil
}

// Resolve returns the descriptor for a mint. It never fails: a lookup miss
// or metadata-source failure yields a placeholder descriptor with the given
// decimals.
func (c *Catalog) Resolve(ctx context.Context, mint string, decimals int) domain.TokenDescriptor {
	if c.metadata != nil {
		desc, err := c.metadata.Lookup(ctx, mint)
		if err != nil {
			c.logger.Printf("[catalog] metadata lookup for %s: %v", mint, err)
			observability.RecordMetadataMiss()
		} else if desc != nil {
			return *desc
		}
	}
	return domain.PlaceholderDescriptor(mint, decimals)
}

// ListWalletBalances returns the wallet's non-zero token holdings, sorted
// descending by UI amount. A balance-source failure returns an empty list
// plus the error; metadata failures degrade individual entries to
// placeholders without failing the listing.
func (c *Catalog) ListWalletBalances(ctx context.Context, owner string) ([]domain.WalletTokenBalance, error) {
	accounts, err := c.balances.GetTokenAccountsByOwner(ctx, owner)
	if err != nil {
		return []domain.WalletTokenBalance{}, fmt.Errorf("fetch token accounts: %w", err)
	}
	observability.RecordBalanceRefresh()

	balances := make([]domain.WalletTokenBalance, 0, len(accounts))
	for _, acct := range accounts {
		if acct.RawAmount == 0 {
			continue
		}
		desc := c.Resolve(ctx, acct.Mint, acct.Decimals)
		if desc.Decimals != acct.Decimals {
			// Chain data is authoritative for scale
			desc.Decimals = acct.Decimals
		}
		balances = append(balances, domain.NewWalletTokenBalance(desc, acct.RawAmount))
	}

	sort.Slice(balances, func(i, j int) bool {
		return balances[i].UIAmount > balances[j].UIAmount
	})

	return balances, nil
}
