package stub

import (
	"context"
	"sync"

	"solana-checkout/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Signature statuses are
// scripted as a sequence so a test can model a transaction that is unknown
// on the first poll and confirmed on a later one.
type RPCClient struct {
	mu sync.Mutex

	Blockhash     *solana.Blockhash
	Balances      map[string]uint64
	TokenAccounts map[string][]solana.TokenAccount
	Accounts      map[string]*solana.AccountInfo
	Transactions  map[string]*solana.Transaction

	// SendSignature is returned by SendTransaction when SendErr is nil.
	SendSignature string
	SendErr       error
	SentRaw       []string // base64 payloads passed to SendTransaction

	// StatusScript is consumed one entry per GetSignatureStatuses call;
	// the last entry repeats once the script is exhausted.
	StatusScript [][]*solana.SignatureStatus
	statusCalls  int

	// Errors override individual methods when set.
	BlockhashErr error
	BalanceErr   error
	AccountsErr  error
	StatusErr    error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]uint64),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		Accounts:      make(map[string]*solana.AccountInfo),
		Transactions:  make(map[string]*solana.Transaction),
		Blockhash: &solana.Blockhash{
			Blockhash:            "11111111111111111111111111111111",
			LastValidBlockHeight: 1000,
		},
	}
}

// GetLatestBlockhash returns the scripted blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	return c.Blockhash, nil
}

// GetBalance returns the scripted lamport balance for an address.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[address], nil
}

// GetTokenAccountsByOwner returns the scripted token accounts for a wallet.
func (c *RPCClient) GetTokenAccountsByOwner(_ context.Context, owner string) ([]solana.TokenAccount, error) {
	if c.AccountsErr != nil {
		return nil, c.AccountsErr
	}
	return c.TokenAccounts[owner], nil
}

// GetAccountInfo returns the scripted account info, or nil if absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	return c.Accounts[pubkey], nil
}

// SendTransaction records the payload and returns the scripted signature.
func (c *RPCClient) SendTransaction(_ context.Context, rawBase64 string) (string, error) {
	c.mu.Lock()
	c.SentRaw = append(c.SentRaw, rawBase64)
	c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	return c.SendSignature, nil
}

// GetSignatureStatuses consumes the next entry of the status script.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	if c.StatusErr != nil {
		return nil, c.StatusErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.StatusScript) == 0 {
		return make([]*solana.SignatureStatus, len(signatures)), nil
	}
	idx := c.statusCalls
	if idx >= len(c.StatusScript) {
		idx = len(c.StatusScript) - 1
	}
	c.statusCalls++
	return c.StatusScript[idx], nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	return c.Transactions[signature], nil
}

// AddTokenAccount adds a token holding for a wallet.
func (c *RPCClient) AddTokenAccount(owner string, acct solana.TokenAccount) {
	c.TokenAccounts[owner] = append(c.TokenAccounts[owner], acct)
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}

var _ solana.RPCClient = (*RPCClient)(nil)
