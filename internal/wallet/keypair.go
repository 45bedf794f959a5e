package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"solana-checkout/internal/txbuilder"
)

// Keypair is a local ed25519 signer, used for server-side checkout flows
// where the gateway holds the paying key. Browser-extension wallets sit
// behind the same interface on the client side.
type Keypair struct {
	priv      ed25519.PrivateKey
	address   string
	connected bool
}

// LoadKeypair reads a keypair file in the standard CLI format: a JSON
// array of 64 bytes, secret key followed by public key.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, fmt.Errorf("parse keypair file: %w", err)
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file holds %d bytes, want %d", len(nums), ed25519.PrivateKeySize)
	}

	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, n)
		}
		raw[i] = byte(n)
	}

	return NewKeypair(ed25519.PrivateKey(raw)), nil
}

// NewKeypair wraps an ed25519 private key.
func NewKeypair(priv ed25519.PrivateKey) *Keypair {
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		priv:    priv,
		address: base58.Encode(pub),
	}
}

// Connect marks the session active. Local keys have no handshake.
func (k *Keypair) Connect(_ context.Context) error {
	k.connected = true
	return nil
}

// Connected reports whether Connect has been called.
func (k *Keypair) Connected() bool {
	return k.connected
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return k.address
}

// SignTransaction fills this key's signature slot. The key must be among
// the transaction's required signers.
func (k *Keypair) SignTransaction(_ context.Context, tx *txbuilder.UnsignedTransaction) (*txbuilder.SignedTransaction, error) {
	msg := tx.Message

	slot := -1
	for i := 0; i < int(msg.Header.NumRequiredSignatures) && i < len(msg.AccountKeys); i++ {
		if msg.AccountKeys[i] == k.address {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("wallet %s is not a required signer", k.address)
	}

	msgBytes, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	signatures := make([][]byte, msg.Header.NumRequiredSignatures)
	for i := range signatures {
		signatures[i] = make([]byte, 64)
	}
	signatures[slot] = ed25519.Sign(k.priv, msgBytes)

	return &txbuilder.SignedTransaction{
		Signatures: signatures,
		Message:    msg,
	}, nil
}

var _ Wallet = (*Keypair)(nil)
