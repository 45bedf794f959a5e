package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"

	"solana-checkout/internal/txbuilder"
)

func newTestKeypair(t *testing.T) *Keypair {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewKeypair(priv)
}

func testAddr(b byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return base58.Encode(raw)
}

func TestKeypair_Address(t *testing.T) {
	kp := newTestKeypair(t)

	raw, err := base58.Decode(kp.Address())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("expected 32-byte address, got %d", len(raw))
	}
}

func TestKeypair_Connect(t *testing.T) {
	kp := newTestKeypair(t)

	if kp.Connected() {
		t.Error("expected not connected before Connect")
	}

	if err := kp.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if !kp.Connected() {
		t.Error("expected connected after Connect")
	}
}

func TestKeypair_SignTransaction(t *testing.T) {
	kp := newTestKeypair(t)

	transfer := txbuilder.NewTransferInstruction(testAddr(2), testAddr(3), kp.Address(), 1000)
	msg, err := txbuilder.CompileMessage(kp.Address(), testAddr(9), []txbuilder.Instruction{transfer})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}

	signed, err := kp.SignTransaction(context.Background(), &txbuilder.UnsignedTransaction{Message: msg})
	if err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}

	if len(signed.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(signed.Signatures))
	}

	// Signature verifies over the serialized message
	msgBytes, err := msg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	pub, err := base58.Decode(kp.Address())
	if err != nil {
		t.Fatalf("decode pubkey: %v", err)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), msgBytes, signed.Signatures[0]) {
		t.Error("signature does not verify")
	}

	// Signed transaction serializes to wire form
	if _, err := signed.SerializeBase64(); err != nil {
		t.Errorf("SerializeBase64: %v", err)
	}
}

func TestKeypair_SignTransaction_NotASigner(t *testing.T) {
	kp := newTestKeypair(t)
	other := testAddr(7)

	transfer := txbuilder.NewTransferInstruction(testAddr(2), testAddr(3), other, 1000)
	msg, err := txbuilder.CompileMessage(other, testAddr(9), []txbuilder.Instruction{transfer})
	if err != nil {
		t.Fatalf("CompileMessage: %v", err)
	}

	_, err = kp.SignTransaction(context.Background(), &txbuilder.UnsignedTransaction{Message: msg})
	if err == nil {
		t.Error("expected error when wallet is not a required signer")
	}
}

func TestLoadKeypair(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	nums := make([]int, len(priv))
	for i, b := range priv {
		nums[i] = int(b)
	}
	data, err := json.Marshal(nums)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}

	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write keypair file: %v", err)
	}

	kp, err := LoadKeypair(path)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}

	if kp.Address() != NewKeypair(priv).Address() {
		t.Error("loaded keypair has different address")
	}
}

func TestLoadKeypair_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, []byte(`[1,2,3]`), 0600); err != nil {
		t.Fatalf("write keypair file: %v", err)
	}

	if _, err := LoadKeypair(path); err == nil {
		t.Error("expected error for short keypair")
	}

	if _, err := LoadKeypair(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
