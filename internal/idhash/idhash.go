package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeAttemptID computes a deterministic payment attempt ID using SHA256.
// Formula: SHA256(payer|input_mint|settlement_mint|raw_amount|nonce)
// Returns hex-encoded hash (64 characters). The nonce keeps retries of the
// same logical payment distinct.
func ComputeAttemptID(payer, inputMint, settlementMint string, rawAmount uint64, nonce int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		payer,
		inputMint,
		settlementMint,
		rawAmount,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
