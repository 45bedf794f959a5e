package solana

// Blockhash from getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// TokenAccount is one token holding of a wallet, from
// getTokenAccountsByOwner with jsonParsed encoding.
type TokenAccount struct {
	Pubkey    string // token account address
	Mint      string // mint of the held token
	RawAmount uint64 // smallest-unit amount
	Decimals  int
	UIAmount  float64
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int
	Err                interface{} // non-nil on execution failure
	ConfirmationStatus string      // "processed" | "confirmed" | "finalized"
}

// Confirmed reports whether the transaction reached at least confirmed
// commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}
