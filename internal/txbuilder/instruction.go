package txbuilder

import (
	"encoding/binary"

	"solana-checkout/internal/solana"
)

// AccountMeta describes how an instruction references an account.
type AccountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

// Instruction is an uncompiled instruction referencing accounts by address.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// SPL Token program instruction tags.
const tokenInstructionTransfer = 3

// NewTransferInstruction builds an SPL Token transfer moving rawAmount from
// the source token account to the destination token account, authorized by
// owner. Data layout: tag (u8) followed by amount (u64 little-endian).
func NewTransferInstruction(source, destination, owner string, rawAmount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], rawAmount)

	return Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// NewCreateAssociatedTokenAccountInstruction builds the associated token
// program's create instruction. The instruction is idempotent-safe in the
// payment flow because it is only added after the account was observed
// missing. Data is empty; the account list fully describes the creation.
func NewCreateAssociatedTokenAccountInstruction(payer, ata, owner, mint string) Instruction {
	return Instruction{
		ProgramID: solana.AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsWritable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: solana.SystemProgramID},
			{Pubkey: solana.TokenProgramID},
		},
	}
}
