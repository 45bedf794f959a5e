package txbuilder

import (
	"context"
	"fmt"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/solana"
)

// ChainReader is the slice of the RPC surface the builder needs: a recent
// blockhash and account existence checks. The builder never signs or
// submits.
type ChainReader interface {
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Builder constructs unsigned settlement transactions.
type Builder struct {
	chain ChainReader
}

// NewBuilder creates a transaction builder backed by the given chain reader.
func NewBuilder(chain ChainReader) *Builder {
	return &Builder{chain: chain}
}

// BuildDirectTransfer constructs a transfer of rawAmount of tokenMint from
// the payer wallet to the recipient wallet, moving between their associated
// token accounts. If the recipient's token account does not exist, a
// creation instruction funded by the payer is prepended.
func (b *Builder) BuildDirectTransfer(ctx context.Context, tokenMint, from, to string, rawAmount uint64) (*UnsignedTransaction, error) {
	if rawAmount == 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}

	sourceATA, err := solana.DeriveAssociatedTokenAddress(from, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("derive source account: %w", err)
	}
	destATA, err := solana.DeriveAssociatedTokenAddress(to, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("derive destination account: %w", err)
	}

	var instructions []Instruction

	create, err := b.ensureTokenAccount(ctx, from, destATA, to, tokenMint)
	if err != nil {
		return nil, err
	}
	if create != nil {
		instructions = append(instructions, *create)
	}

	instructions = append(instructions, NewTransferInstruction(sourceATA, destATA, from, rawAmount))

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	msg, err := CompileMessage(from, blockhash.Blockhash, instructions)
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}

	return &UnsignedTransaction{Message: msg}, nil
}

// BuildSwapAndSettle merges the aggregator's swap transaction with the
// settlement leg: it decodes the swap payload, appends a transfer moving
// exactly route.OutAmount of the settlement token from the payer to the
// merchant, and recompiles with a fresh blockhash. The transferred amount
// comes from the route, never from a locally recomputed estimate.
func (b *Builder) BuildSwapAndSettle(ctx context.Context, swapTxBase64 string, route *domain.QuoteRoute, payer, merchant string) (*UnsignedTransaction, error) {
	if route == nil {
		return nil, fmt.Errorf("route required")
	}
	if route.OutAmount == 0 {
		return nil, fmt.Errorf("route has zero output amount")
	}

	swapTx, err := DeserializeTransaction(swapTxBase64)
	if err != nil {
		return nil, fmt.Errorf("decode swap payload: %w", err)
	}

	if fp := swapTx.Message.FeePayer(); fp != payer {
		return nil, fmt.Errorf("swap payload fee payer %s does not match payer %s", fp, payer)
	}

	instructions, err := swapTx.Message.Decompile()
	if err != nil {
		return nil, fmt.Errorf("decompile swap payload: %w", err)
	}

	payerATA, err := solana.DeriveAssociatedTokenAddress(payer, route.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("derive payer settlement account: %w", err)
	}
	merchantATA, err := solana.DeriveAssociatedTokenAddress(merchant, route.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("derive merchant settlement account: %w", err)
	}

	create, err := b.ensureTokenAccount(ctx, payer, merchantATA, merchant, route.OutputMint)
	if err != nil {
		return nil, err
	}
	if create != nil {
		instructions = append([]Instruction{*create}, instructions...)
	}

	instructions = append(instructions, NewTransferInstruction(payerATA, merchantATA, payer, route.OutAmount))

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	msg, err := CompileMessage(payer, blockhash.Blockhash, instructions)
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}

	return &UnsignedTransaction{Message: msg}, nil
}

// ensureTokenAccount returns a creation instruction when the token account
// is missing, nil when it already exists. Building only fails here when the
// existence check itself fails, never because the account is absent.
func (b *Builder) ensureTokenAccount(ctx context.Context, payer, ata, owner, mint string) (*Instruction, error) {
	info, err := b.chain.GetAccountInfo(ctx, ata)
	if err != nil {
		return nil, fmt.Errorf("check token account %s: %w", ata, err)
	}
	if info != nil {
		return nil, nil
	}
	instr := NewCreateAssociatedTokenAccountInstruction(payer, ata, owner, mint)
	return &instr, nil
}
