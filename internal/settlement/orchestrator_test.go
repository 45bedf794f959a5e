package settlement

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/quote"
	qstub "solana-checkout/internal/quote/stub"
	"solana-checkout/internal/solana"
	sstub "solana-checkout/internal/solana/stub"
	"solana-checkout/internal/storage/memory"
	"solana-checkout/internal/txbuilder"
	wstub "solana-checkout/internal/wallet/stub"
)

// testAddr returns a valid base58 address made of 32 repeated bytes.
func testAddr(b byte) string {
	raw := bytes.Repeat([]byte{b}, 32)
	return base58.Encode(raw)
}

var (
	payerAddr      = testAddr(1)
	merchantAddr   = testAddr(2)
	settlementMint = testAddr(3)
	inputMint      = testAddr(4)
)

// fixture bundles the orchestrator with every stub it drives.
type fixture struct {
	orch     *Orchestrator
	wallet   *wstub.Wallet
	quotes   *qstub.Service
	rpc      *sstub.RPCClient
	notifier *sstub.Notifier
	receipts *memory.ReceiptStore
	states   *[]domain.AttemptState
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	w := &wstub.Wallet{Addr: payerAddr, IsConnected: true}
	q := &qstub.Service{}
	rpc := sstub.NewRPCClient()
	rpc.SendSignature = "TestSignature1111"
	notifier := &sstub.Notifier{}
	receipts := memory.NewReceiptStore()

	var states []domain.AttemptState

	opts := Options{
		Wallet:   w,
		Quotes:   q,
		Builder:  txbuilder.NewBuilder(rpc),
		RPC:      rpc,
		Notifier: notifier,
		Receipts: receipts,
		Target: domain.SettlementTarget{
			MerchantAddress:    merchantAddr,
			SettlementMint:     settlementMint,
			SettlementDecimals: 6,
			DesiredAmount:      decimal.NewFromInt(10),
		},
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 250 * time.Millisecond,
		Logger:         log.New(&bytes.Buffer{}, "[settlement] ", 0),
		OnStateChange: func(a domain.PaymentAttempt) {
			states = append(states, a.State)
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	orch, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{
		orch:     orch,
		wallet:   w,
		quotes:   q,
		rpc:      rpc,
		notifier: notifier,
		receipts: receipts,
		states:   &states,
	}
}

// fundPayer gives the payer wallet a token holding.
func (f *fixture) fundPayer(mint string, raw uint64) {
	f.rpc.AddTokenAccount(payerAddr, solana.TokenAccount{
		Pubkey:    testAddr(50),
		Mint:      mint,
		RawAmount: raw,
		Decimals:  6,
	})
}

// scriptRoute loads the quote stub with a route into the settlement mint.
func (f *fixture) scriptRoute(t *testing.T) *domain.QuoteRoute {
	t.Helper()

	route := &domain.QuoteRoute{
		InputMint:            inputMint,
		OutputMint:           settlementMint,
		InAmount:             123_456_789,
		OutAmount:            10_000_000,
		OtherAmountThreshold: 124_000_000,
		SlippageBps:          50,
		Mode:                 domain.SwapModeExactOut,
	}
	f.quotes.Route = route
	f.quotes.SwapTx = swapPayload(t, payerAddr, settlementMint)
	return route
}

// swapPayload builds a stand-in aggregator transaction paying out to the
// payer's settlement token account.
func swapPayload(t *testing.T, payer, mint string) string {
	t.Helper()

	payerATA, err := solana.DeriveAssociatedTokenAddress(payer, mint)
	if err != nil {
		t.Fatalf("derive payer ATA: %v", err)
	}

	swapInstr := txbuilder.Instruction{
		ProgramID: testAddr(200),
		Accounts: []txbuilder.AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: payerATA, IsWritable: true},
			{Pubkey: solana.TokenProgramID},
		},
		Data: []byte{0xde, 0xad, 0xbe, 0xef},
	}

	msg, err := txbuilder.CompileMessage(payer, testAddr(9), []txbuilder.Instruction{swapInstr})
	if err != nil {
		t.Fatalf("compile swap payload: %v", err)
	}

	raw, err := (&txbuilder.UnsignedTransaction{Message: msg}).SerializeBase64()
	if err != nil {
		t.Fatalf("serialize swap payload: %v", err)
	}
	return raw
}

func TestOrchestrator_DirectPathSkipsQuoting(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)

	sig, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if sig != "TestSignature1111" {
		t.Errorf("expected scripted signature, got %s", sig)
	}

	// Paying in the settlement token must never touch the quote service
	if f.quotes.QuoteCalls != 0 {
		t.Errorf("expected 0 quote calls on direct path, got %d", f.quotes.QuoteCalls)
	}
	if f.quotes.SwapCalls != 0 {
		t.Errorf("expected 0 swap calls on direct path, got %d", f.quotes.SwapCalls)
	}

	for _, s := range *f.states {
		if s == domain.StateQuoting {
			t.Error("direct path entered quoting state")
		}
	}

	attempt := f.orch.CurrentAttempt()
	if attempt == nil || attempt.State != domain.StateSettled {
		t.Fatalf("expected settled attempt, got %+v", attempt)
	}

	receipt, err := f.receipts.GetBySignature(context.Background(), sig)
	if err != nil {
		t.Fatalf("receipt lookup: %v", err)
	}
	if receipt.State != domain.StateSettled {
		t.Errorf("expected settled receipt, got %s", receipt.State)
	}
	if receipt.InputMint != settlementMint {
		t.Errorf("expected input mint %s, got %s", settlementMint, receipt.InputMint)
	}
}

func TestOrchestrator_SwapPathSettles(t *testing.T) {
	f := newFixture(t, nil)
	route := f.scriptRoute(t)
	f.fundPayer(inputMint, 200_000_000)

	sig, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if f.quotes.QuoteCalls != 1 {
		t.Errorf("expected 1 quote call, got %d", f.quotes.QuoteCalls)
	}
	if f.quotes.LastMode != domain.SwapModeExactOut {
		t.Errorf("expected ExactOut quote, got %s", f.quotes.LastMode)
	}
	if f.quotes.LastAmount != 10_000_000 {
		t.Errorf("expected quote for 10000000, got %d", f.quotes.LastAmount)
	}
	if len(f.wallet.Signed) != 1 {
		t.Fatalf("expected 1 signing request, got %d", len(f.wallet.Signed))
	}
	if len(f.rpc.SentRaw) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.rpc.SentRaw))
	}

	want := []domain.AttemptState{
		domain.StateQuoting,
		domain.StateBuilding,
		domain.StateAwaitingSignature,
		domain.StateSubmitting,
		domain.StateConfirming,
		domain.StateSettled,
	}
	got := *f.states
	if len(got) != len(want) {
		t.Fatalf("expected %d state changes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	receipt, err := f.receipts.GetBySignature(context.Background(), sig)
	if err != nil {
		t.Fatalf("receipt lookup: %v", err)
	}
	if receipt.InAmount != route.InAmount {
		t.Errorf("expected receipt inAmount %d, got %d", route.InAmount, receipt.InAmount)
	}
	if receipt.OutAmount != route.OutAmount {
		t.Errorf("expected receipt outAmount %d, got %d", route.OutAmount, receipt.OutAmount)
	}
}

func TestOrchestrator_QuoteUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.quotes.QuoteErr = domain.ErrQuoteUnavailable

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint)
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Fatalf("expected ErrQuoteUnavailable, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.State != domain.StateFailed {
		t.Errorf("expected failed state, got %s", attempt.State)
	}
	if attempt.Failure != domain.FailureQuoteUnavailable {
		t.Errorf("expected QUOTE_UNAVAILABLE, got %s", attempt.Failure)
	}

	// Failing to quote must stop the flow before any signature or submission
	if len(f.wallet.Signed) != 0 {
		t.Errorf("wallet was asked to sign after quote failure")
	}
	if len(f.rpc.SentRaw) != 0 {
		t.Errorf("transaction was submitted after quote failure")
	}
}

func TestOrchestrator_SettlementMintMismatch(t *testing.T) {
	f := newFixture(t, nil)
	route := f.scriptRoute(t)
	route.OutputMint = testAddr(99)
	f.fundPayer(inputMint, 200_000_000)

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint)
	if !errors.Is(err, domain.ErrSettlementMintMismatch) {
		t.Fatalf("expected ErrSettlementMintMismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Errorf("mismatch should map to the quote failure code, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.Failure != domain.FailureQuoteUnavailable {
		t.Errorf("expected QUOTE_UNAVAILABLE, got %s", attempt.Failure)
	}
}

func TestOrchestrator_SignatureRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.RejectSign = true
	f.fundPayer(settlementMint, 20_000_000)

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrSignatureRejected) {
		t.Fatalf("expected ErrSignatureRejected, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.Failure != domain.FailureSignatureRejected {
		t.Errorf("expected SIGNATURE_REJECTED, got %s", attempt.Failure)
	}
	if len(f.rpc.SentRaw) != 0 {
		t.Error("rejected transaction was still submitted")
	}
}

func TestOrchestrator_SubmissionError(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)
	f.rpc.SendErr = errors.New("blockhash not found")

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.Failure != domain.FailureSubmission {
		t.Errorf("expected SUBMISSION_ERROR, got %s", attempt.Failure)
	}
}

func TestOrchestrator_InsufficientBalanceFailsBeforeSigning(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 1_000) // far below the desired 10_000_000

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
	if len(f.wallet.Signed) != 0 {
		t.Error("wallet was asked to sign despite insufficient balance")
	}
}

func TestOrchestrator_OnChainExecutionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)
	f.notifier.Result = &solana.SignatureResult{
		Err: map[string]interface{}{"InstructionError": []interface{}{1.0, "Custom"}},
	}

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrSettlement) {
		t.Fatalf("expected ErrSettlement, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.Failure != domain.FailureSettlement {
		t.Errorf("expected SETTLEMENT_ERROR, got %s", attempt.Failure)
	}

	// The signature is preserved on the failed receipt for audit
	receipt, rerr := f.receipts.GetByAttemptID(context.Background(), attempt.ID)
	if rerr != nil {
		t.Fatalf("receipt lookup: %v", rerr)
	}
	if receipt.TxSignature == nil || *receipt.TxSignature != "TestSignature1111" {
		t.Error("failed receipt lost its transaction signature")
	}
}

func TestOrchestrator_ConfirmationTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Notifier = nil
		o.ConfirmTimeout = 40 * time.Millisecond
	})
	f.fundPayer(settlementMint, 20_000_000)
	// Empty status script: the signature stays unknown on every poll

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.Failure != domain.FailureConfirmationTimeout {
		t.Errorf("expected CONFIRMATION_TIMEOUT, got %s", attempt.Failure)
	}
}

func TestOrchestrator_PollingConfirms(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Notifier = nil
	})
	f.fundPayer(settlementMint, 20_000_000)
	f.rpc.StatusScript = [][]*solana.SignatureStatus{
		{nil}, // first poll: not yet visible
		{{Slot: 100, ConfirmationStatus: "confirmed"}},
	}

	sig, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if sig == "" {
		t.Error("expected signature on settlement")
	}
}

func TestOrchestrator_NotifierFailureFallsBackToPolling(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)
	f.notifier.Err = errors.New("websocket connection closed")
	f.rpc.StatusScript = [][]*solana.SignatureStatus{
		{{Slot: 100, ConfirmationStatus: "finalized"}},
	}

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if err != nil {
		t.Fatalf("expected polling fallback to settle, got %v", err)
	}
	if len(f.notifier.Waited) != 1 {
		t.Errorf("expected notifier to be tried first, waited %v", f.notifier.Waited)
	}
}

func TestOrchestrator_WalletNotConnected(t *testing.T) {
	f := newFixture(t, nil)
	f.wallet.IsConnected = false

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint)
	if !errors.Is(err, domain.ErrWalletNotConnected) {
		t.Fatalf("expected ErrWalletNotConnected, got %v", err)
	}

	// No attempt is created; the session stays idle
	if attempt := f.orch.CurrentAttempt(); attempt != nil {
		t.Errorf("expected no attempt, got %+v", attempt)
	}
}

func TestOrchestrator_SecondPaymentRejectedWhileInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once bool

	f := newFixture(t, func(o *Options) {
		o.OnStateChange = func(a domain.PaymentAttempt) {
			if a.State == domain.StateQuoting && !once {
				once = true
				close(entered)
				<-release
			}
		}
	})
	f.scriptRoute(t)
	f.fundPayer(inputMint, 200_000_000)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint)
		done <- err
	}()

	<-entered
	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint)
	if !errors.Is(err, domain.ErrPaymentInProgress) {
		t.Fatalf("expected ErrPaymentInProgress, got %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	// With the first attempt terminal, a new one is accepted again
	f.orch.Acknowledge()
	if _, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, inputMint); err != nil {
		t.Fatalf("retry after settlement: %v", err)
	}
}

func TestOrchestrator_Acknowledge(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)

	if _, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, settlementMint); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if f.orch.CurrentAttempt() == nil {
		t.Fatal("expected terminal attempt before acknowledge")
	}
	f.orch.Acknowledge()
	if f.orch.CurrentAttempt() != nil {
		t.Error("expected idle session after acknowledge")
	}
}

func TestOrchestrator_PreviewQuote(t *testing.T) {
	f := newFixture(t, nil)
	route := f.scriptRoute(t)

	// Direct path never prices
	got, err := f.orch.PreviewQuote(context.Background(), decimal.Zero, settlementMint)
	if err != nil || got != nil {
		t.Fatalf("expected nil preview on direct path, got %v, %v", got, err)
	}
	if f.quotes.QuoteCalls != 0 {
		t.Errorf("direct preview called the quote service %d times", f.quotes.QuoteCalls)
	}

	got, err = f.orch.PreviewQuote(context.Background(), decimal.Zero, inputMint)
	if err != nil {
		t.Fatalf("PreviewQuote: %v", err)
	}
	if got.InAmount != route.InAmount {
		t.Errorf("expected route inAmount %d, got %d", route.InAmount, got.InAmount)
	}
}

// hookedQuotes lets a test run code inside GetQuote.
type hookedQuotes struct {
	quote.Service
	onQuote func()
}

func (h *hookedQuotes) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, mode domain.SwapMode, slippageBps int) (*domain.QuoteRoute, error) {
	h.onQuote()
	return h.Service.GetQuote(ctx, inputMint, outputMint, amount, mode, slippageBps)
}

func TestOrchestrator_PreviewQuoteSuperseded(t *testing.T) {
	inner := &qstub.Service{}
	hooked := &hookedQuotes{Service: inner}

	f := newFixture(t, func(o *Options) {
		o.Quotes = hooked
	})
	inner.Route = &domain.QuoteRoute{
		InputMint:  inputMint,
		OutputMint: settlementMint,
		InAmount:   100,
		OutAmount:  10_000_000,
		Mode:       domain.SwapModeExactOut,
	}

	// A newer preview arrives while the first request is in flight
	hooked.onQuote = func() {
		f.orch.previewSeq.Add(1)
	}

	_, err := f.orch.PreviewQuote(context.Background(), decimal.Zero, inputMint)
	if !errors.Is(err, ErrQuoteSuperseded) {
		t.Fatalf("expected ErrQuoteSuperseded, got %v", err)
	}
}

func TestOrchestrator_PerCallAmountOverridesDefault(t *testing.T) {
	f := newFixture(t, nil)
	f.scriptRoute(t)
	f.fundPayer(inputMint, 200_000_000)

	_, err := f.orch.ProcessPayment(context.Background(), decimal.NewFromInt(25), inputMint)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	// 25 units at 6 decimals, not the configured default of 10
	if f.quotes.LastAmount != 25_000_000 {
		t.Errorf("expected quote for 25000000, got %d", f.quotes.LastAmount)
	}
}

func TestOrchestrator_EmptyMintMeansSettlementToken(t *testing.T) {
	f := newFixture(t, nil)
	f.fundPayer(settlementMint, 20_000_000)

	_, err := f.orch.ProcessPayment(context.Background(), decimal.Zero, "")
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if f.quotes.QuoteCalls != 0 {
		t.Errorf("expected direct path, got %d quote calls", f.quotes.QuoteCalls)
	}

	attempt := f.orch.CurrentAttempt()
	if attempt.TokenMint != settlementMint {
		t.Errorf("expected attempt mint %s, got %s", settlementMint, attempt.TokenMint)
	}
}

func TestNew_Validation(t *testing.T) {
	base := Options{
		Wallet:  &wstub.Wallet{Addr: payerAddr, IsConnected: true},
		Quotes:  &qstub.Service{},
		Builder: txbuilder.NewBuilder(sstub.NewRPCClient()),
		RPC:     sstub.NewRPCClient(),
		Target: domain.SettlementTarget{
			MerchantAddress:    merchantAddr,
			SettlementMint:     settlementMint,
			SettlementDecimals: 6,
			DesiredAmount:      decimal.NewFromInt(10),
		},
	}

	if _, err := New(base); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}

	missingWallet := base
	missingWallet.Wallet = nil
	if _, err := New(missingWallet); err == nil {
		t.Error("expected error for missing wallet")
	}

	badTarget := base
	badTarget.Target.DesiredAmount = decimal.Zero
	if _, err := New(badTarget); err == nil {
		t.Error("expected error for invalid target")
	}
}
