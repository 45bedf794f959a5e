// Package settlement drives a payment attempt through its state machine:
// idle → quoting → building → awaitingSignature → submitting → confirming
// → settled | failed. One orchestrator serves one checkout session.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"solana-checkout/internal/domain"
	"solana-checkout/internal/idhash"
	"solana-checkout/internal/observability"
	"solana-checkout/internal/quote"
	"solana-checkout/internal/solana"
	"solana-checkout/internal/storage"
	"solana-checkout/internal/txbuilder"
	"solana-checkout/internal/wallet"
)

// Default timing configuration.
const (
	DefaultSlippageBps    = 50
	DefaultPollInterval   = 2 * time.Second
	DefaultConfirmTimeout = 60 * time.Second
)

// ErrQuoteSuperseded is returned by PreviewQuote when a newer preview was
// requested before this one resolved. The stale route must not be used.
var ErrQuoteSuperseded = errors.New("quote superseded by a newer request")

// Options configures the orchestrator.
type Options struct {
	Wallet  wallet.Wallet
	Quotes  quote.Service
	Builder *txbuilder.Builder
	RPC     solana.RPCClient

	// Notifier, when set, waits for confirmations over WebSocket push.
	// Polling remains the fallback.
	Notifier solana.SignatureNotifier

	// Receipts, when set, records every terminal attempt. Optional: the
	// payment flow itself never reads receipts.
	Receipts storage.ReceiptStore

	Target domain.SettlementTarget

	SlippageBps    int
	PollInterval   time.Duration
	ConfirmTimeout time.Duration

	Logger *log.Logger

	// OnStateChange observes every attempt state change with a copy of the
	// attempt. Called synchronously; keep it fast.
	OnStateChange func(domain.PaymentAttempt)
}

// Orchestrator ties catalog, quotes, builder, wallet and RPC together.
// Only one payment attempt may be in flight at a time.
type Orchestrator struct {
	wallet   wallet.Wallet
	quotes   quote.Service
	builder  *txbuilder.Builder
	rpc      solana.RPCClient
	notifier solana.SignatureNotifier
	receipts storage.ReceiptStore
	target   domain.SettlementTarget

	slippageBps    int
	pollInterval   time.Duration
	confirmTimeout time.Duration

	logger        *log.Logger
	onStateChange func(domain.PaymentAttempt)

	mu         sync.Mutex
	attempt    *domain.PaymentAttempt
	attemptRaw uint64 // desired settlement amount of the current attempt
	active     bool

	previewSeq atomic.Uint64
}

// New creates a settlement orchestrator for one checkout session.
func New(opts Options) (*Orchestrator, error) {
	if opts.Wallet == nil {
		return nil, fmt.Errorf("wallet required")
	}
	if opts.Quotes == nil {
		return nil, fmt.Errorf("quote service required")
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("builder required")
	}
	if opts.RPC == nil {
		return nil, fmt.Errorf("rpc client required")
	}
	if err := opts.Target.Validate(); err != nil {
		return nil, fmt.Errorf("settlement target: %w", err)
	}

	if opts.SlippageBps <= 0 {
		opts.SlippageBps = DefaultSlippageBps
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Orchestrator{
		wallet:         opts.Wallet,
		quotes:         opts.Quotes,
		builder:        opts.Builder,
		rpc:            opts.RPC,
		notifier:       opts.Notifier,
		receipts:       opts.Receipts,
		target:         opts.Target,
		slippageBps:    opts.SlippageBps,
		pollInterval:   opts.PollInterval,
		confirmTimeout: opts.ConfirmTimeout,
		logger:         opts.Logger,
		onStateChange:  opts.OnStateChange,
	}, nil
}

// CurrentAttempt returns a copy of the attempt under observation, or nil
// when the session is idle.
func (o *Orchestrator) CurrentAttempt() *domain.PaymentAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return nil
	}
	attemptCopy := *o.attempt
	return &attemptCopy
}

// Acknowledge clears a terminal attempt, returning the session to idle.
// In-flight attempts are not touched.
func (o *Orchestrator) Acknowledge() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt != nil && o.attempt.State.Terminal() {
		o.attempt = nil
	}
}

// PreviewQuote prices the payment in the selected token without starting an
// attempt. A zero amount falls back to the target's configured amount. A
// preview issued after this one supersedes it: the stale result is discarded
// with ErrQuoteSuperseded rather than shown.
func (o *Orchestrator) PreviewQuote(ctx context.Context, amount decimal.Decimal, tokenMint string) (*domain.QuoteRoute, error) {
	if tokenMint == "" || tokenMint == o.target.SettlementMint {
		return nil, nil // direct transfer, nothing to price
	}

	desiredRaw, err := o.desiredRaw(amount)
	if err != nil {
		return nil, err
	}

	seq := o.previewSeq.Add(1)

	route, err := o.quotes.GetQuote(ctx, tokenMint, o.target.SettlementMint, desiredRaw, domain.SwapModeExactOut, o.slippageBps)
	if err != nil {
		observability.RecordQuote(string(domain.SwapModeExactOut), "error")
		return nil, err
	}
	observability.RecordQuote(string(domain.SwapModeExactOut), "ok")

	if o.previewSeq.Load() != seq {
		return nil, ErrQuoteSuperseded
	}
	return route, nil
}

// ProcessPayment runs one payment attempt to a terminal state and returns
// the transaction signature on settlement. The amount is in settlement-token
// units; zero falls back to the target's configured amount. An empty token
// mint selects the settlement token itself (direct transfer). A second call
// while an attempt is in flight fails with ErrPaymentInProgress; a call
// without an active wallet connection fails with ErrWalletNotConnected and
// the session stays idle. Retries are always brand-new attempts re-quoted
// from scratch.
func (o *Orchestrator) ProcessPayment(ctx context.Context, amount decimal.Decimal, tokenMint string) (string, error) {
	if o.wallet == nil || !o.wallet.Connected() {
		return "", domain.ErrWalletNotConnected
	}
	if tokenMint == "" {
		tokenMint = o.target.SettlementMint
	}

	desiredRaw, err := o.desiredRaw(amount)
	if err != nil {
		return "", err
	}

	payer := o.wallet.Address()
	now := time.Now()

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return "", domain.ErrPaymentInProgress
	}
	attempt := &domain.PaymentAttempt{
		ID:        idhash.ComputeAttemptID(payer, tokenMint, o.target.SettlementMint, desiredRaw, now.UnixMilli()),
		State:     domain.StateIdle,
		TokenMint: tokenMint,
		StartedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
	o.attempt = attempt
	o.attemptRaw = desiredRaw
	o.active = true
	o.mu.Unlock()

	observability.SetActiveAttempts(1)
	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
		observability.SetActiveAttempts(0)
	}()

	signature, err := o.run(ctx, attempt, payer, tokenMint, desiredRaw, now)
	if err != nil {
		return "", err
	}
	return signature, nil
}

// run drives the attempt through the state machine. Any returned error has
// already been applied to the attempt as a terminal failure.
func (o *Orchestrator) run(ctx context.Context, attempt *domain.PaymentAttempt, payer, tokenMint string, desiredRaw uint64, startedAt time.Time) (string, error) {
	direct := tokenMint == o.target.SettlementMint

	var route *domain.QuoteRoute
	var unsigned *txbuilder.UnsignedTransaction

	if direct {
		// Same-asset settlement skips quoting entirely
		o.transition(attempt, domain.StateBuilding)
	} else {
		o.transition(attempt, domain.StateQuoting)

		r, err := o.quotes.GetQuote(ctx, tokenMint, o.target.SettlementMint, desiredRaw, domain.SwapModeExactOut, o.slippageBps)
		if err != nil {
			observability.RecordQuote(string(domain.SwapModeExactOut), "error")
			if !errors.Is(err, domain.ErrQuoteUnavailable) {
				err = fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
			}
			return "", o.fail(attempt, startedAt, err)
		}
		observability.RecordQuote(string(domain.SwapModeExactOut), "ok")

		if r.OutputMint != "" && r.OutputMint != o.target.SettlementMint {
			// Configuration error, never silently resolved
			err := fmt.Errorf("%w: %w", domain.ErrQuoteUnavailable, domain.ErrSettlementMintMismatch)
			return "", o.fail(attempt, startedAt, err)
		}

		route = r
		o.setRoute(attempt, route)
		o.transition(attempt, domain.StateBuilding)
	}

	// Insufficient input funds surface before the wallet is asked to sign
	if err := o.checkBalance(ctx, payer, tokenMint, desiredRaw, route); err != nil {
		return "", o.fail(attempt, startedAt, err)
	}

	if direct {
		tx, err := o.builder.BuildDirectTransfer(ctx, tokenMint, payer, o.target.MerchantAddress, desiredRaw)
		if err != nil {
			return "", o.fail(attempt, startedAt, fmt.Errorf("%w: build transfer: %v", domain.ErrSubmission, err))
		}
		unsigned = tx
	} else {
		payload, err := o.quotes.GetSwapTransaction(ctx, route, payer, "")
		if err != nil {
			return "", o.fail(attempt, startedAt, fmt.Errorf("%w: swap transaction: %v", domain.ErrQuoteUnavailable, err))
		}
		tx, err := o.builder.BuildSwapAndSettle(ctx, payload, route, payer, o.target.MerchantAddress)
		if err != nil {
			return "", o.fail(attempt, startedAt, fmt.Errorf("%w: build swap: %v", domain.ErrSubmission, err))
		}
		unsigned = tx
	}

	o.transition(attempt, domain.StateAwaitingSignature)

	signed, err := o.wallet.SignTransaction(ctx, unsigned)
	if err != nil {
		if !errors.Is(err, domain.ErrSignatureRejected) {
			err = fmt.Errorf("%w: %v", domain.ErrSignatureRejected, err)
		}
		return "", o.fail(attempt, startedAt, err)
	}

	o.transition(attempt, domain.StateSubmitting)

	rawBase64, err := signed.SerializeBase64()
	if err != nil {
		return "", o.fail(attempt, startedAt, fmt.Errorf("%w: serialize: %v", domain.ErrSubmission, err))
	}

	signature, err := o.rpc.SendTransaction(ctx, rawBase64)
	if err != nil {
		return "", o.fail(attempt, startedAt, fmt.Errorf("%w: %v", domain.ErrSubmission, err))
	}

	o.setSignature(attempt, signature)
	o.transition(attempt, domain.StateConfirming)

	// Once submitted the outcome must resolve even if the caller abandons
	// the attempt: confirmation runs on a detached, bounded context.
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.confirmTimeout)
	defer cancel()

	submitted := time.Now()
	if err := o.confirm(confirmCtx, signature); err != nil {
		return "", o.fail(attempt, startedAt, err)
	}
	observability.RecordConfirmation(time.Since(submitted).Seconds())

	o.transition(attempt, domain.StateSettled)
	observability.RecordPayment("settled", time.Since(startedAt).Seconds())
	o.writeReceipt(attempt, payer, desiredRaw)

	o.logger.Printf("[settlement] attempt %s settled: %s", attempt.ID, signature)
	return signature, nil
}

// checkBalance verifies the payer holds enough of the input token before
// any signature is requested. The required amount is the route's worst-case
// spend on the swap path, the desired amount on the direct path.
func (o *Orchestrator) checkBalance(ctx context.Context, payer, tokenMint string, desiredRaw uint64, route *domain.QuoteRoute) error {
	required := desiredRaw
	if route != nil {
		required = route.InAmount
		if route.OtherAmountThreshold > required {
			required = route.OtherAmountThreshold
		}
	}

	accounts, err := o.rpc.GetTokenAccountsByOwner(ctx, payer)
	if err != nil {
		// Balance check is advisory; let submission surface the real error
		o.logger.Printf("[settlement] balance pre-check skipped: %v", err)
		return nil
	}

	var held uint64
	for _, acct := range accounts {
		if acct.Mint == tokenMint {
			held += acct.RawAmount
		}
	}
	if held < required {
		return fmt.Errorf("%w: insufficient balance: hold %d, need %d", domain.ErrSubmission, held, required)
	}
	return nil
}

// confirm waits for the signature to resolve, preferring WebSocket push and
// falling back to bounded status polling. A deadline produces the
// distinguished unknown-outcome error, never a confirmed failure.
func (o *Orchestrator) confirm(ctx context.Context, signature string) error {
	if o.notifier != nil {
		result, err := o.notifier.WaitForSignature(ctx, signature)
		if err == nil {
			if result.Err != nil {
				return fmt.Errorf("%w: %v", domain.ErrSettlement, result.Err)
			}
			return o.verifyExecution(ctx, signature)
		}
		if ctx.Err() != nil {
			return domain.ErrConfirmationTimeout
		}
		o.logger.Printf("[settlement] websocket confirmation failed, polling: %v", err)
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.ErrConfirmationTimeout
		case <-ticker.C:
			statuses, err := o.rpc.GetSignatureStatuses(ctx, []string{signature})
			if err != nil {
				if ctx.Err() != nil {
					return domain.ErrConfirmationTimeout
				}
				o.logger.Printf("[settlement] status poll: %v", err)
				continue
			}
			if len(statuses) == 0 || statuses[0] == nil {
				continue // not yet visible
			}
			status := statuses[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", domain.ErrSettlement, status.Err)
			}
			if status.Confirmed() {
				return o.verifyExecution(ctx, signature)
			}
		}
	}
}

// verifyExecution double-checks the confirmed transaction's metadata for an
// execution error. Best-effort: an unreachable transaction record does not
// fail a confirmed payment.
func (o *Orchestrator) verifyExecution(ctx context.Context, signature string) error {
	tx, err := o.rpc.GetTransaction(ctx, signature)
	if err != nil || tx == nil {
		return nil
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSettlement, tx.Meta.Err)
	}
	return nil
}

// transition moves the attempt to the next state and notifies the observer.
func (o *Orchestrator) transition(attempt *domain.PaymentAttempt, to domain.AttemptState) {
	o.mu.Lock()
	if !domain.CanTransition(attempt.State, to) {
		// State machine bug; record it loudly but do not wedge the attempt
		o.logger.Printf("[settlement] illegal transition %s -> %s", attempt.State, to)
	}
	attempt.State = to
	attempt.UpdatedAt = time.Now().UnixMilli()
	attemptCopy := *attempt
	o.mu.Unlock()

	if o.onStateChange != nil {
		o.onStateChange(attemptCopy)
	}
}

func (o *Orchestrator) setRoute(attempt *domain.PaymentAttempt, route *domain.QuoteRoute) {
	o.mu.Lock()
	attempt.Quote = route
	o.mu.Unlock()
}

func (o *Orchestrator) setSignature(attempt *domain.PaymentAttempt, signature string) {
	o.mu.Lock()
	attempt.TxSignature = signature
	o.mu.Unlock()
}

// fail moves the attempt to its terminal failed state, records the outcome,
// and returns the original error for the caller.
func (o *Orchestrator) fail(attempt *domain.PaymentAttempt, startedAt time.Time, err error) error {
	code, _ := domain.CodeForError(err)

	o.mu.Lock()
	attempt.State = domain.StateFailed
	attempt.Failure = code
	attempt.FailureMsg = err.Error()
	attempt.UpdatedAt = time.Now().UnixMilli()
	attemptCopy := *attempt
	o.mu.Unlock()

	if o.onStateChange != nil {
		o.onStateChange(attemptCopy)
	}

	outcome := string(code)
	if outcome == "" {
		outcome = "abandoned"
	}
	observability.RecordPayment(outcome, time.Since(startedAt).Seconds())

	o.mu.Lock()
	desiredRaw := o.attemptRaw
	o.mu.Unlock()
	o.writeReceipt(attempt, o.wallet.Address(), desiredRaw)

	o.logger.Printf("[settlement] attempt %s failed (%s): %v", attempt.ID, code, err)
	return err
}

// desiredRaw converts a per-payment amount to settlement smallest units,
// falling back to the target's configured amount when unset.
func (o *Orchestrator) desiredRaw(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		amount = o.target.DesiredAmount
	}
	raw, err := domain.RawUnits(amount, o.target.SettlementDecimals)
	if err != nil {
		return 0, fmt.Errorf("desired amount: %w", err)
	}
	return raw, nil
}

// writeReceipt records the terminal attempt. Nil-safe: sessions without a
// receipt store skip audit recording.
func (o *Orchestrator) writeReceipt(attempt *domain.PaymentAttempt, payer string, desiredRaw uint64) {
	if o.receipts == nil {
		return
	}

	o.mu.Lock()
	receipt := &domain.PaymentReceipt{
		AttemptID:      attempt.ID,
		Payer:          payer,
		Merchant:       o.target.MerchantAddress,
		InputMint:      attempt.TokenMint,
		SettlementMint: o.target.SettlementMint,
		OutAmount:      desiredRaw,
		State:          attempt.State,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if attempt.Quote != nil {
		receipt.InAmount = attempt.Quote.InAmount
		receipt.OutAmount = attempt.Quote.OutAmount
	}
	if attempt.TxSignature != "" {
		sig := attempt.TxSignature
		receipt.TxSignature = &sig
	}
	if attempt.Failure != "" {
		code := string(attempt.Failure)
		receipt.FailureCode = &code
	}
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.receipts.Insert(ctx, receipt); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		o.logger.Printf("[settlement] write receipt %s: %v", receipt.AttemptID, err)
	}
}
