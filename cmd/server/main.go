// Package main provides the checkout gateway: a single-merchant payment
// service that accepts any wallet token and settles in one configured
// stablecoin. It exposes the payment API, health/metrics endpoints, and
// drives the settlement flow against Solana RPC and the swap aggregator.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"solana-checkout/internal/catalog"
	"solana-checkout/internal/domain"
	"solana-checkout/internal/observability"
	"solana-checkout/internal/quote"
	"solana-checkout/internal/settlement"
	"solana-checkout/internal/solana"
	"solana-checkout/internal/storage"
	"solana-checkout/internal/storage/memory"
	pgstore "solana-checkout/internal/storage/postgres"
	"solana-checkout/internal/txbuilder"
	"solana-checkout/internal/wallet"
)

// USDC mainnet mint, the default settlement stablecoin.
const defaultSettlementMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Server holds all components of the checkout gateway.
type Server struct {
	// Configuration
	rpcEndpoint string
	wsEndpoint  string
	listenAddr  string

	// Components
	catalog      *catalog.Catalog
	orchestrator *settlement.Orchestrator
	wallet       wallet.Wallet
	receipts     storage.ReceiptStore
	notifier     solana.SignatureNotifier
	logger       *log.Logger

	// State
	mu        sync.Mutex
	startedAt time.Time
	payments  int
	settled   int
	failed    int
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, polling fallback without it)")
	quoteEndpoint := flag.String("quote-endpoint", envOr("QUOTE_ENDPOINT", quote.DefaultEndpoint), "Swap aggregator API endpoint")
	tokenListURL := flag.String("token-list-url", envOr("TOKEN_LIST_URL", catalog.DefaultTokenListURL), "Token metadata registry URL")
	keypairPath := flag.String("keypair", os.Getenv("KEYPAIR_PATH"), "Path to the paying wallet keypair file")
	merchantAddress := flag.String("merchant-address", os.Getenv("MERCHANT_ADDRESS"), "Merchant wallet address")
	settlementMint := flag.String("settlement-mint", envOr("SETTLEMENT_MINT", defaultSettlementMint), "Settlement stablecoin mint")
	settlementDecimals := flag.Int("settlement-decimals", envIntOr("SETTLEMENT_DECIMALS", 6), "Settlement stablecoin decimals")
	amount := flag.String("amount", os.Getenv("SETTLEMENT_AMOUNT"), "Desired settlement amount in stablecoin units (e.g. 10.50)")
	slippageBps := flag.Int("slippage-bps", envIntOr("SLIPPAGE_BPS", 50), "Swap slippage tolerance in basis points")
	confirmTimeout := flag.Duration("confirm-timeout", 60*time.Second, "Confirmation wait bound per payment")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for receipts")
	useMemory := flag.Bool("use-memory", false, "Use in-memory receipt storage instead of PostgreSQL")
	listenAddr := flag.String("listen-addr", ":8080", "Payment API HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *keypairPath == "" {
		logger.Fatal("--keypair is required")
	}
	if *merchantAddress == "" {
		logger.Fatal("--merchant-address is required")
	}
	if *amount == "" {
		logger.Fatal("--amount is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	desiredAmount, err := decimal.NewFromString(*amount)
	if err != nil {
		logger.Fatalf("Invalid --amount %q: %v", *amount, err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create receipt store
	receipts, cleanup, err := createReceiptStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create receipt store: %v", err)
	}
	defer cleanup()

	// Load the paying wallet
	payerWallet, err := wallet.LoadKeypair(*keypairPath)
	if err != nil {
		logger.Fatalf("Failed to load keypair: %v", err)
	}
	if err := payerWallet.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect wallet: %v", err)
	}
	logger.Printf("Paying wallet: %s", payerWallet.Address())

	// Create clients
	rpc := solana.NewHTTPClient(*rpcEndpoint)
	quotes := quote.NewClient(*quoteEndpoint)

	// WebSocket confirmation is optional; polling covers its absence
	var notifier solana.SignatureNotifier
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Printf("WebSocket unavailable, falling back to status polling: %v", err)
		} else {
			notifier = ws
			defer ws.Close()
		}
	}

	// Create token catalog
	tokenCatalog, err := catalog.New(catalog.Options{
		Metadata: catalog.NewTokenListSource(*tokenListURL, nil),
		Balances: rpc,
		Logger:   log.New(os.Stdout, "[catalog] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create catalog: %v", err)
	}

	// Create settlement orchestrator
	orch, err := settlement.New(settlement.Options{
		Wallet:   payerWallet,
		Quotes:   quotes,
		Builder:  txbuilder.NewBuilder(rpc),
		RPC:      rpc,
		Notifier: notifier,
		Receipts: receipts,
		Target: domain.SettlementTarget{
			MerchantAddress:    *merchantAddress,
			SettlementMint:     *settlementMint,
			SettlementDecimals: *settlementDecimals,
			DesiredAmount:      desiredAmount,
		},
		SlippageBps:    *slippageBps,
		ConfirmTimeout: *confirmTimeout,
		Logger:         log.New(os.Stdout, "[settlement] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Create server
	server := &Server{
		rpcEndpoint:  *rpcEndpoint,
		wsEndpoint:   *wsEndpoint,
		listenAddr:   *listenAddr,
		catalog:      tokenCatalog,
		orchestrator: orch,
		wallet:       payerWallet,
		receipts:     receipts,
		notifier:     notifier,
		logger:       logger,
		startedAt:    time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start metrics HTTP server
	go server.startMetricsServer(*metricsAddr)

	// Run the payment API
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createReceiptStore creates the receipt store.
func createReceiptStore(ctx context.Context, postgresDSN string, useMemory bool) (storage.ReceiptStore, func(), error) {
	if useMemory {
		return memory.NewReceiptStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pgstore.NewReceiptStore(pool), pool.Close, nil
}

// Run serves the payment API until the context ends.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/tokens", s.handleTokens)
	mux.HandleFunc("/api/quote", s.handleQuote)
	mux.HandleFunc("/api/checkout", s.handleCheckout)
	mux.HandleFunc("/api/payment", s.handlePayment)
	mux.HandleFunc("/api/payment/ack", s.handleAcknowledge)
	mux.HandleFunc("/api/receipts/", s.handleReceipt)
	mux.HandleFunc("/api/receipts", s.handleReceiptList)

	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Payment API listening on %s", s.listenAddr)
	return srv.ListenAndServe()
}

// startMetricsServer serves Prometheus metrics on a separate listener.
func (s *Server) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	s.logger.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("Metrics server error: %v", err)
	}
}

// handleTokens lists the paying wallet's spendable token balances.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	balances, err := s.catalog.ListWalletBalances(r.Context(), s.wallet.Address())
	if err != nil {
		s.logger.Printf("List balances: %v", err)
		http.Error(w, "balance refresh failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

// handleQuote previews the payment cost in the selected token.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mint := r.URL.Query().Get("mint")
	if mint == "" {
		http.Error(w, "mint query parameter required", http.StatusBadRequest)
		return
	}

	amount := decimal.Zero
	if raw := r.URL.Query().Get("amount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = parsed
	}

	route, err := s.orchestrator.PreviewQuote(r.Context(), amount, mint)
	switch {
	case errors.Is(err, settlement.ErrQuoteSuperseded):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, domain.ErrQuoteUnavailable):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.logger.Printf("Preview quote for %s: %v", mint, err)
		http.Error(w, "quote request failed", http.StatusBadGateway)
		return
	}

	if route == nil {
		// Paying in the settlement token itself; no swap involved
		writeJSON(w, http.StatusOK, map[string]interface{}{"direct": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"direct":               false,
		"inputMint":            route.InputMint,
		"outputMint":           route.OutputMint,
		"inAmount":             strconv.FormatUint(route.InAmount, 10),
		"outAmount":            strconv.FormatUint(route.OutAmount, 10),
		"otherAmountThreshold": strconv.FormatUint(route.OtherAmountThreshold, 10),
		"priceImpactPct":       route.PriceImpactPct,
		"slippageBps":          route.SlippageBps,
	})
}

type checkoutRequest struct {
	TokenMint string `json:"tokenMint"`

	// Amount in settlement-token units; empty uses the configured default.
	Amount string `json:"amount,omitempty"`
}

// handleCheckout runs one payment attempt to completion.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TokenMint == "" {
		http.Error(w, "tokenMint required", http.StatusBadRequest)
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = parsed
	}

	s.mu.Lock()
	s.payments++
	s.mu.Unlock()

	signature, err := s.orchestrator.ProcessPayment(r.Context(), amount, req.TokenMint)
	if err != nil {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()

		switch {
		case errors.Is(err, domain.ErrPaymentInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domain.ErrWalletNotConnected):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			code, _ := domain.CodeForError(err)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"failureCode": string(code),
				"error":       err.Error(),
			})
		}
		return
	}

	s.mu.Lock()
	s.settled++
	s.mu.Unlock()

	attempt := s.orchestrator.CurrentAttempt()
	resp := map[string]interface{}{"signature": signature}
	if attempt != nil {
		resp["attemptId"] = attempt.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePayment reports the attempt currently under observation.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	attempt := s.orchestrator.CurrentAttempt()
	if attempt == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"state": string(domain.StateIdle)})
		return
	}

	resp := map[string]interface{}{
		"attemptId": attempt.ID,
		"state":     string(attempt.State),
		"tokenMint": attempt.TokenMint,
		"startedAt": attempt.StartedAt,
		"updatedAt": attempt.UpdatedAt,
	}
	if attempt.TxSignature != "" {
		resp["signature"] = attempt.TxSignature
	}
	if attempt.Failure != "" {
		resp["failureCode"] = string(attempt.Failure)
		resp["error"] = attempt.FailureMsg
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAcknowledge clears a terminal attempt so a new one can be shown.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.orchestrator.Acknowledge()
	w.WriteHeader(http.StatusNoContent)
}

// handleReceipt serves one receipt by attempt ID.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	attemptID := strings.TrimPrefix(r.URL.Path, "/api/receipts/")
	if attemptID == "" {
		http.Error(w, "attempt id required", http.StatusBadRequest)
		return
	}

	receipt, err := s.receipts.GetByAttemptID(r.Context(), attemptID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "receipt not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Printf("Receipt lookup %s: %v", attemptID, err)
		http.Error(w, "receipt lookup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleReceiptList serves terminal receipts filtered by state.
func (s *Server) handleReceiptList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := domain.AttemptState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.StateSettled
	}
	if !state.Terminal() {
		http.Error(w, "state must be settled or failed", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	receipts, err := s.receipts.ListByState(r.Context(), state, limit)
	if err != nil {
		s.logger.Printf("Receipt list: %v", err)
		http.Error(w, "receipt list failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	WalletAddress string `json:"wallet_address"`
	Confirmations string `json:"confirmations"`
	Payments      int    `json:"payments"`
	Settled       int    `json:"settled"`
	Failed        int    `json:"failed"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	confirmations := "polling"
	if s.notifier != nil {
		confirmations = "websocket"
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.startedAt).String(),
		WalletAddress: s.wallet.Address(),
		Confirmations: confirmations,
		Payments:      s.payments,
		Settled:       s.settled,
		Failed:        s.failed,
	})
}

// writeJSON encodes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// envOr returns the environment value or a default.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOr returns the environment value parsed as int, or a default.
func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
