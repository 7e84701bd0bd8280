// Package main runs the live sniping service: WebSocket pool discovery,
// safety analysis, buy execution and position tracking, with a small HTTP
// surface for health, metrics and operator status.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/ledger"
	"solana-sniper/internal/monitor"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/pipeline"
	"solana-sniper/internal/relay"
	"solana-sniper/internal/safety"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/wallet"
)

// snipeStores holds the persistence backends the ledger writes through.
type snipeStores struct {
	positions storage.PositionStore
	attempts  storage.AttemptStore
	archive   storage.AttemptArchive
}

func main() {
	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	// Validate required settings
	if cfg.RPCEndpoint == "" {
		logger.Fatal("SOLANA_RPC_ENDPOINT is required")
	}
	if cfg.WSEndpoint == "" {
		logger.Fatal("SOLANA_WS_ENDPOINT is required")
	}
	if cfg.WalletKey == "" {
		logger.Fatal("WALLET_PRIVATE_KEY is required")
	}
	if len(cfg.Programs) == 0 {
		logger.Fatal("No DEX programs specified. Set PROGRAMS (raydium, pumpfun or program IDs)")
	}

	signer, err := wallet.NewFromBase58(cfg.WalletKey)
	if err != nil {
		logger.Fatalf("Load wallet: %v", err)
	}
	logger.Printf("Wallet: %s", signer.PublicKey())
	logger.Printf("Monitoring DEX programs: %v", cfg.Programs)

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("sniper")

	led, err := ledger.New(ledger.Options{
		Positions:        stores.positions,
		Attempts:         stores.attempts,
		Archive:          stores.archive,
		MaxOpenPositions: cfg.MaxOpenPositions,
		Logger:           log.New(os.Stdout, "[ledger] ", log.LstdFlags),
		Metrics:          metrics,
	})
	if err != nil {
		logger.Fatalf("Create ledger: %v", err)
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	analyzer, err := safety.NewAnalyzer(safety.Options{
		Querier:         safety.NewChainQuerier(rpc),
		Weights:         cfg.SafetyWeights,
		MinScore:        cfg.MinSafetyScore,
		TTL:             cfg.AssessmentTTL,
		Budget:          cfg.AnalysisBudget,
		TopHolderCount:  cfg.TopHolderCount,
		MaxTopHolderPct: cfg.MaxTopHolderPct,
		Logger:          log.New(os.Stdout, "[safety] ", log.LstdFlags),
		Metrics:         metrics,
	})
	if err != nil {
		logger.Fatalf("Create analyzer: %v", err)
	}

	pumpBuilder, err := execution.NewPumpFunSwapBuilder(rpc)
	if err != nil {
		logger.Fatalf("Create pump.fun builder: %v", err)
	}

	engine, err := execution.NewEngine(execution.Options{
		RPC:    rpc,
		Wallet: signer,
		Builders: []execution.SwapBuilder{
			execution.NewRaydiumSwapBuilder(rpc),
			pumpBuilder,
		},
		Direct:         relay.NewDirectSubmitter(rpc),
		Bundle:         relay.NewBundleSubmitter(cfg.RelayEndpoint),
		Ledger:         led,
		SubmitRetries:  cfg.SubmitRetries,
		SubmitBackoff:  cfg.SubmitBackoff,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         log.New(os.Stdout, "[engine] ", log.LstdFlags),
		Metrics:        metrics,
	})
	if err != nil {
		logger.Fatalf("Create engine: %v", err)
	}

	dialer := solana.NewWSDialer(cfg.WSEndpoint, nil)
	monitorLogger := log.New(os.Stdout, "[monitor] ", log.LstdFlags)
	newMonitor := func() *monitor.Monitor {
		return monitor.New(monitor.Options{
			Dialer:          dialer,
			RPC:             rpc,
			Programs:        cfg.Programs,
			Denylist:        cfg.BaseMintDenylist,
			ReconnectBudget: cfg.ReconnectBudget,
			QueueSize:       cfg.QueueSize,
			Logger:          monitorLogger,
			Metrics:         metrics,
		})
	}

	supervisor, err := pipeline.New(pipeline.Options{
		NewMonitor: newMonitor,
		Analyzer:   analyzer,
		Engine:     engine,
		Ledger:     led,
		Intent: domain.TradeIntent{
			MaxBuyLamports:  cfg.MaxBuyLamports(),
			MinSafetyScore:  cfg.MinSafetyScore,
			SlippageBps:     cfg.SlippageBps,
			PriorityFee:     cfg.PriorityFeeMicro,
			TipLamports:     cfg.TipLamports,
			ProtectedSubmit: cfg.ProtectedSubmit,
		},
		WorkerCount: cfg.WorkerCount,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Fatalf("Create pipeline: %v", err)
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

	go startHTTPServer(cfg.MetricsAddr, supervisor, engine, logger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- supervisor.Run(ctx)
	}()

	if err := supervisor.Start(ctx); err != nil {
		cancel()
		<-runErr
		logger.Fatalf("Start pipeline: %v", err)
	}
	logger.Println("Pipeline started")

	err = <-runErr
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Pipeline error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores selects the persistence backends. Postgres holds positions and
// attempts when a DSN is configured, ClickHouse archives terminal attempts;
// both default to in-memory stores otherwise.
func createStores(ctx context.Context, cfg *config.Config) (*snipeStores, func(), error) {
	stores := &snipeStores{
		positions: memory.NewPositionStore(),
		attempts:  memory.NewAttemptStore(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		stores.positions = pgstore.NewPositionStore(pool)
		stores.attempts = pgstore.NewAttemptStore(pool)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		stores.archive = chstore.NewAttemptArchive(conn)
	}

	return stores, cleanup, nil
}

// startHTTPServer serves health, metrics and operator status.
func startHTTPServer(addr string, sup *pipeline.Supervisor, engine *execution.Engine, logger *log.Logger) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(w, r, sup)
	})

	// Operator controls: resume buying after an exhaustion pause.
	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		engine.Resume()
		logger.Println("Buying resumed by operator")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Running      bool                   `json:"running"`
	Uptime       string                 `json:"uptime"`
	QueueDepth   int                    `json:"queue_depth"`
	MonitorState string                 `json:"monitor_state"`
	BuyingPaused bool                   `json:"buying_paused"`
	Positions    []*domain.Position     `json:"open_positions,omitempty"`
	Attempts     []*domain.TradeAttempt `json:"recent_attempts,omitempty"`
}

func handleStatus(w http.ResponseWriter, r *http.Request, sup *pipeline.Supervisor) {
	ctx := r.Context()

	st, err := sup.Status(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	positions, err := sup.Positions(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	attempts, err := sup.RecentAttempts(ctx, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := StatusResponse{
		Running:      st.Running,
		Uptime:       st.Uptime.String(),
		QueueDepth:   st.QueueDepth,
		MonitorState: st.MonitorState,
		BuyingPaused: st.BuyingPaused,
		Positions:    positions,
		Attempts:     attempts,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
