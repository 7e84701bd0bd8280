// Package config handles loading and validating pipeline configuration
// from environment variables with fallback to a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solana-sniper/internal/domain"
)

// SafetyWeights holds the relative weight of each safety check.
// Weights must sum to 100 so the combined score stays in [0,100].
type SafetyWeights struct {
	LiquidityLock   int
	MintAuthority   int
	FreezeAuthority int
	HolderSpread    int
	Metadata        int
}

// Sum returns the total of all weights.
func (w SafetyWeights) Sum() int {
	return w.LiquidityLock + w.MintAuthority + w.FreezeAuthority + w.HolderSpread + w.Metadata
}

// Config holds all process-wide configuration. Loaded once at startup,
// read-only afterwards.
type Config struct {
	// Solana endpoints
	RPCEndpoint string
	WSEndpoint  string

	// Relay (front-running protection)
	RelayEndpoint    string
	ProtectedSubmit  bool
	TipLamports      uint64
	PriorityFeeMicro uint64 // compute-unit price in micro-lamports

	// Trading
	MaxBuySOL      float64
	MinSafetyScore int
	SlippageBps    int

	// WalletKey is the base58 signing key (64-byte keypair or 32-byte seed).
	// Only the local signer reads it; nothing else touches key material.
	WalletKey string

	// Base mints never treated as new tokens (denylist).
	BaseMintDenylist map[string]bool

	// Safety analysis
	SafetyWeights   SafetyWeights
	AssessmentTTL   time.Duration
	AnalysisBudget  time.Duration
	TopHolderCount  int
	MaxTopHolderPct float64 // top-N share at or above this scores zero

	// Execution
	SubmitRetries    int
	SubmitBackoff    time.Duration
	ConfirmTimeout   time.Duration
	MaxOpenPositions int

	// Pipeline
	WorkerCount int
	QueueSize   int

	// Monitor
	ReconnectBudget int
	Programs        []string

	// Persistence (optional collaborators)
	PostgresDSN   string
	ClickhouseDSN string

	// Observability
	MetricsAddr string
}

// Load reads configuration from environment variables with fallback to .env.
// Priority: environment variables > .env file > defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCEndpoint: getEnv("SOLANA_RPC_ENDPOINT", ""),
		WSEndpoint:  getEnv("SOLANA_WS_ENDPOINT", ""),

		RelayEndpoint:    getEnv("RELAY_ENDPOINT", "https://mainnet.block-engine.jito.wtf/api/v1/bundles"),
		ProtectedSubmit:  getEnvBool("PROTECTED_SUBMIT", true),
		TipLamports:      uint64(getEnvInt("TIP_LAMPORTS", 200_000)),
		PriorityFeeMicro: uint64(getEnvInt("PRIORITY_FEE_MICROLAMPORTS", 50_000)),

		MaxBuySOL:      getEnvFloat("MAX_BUY_SOL", 0.05),
		MinSafetyScore: getEnvInt("MIN_SAFETY_SCORE", 70),
		SlippageBps:    getEnvInt("SLIPPAGE_BPS", 300),

		WalletKey: getEnv("WALLET_PRIVATE_KEY", ""),

		BaseMintDenylist: parseMintList(getEnv("BASE_MINT_DENYLIST", "")),

		SafetyWeights: SafetyWeights{
			LiquidityLock:   getEnvInt("WEIGHT_LIQUIDITY_LOCK", 30),
			MintAuthority:   getEnvInt("WEIGHT_MINT_AUTHORITY", 15),
			FreezeAuthority: getEnvInt("WEIGHT_FREEZE_AUTHORITY", 15),
			HolderSpread:    getEnvInt("WEIGHT_HOLDER_SPREAD", 25),
			Metadata:        getEnvInt("WEIGHT_METADATA", 15),
		},
		AssessmentTTL:   time.Duration(getEnvInt("ASSESSMENT_TTL_SECONDS", 300)) * time.Second,
		AnalysisBudget:  time.Duration(getEnvInt("ANALYSIS_BUDGET_MS", 800)) * time.Millisecond,
		TopHolderCount:  getEnvInt("TOP_HOLDER_COUNT", 10),
		MaxTopHolderPct: getEnvFloat("MAX_TOP_HOLDER_PCT", 50),

		SubmitRetries:    getEnvInt("SUBMIT_RETRIES", 3),
		SubmitBackoff:    time.Duration(getEnvInt("SUBMIT_BACKOFF_MS", 250)) * time.Millisecond,
		ConfirmTimeout:   time.Duration(getEnvInt("CONFIRM_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxOpenPositions: getEnvInt("MAX_OPEN_POSITIONS", 5),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 256),

		ReconnectBudget: getEnvInt("RECONNECT_BUDGET", 10),
		Programs:        parsePrograms(getEnv("PROGRAMS", "raydium,pumpfun")),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnv("CLICKHOUSE_DSN", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	// Native currency and major stables are always denied as "new" tokens.
	cfg.BaseMintDenylist[domain.WrappedSOL] = true
	cfg.BaseMintDenylist[domain.USDC] = true
	cfg.BaseMintDenylist[domain.USDT] = true

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.MaxBuySOL <= 0 {
		return fmt.Errorf("MAX_BUY_SOL must be positive")
	}
	if c.MinSafetyScore < 0 || c.MinSafetyScore > 100 {
		return fmt.Errorf("MIN_SAFETY_SCORE must be in [0,100]")
	}
	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		return fmt.Errorf("SLIPPAGE_BPS must be in [0,10000]")
	}
	if c.SafetyWeights.Sum() != 100 {
		return fmt.Errorf("safety weights must sum to 100, got %d", c.SafetyWeights.Sum())
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1")
	}
	if c.SubmitRetries < 1 {
		return fmt.Errorf("SUBMIT_RETRIES must be at least 1")
	}
	if c.ReconnectBudget < 1 {
		return fmt.Errorf("RECONNECT_BUDGET must be at least 1")
	}
	if c.TopHolderCount < 1 {
		return fmt.Errorf("TOP_HOLDER_COUNT must be at least 1")
	}
	return nil
}

// MaxBuyLamports returns the configured buy ceiling in lamports.
func (c *Config) MaxBuyLamports() uint64 {
	return uint64(c.MaxBuySOL * 1e9)
}

// DEX program aliases mapped to program IDs.
var dexAliases = map[string]string{
	"raydium": domain.RaydiumAMMV4,
	"pumpfun": domain.PumpFun,
}

// parsePrograms resolves a comma-separated list of program IDs or aliases.
func parsePrograms(s string) []string {
	seen := make(map[string]bool)
	var list []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, ok := dexAliases[strings.ToLower(p)]; ok {
			p = id
		}
		if !seen[p] {
			seen[p] = true
			list = append(list, p)
		}
	}
	return list
}

// parseMintList parses a comma-separated mint list into a set.
func parseMintList(s string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			set[m] = true
		}
	}
	return set
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
