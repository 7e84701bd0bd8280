// Package main runs the safety battery once against a single token and
// prints the scored assessment. Useful for checking what the live pipeline
// would decide without submitting anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/safety"
	"solana-sniper/internal/solana"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	mint := flag.String("mint", "", "Token mint address to assess")
	pool := flag.String("pool", "", "Pool or bonding curve address")
	program := flag.String("program", "pumpfun", "DEX program (raydium, pumpfun or a program ID)")
	minScore := flag.Int("min-score", 70, "Buy threshold used for the verdict")
	budget := flag.Duration("budget", 5*time.Second, "Analysis time budget")

	flag.Parse()

	logger := log.New(os.Stderr, "[analyze] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint or SOLANA_RPC_ENDPOINT is required")
	}
	if *mint == "" {
		logger.Fatal("--mint is required")
	}
	if *pool == "" {
		logger.Fatal("--pool is required")
	}

	programID := resolveProgram(*program)

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	analyzer, err := safety.NewAnalyzer(safety.Options{
		Querier: safety.NewChainQuerier(rpc),
		Weights: config.SafetyWeights{
			LiquidityLock:   30,
			MintAuthority:   15,
			FreezeAuthority: 15,
			HolderSpread:    25,
			Metadata:        15,
		},
		MinScore: *minScore,
		Budget:   *budget,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("Create analyzer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *budget+5*time.Second)
	defer cancel()

	assessment, err := analyzer.Assess(ctx, *mint, *pool, programID)
	if err != nil {
		logger.Fatalf("Assessment failed: %v", err)
	}

	printAssessment(assessment, *minScore)

	if assessment.Verdict != domain.VerdictBuy {
		os.Exit(1)
	}
}

// resolveProgram maps a DEX alias to its program ID; anything else passes
// through as a literal program ID.
func resolveProgram(s string) string {
	switch s {
	case "raydium":
		return domain.RaydiumAMMV4
	case "pumpfun":
		return domain.PumpFun
	default:
		return s
	}
}

func printAssessment(a *domain.SafetyAssessment, minScore int) {
	fmt.Printf("Mint:    %s\n", a.Mint)
	fmt.Printf("Score:   %d/100 (buy threshold %d)\n", a.Score, minScore)
	fmt.Printf("Verdict: %s\n", a.Verdict)

	if len(a.RedFlags) == 0 {
		fmt.Println("Red flags: none")
		return
	}

	fmt.Printf("Red flags (%d):\n", len(a.RedFlags))
	for _, f := range a.RedFlags {
		marker := " "
		if f.Critical {
			marker = "!"
		}
		fmt.Printf("  [%s] %-24s %s\n", marker, f.Tag, f.Reason)
	}
}
