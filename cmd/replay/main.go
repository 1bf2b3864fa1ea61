// Package main replays captured webhook deliveries through the intake
// pipeline. The default dry-run mode uses in-memory stores, so a capture can
// be replayed against different filter thresholds without touching the live
// database; --live re-ingests into the configured stores instead.
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
	"path/filepath"
	"syscall"

	"solana-launch-signals/internal/config"
	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/enrichment"
	"solana-launch-signals/internal/filters"
	"solana-launch-signals/internal/helius"
	"solana-launch-signals/internal/pipeline"
	"solana-launch-signals/internal/signals"
	"solana-launch-signals/internal/solana"
	"solana-launch-signals/internal/storage"
	"solana-launch-signals/internal/storage/memory"
	"solana-launch-signals/internal/storage/migrations"
	pgstore "solana-launch-signals/internal/storage/postgres"
)

// replayStats accumulates receipts over all replayed deliveries.
type replayStats struct {
	Deliveries         int `json:"deliveries"`
	FailedFiles        int `json:"failed_files"`
	Processed          int `json:"processed"`
	Duplicates         int `json:"duplicates"`
	MigrationsDetected int `json:"migrations_detected"`
	SignalsGenerated   int `json:"signals_generated"`
}

// storeTotals is the JSON view of the signal population after the replay.
type storeTotals struct {
	Total       int64   `json:"total"`
	Pending     int64   `json:"pending"`
	Migrated    int64   `json:"migrated"`
	Expired     int64   `json:"expired"`
	Wins        int64   `json:"wins"`
	WinRate     float64 `json:"win_rate"`
	AvgPnLPct   float64 `json:"avg_pnl_pct"`
	BestPnLPct  float64 `json:"best_pnl_pct"`
	WorstPnLPct float64 `json:"worst_pnl_pct"`
}

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (default: config/default.toml if present)")
	live := flag.Bool("live", false, "Replay into the configured stores instead of in-memory dry-run stores")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	// Setup logger on stderr so stdout stays machine-readable
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if flag.NArg() == 0 {
		logger.Fatal("Usage: replay [flags] payload.json [file|dir ...]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	files, err := collectPayloadFiles(flag.Args())
	if err != nil {
		logger.Fatalf("Collect payload files: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No payload files found")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	var idem storage.IdempotencyStore = memory.NewIdempotencyStore()
	var signalStore storage.SignalStore = memory.NewSignalStore()

	if *live {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("--live requires a Postgres DSN (set LAUNCHSIG__POSTGRES__DSN)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, int32(cfg.Postgres.MaxConns))
		if err != nil {
			logger.Fatalf("Connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Apply migrations: %v", err)
		}

		cached, err := storage.NewCachedIdempotencyStore(pgstore.NewIdempotencyStore(pool), cfg.Idempotency.CacheCapacity)
		if err != nil {
			logger.Fatalf("Create idempotency cache: %v", err)
		}
		idem = cached
		signalStore = pgstore.NewSignalStore(pool)
		logger.Println("Replaying into live stores")
	}

	gateway := enrichment.NewDexScreener(
		enrichment.WithBaseURL(cfg.Enrichment.DexScreenerBaseURL),
		enrichment.WithHTTPClient(&http.Client{Timeout: cfg.Enrichment.Timeout()}),
		enrichment.WithRateLimit(cfg.Enrichment.RateLimitPerSecond),
		enrichment.WithLogger(logger),
	)

	var holders enrichment.HolderSource
	if cfg.Enrichment.SolanaRPCEndpoint != "" && cfg.Filters.MaxTopHolderPct > 0 {
		holders = enrichment.NewRPCHolderSource(solana.NewHTTPClient(cfg.Enrichment.SolanaRPCEndpoint))
	}

	// No notifier: replaying a capture must not announce signals.
	signalsLogger := log.New(os.Stderr, "[signals] ", log.LstdFlags)
	generator := signals.NewGenerator(signals.GeneratorOptions{
		Store:       signalStore,
		Gateway:     gateway,
		Chain:       filters.FromConfig(cfg.Filters),
		Holders:     holders,
		DedupWindow: cfg.Signals.DedupWindow(),
		Logger:      signalsLogger,
	})
	tracker := signals.NewTracker(signals.TrackerOptions{
		Store:         signalStore,
		Gateway:       gateway,
		ExpiryHorizon: cfg.Signals.ExpiryHorizon(),
		Logger:        signalsLogger,
	})

	if *live {
		if err := generator.Load(ctx); err != nil {
			logger.Fatalf("Load signaled tokens: %v", err)
		}
	}

	p := pipeline.New(pipeline.Options{
		Idempotency: idem,
		Generator:   generator,
		Tracker:     tracker,
		Logger:      log.New(os.Stderr, "[pipeline] ", log.LstdFlags),
	})

	// Replay each delivery in order
	stats := replayStats{}
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		body, err := os.ReadFile(path)
		if err != nil {
			logger.Printf("Skipping %s: %v", path, err)
			stats.FailedFiles++
			continue
		}

		receipt, err := p.Process(ctx, body)
		if err != nil {
			if errors.Is(err, helius.ErrBadPayload) {
				logger.Printf("Skipping %s: %v", path, err)
				stats.FailedFiles++
				continue
			}
			logger.Fatalf("Replay %s: %v", path, err)
		}

		stats.Deliveries++
		stats.Processed += receipt.Processed
		stats.Duplicates += receipt.Duplicates
		stats.MigrationsDetected += receipt.MigrationsDetected
		stats.SignalsGenerated += receipt.SignalsGenerated

		if !*outputJSON {
			fmt.Printf("%s: processed=%d duplicates=%d migrations=%d signals=%d\n",
				filepath.Base(path), receipt.Processed, receipt.Duplicates,
				receipt.MigrationsDetected, receipt.SignalsGenerated)
		}
	}

	var totals *domain.SignalStats
	if ctx.Err() == nil {
		totals, err = signalStore.Stats(ctx)
		if err != nil {
			logger.Printf("Read store stats: %v", err)
		}
	}

	// Output summary
	if *outputJSON {
		out := struct {
			replayStats
			Store *storeTotals `json:"store,omitempty"`
		}{replayStats: stats}
		if totals != nil {
			out.Store = &storeTotals{
				Total:       totals.Total,
				Pending:     totals.Pending,
				Migrated:    totals.Migrated,
				Expired:     totals.Expired,
				Wins:        totals.Wins,
				WinRate:     totals.WinRate,
				AvgPnLPct:   totals.AvgPnLPct,
				BestPnLPct:  totals.BestPnLPct,
				WorstPnLPct: totals.WorstPnLPct,
			}
		}
		output, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Deliveries:          %d\n", stats.Deliveries)
	fmt.Printf("Failed files:        %d\n", stats.FailedFiles)
	fmt.Printf("Records processed:   %d\n", stats.Processed)
	fmt.Printf("Duplicates:          %d\n", stats.Duplicates)
	fmt.Printf("Migrations detected: %d\n", stats.MigrationsDetected)
	fmt.Printf("Signals generated:   %d\n", stats.SignalsGenerated)

	if totals != nil {
		fmt.Printf("\n=== Store Totals ===\n")
		fmt.Printf("Signals:  %d (%d pending, %d migrated, %d expired)\n",
			totals.Total, totals.Pending, totals.Migrated, totals.Expired)
		if totals.Migrated > 0 {
			fmt.Printf("Win rate: %.1f%% (%d wins)\n", totals.WinRate, totals.Wins)
			fmt.Printf("Avg PnL:  %+.2f%%\n", totals.AvgPnLPct)
		}
	}
}

// collectPayloadFiles expands the command line arguments into payload files.
// A directory argument contributes its .json entries in name order.
func collectPayloadFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			files = append(files, filepath.Join(arg, entry.Name()))
		}
	}
	return files, nil
}
