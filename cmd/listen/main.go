// Package main runs the live feed listener: launch platform activity streams
// in over WebSocket and feeds the same admission and signal path as the
// webhook service. Runs standalone or alongside the webhook service against
// the same stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-launch-signals/internal/archive"
	"solana-launch-signals/internal/config"
	"solana-launch-signals/internal/enrichment"
	"solana-launch-signals/internal/filters"
	"solana-launch-signals/internal/notify"
	"solana-launch-signals/internal/observability"
	"solana-launch-signals/internal/pipeline"
	"solana-launch-signals/internal/signals"
	"solana-launch-signals/internal/solana"
	"solana-launch-signals/internal/storage"
	chstore "solana-launch-signals/internal/storage/clickhouse"
	"solana-launch-signals/internal/storage/memory"
	"solana-launch-signals/internal/storage/migrations"
	pgstore "solana-launch-signals/internal/storage/postgres"
	"solana-launch-signals/internal/wsfeed"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", "", "Path to TOML config file (default: config/default.toml if present)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[listen] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if !*useMemory && cfg.Postgres.DSN == "" {
		logger.Fatal("Postgres DSN is required (set LAUNCHSIG__POSTGRES__DSN or use --use-memory)")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

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

	err = run(ctx, cfg, *useMemory, logger)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Listener error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the components and consumes the feed until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, useMemory bool, logger *log.Logger) error {
	stores, cleanup, err := createStores(ctx, cfg, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Printf("Storage ready (%s)", stores.mode)

	// Trade archive, enabled by a ClickHouse DSN.
	var archiveWriter *archive.Writer
	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return fmt.Errorf("prepare clickhouse: %w", err)
		}
		defer conn.Close()

		archiveWriter = archive.NewWriter(chstore.NewTradeStore(conn), archive.Options{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval(),
			QueueCapacity: cfg.Archive.QueueCapacity,
			Logger:        log.New(os.Stdout, "[archive] ", log.LstdFlags|log.Lshortfile),
		})
		logger.Println("Trade archive enabled")
	}

	gateway := enrichment.NewDexScreener(
		enrichment.WithBaseURL(cfg.Enrichment.DexScreenerBaseURL),
		enrichment.WithHTTPClient(&http.Client{Timeout: cfg.Enrichment.Timeout()}),
		enrichment.WithRateLimit(cfg.Enrichment.RateLimitPerSecond),
		enrichment.WithLogger(log.New(os.Stdout, "[enrichment] ", log.LstdFlags|log.Lshortfile)),
	)

	var holders enrichment.HolderSource
	if cfg.Enrichment.SolanaRPCEndpoint != "" && cfg.Filters.MaxTopHolderPct > 0 {
		holders = enrichment.NewRPCHolderSource(solana.NewHTTPClient(cfg.Enrichment.SolanaRPCEndpoint))
		logger.Println("Holder concentration filter enabled")
	}

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	signalsLogger := log.New(os.Stdout, "[signals] ", log.LstdFlags|log.Lshortfile)
	generator := signals.NewGenerator(signals.GeneratorOptions{
		Store:       stores.signals,
		Gateway:     gateway,
		Chain:       filters.FromConfig(cfg.Filters),
		Holders:     holders,
		Notifier:    notifier,
		DedupWindow: cfg.Signals.DedupWindow(),
		Logger:      signalsLogger,
	})
	tracker := signals.NewTracker(signals.TrackerOptions{
		Store:         stores.signals,
		Gateway:       gateway,
		Notifier:      notifier,
		ExpiryHorizon: cfg.Signals.ExpiryHorizon(),
		Logger:        signalsLogger,
	})

	// Warm the dedup cache so a restart does not re-signal recent tokens.
	if err := generator.Load(ctx); err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Idempotency: stores.idempotency,
		Generator:   generator,
		Tracker:     tracker,
		Archive:     archiveWriter,
		Logger:      log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lshortfile),
	})

	feed := wsfeed.New(wsfeed.Options{
		URL:            cfg.Feed.URL,
		Sink:           p,
		ReconnectDelay: cfg.Feed.ReconnectDelay(),
		Logger:         log.New(os.Stdout, "[wsfeed] ", log.LstdFlags|log.Lshortfile),
	})

	archiveDone := make(chan struct{})
	if archiveWriter != nil {
		go func() {
			defer close(archiveDone)
			archiveWriter.Run(ctx)
		}()
	} else {
		close(archiveDone)
	}

	go runExpirySweep(ctx, tracker, stores.signals, cfg.Signals.SweepInterval(), logger)
	go runIdempotencyPrune(ctx, stores.idempotency, cfg.Idempotency.Retention(), cfg.Idempotency.PruneInterval(), logger)

	logger.Printf("Consuming feed %s", cfg.Feed.URL)
	err = feed.Run(ctx)

	// Run only returns after cancellation; let the archive finish its final
	// flush before the stores close.
	<-archiveDone
	return err
}

// allStores holds the storage implementations behind one mode label.
type allStores struct {
	idempotency storage.IdempotencyStore
	signals     storage.SignalStore
	mode        string
}

// createStores creates the stores for the selected storage mode.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			idempotency: memory.NewIdempotencyStore(),
			signals:     memory.NewSignalStore(),
			mode:        "memory",
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, int32(cfg.Postgres.MaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	idem, err := storage.NewCachedIdempotencyStore(pgstore.NewIdempotencyStore(pool), cfg.Idempotency.CacheCapacity)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	stores := &allStores{
		idempotency: idem,
		signals:     pgstore.NewSignalStore(pool),
		mode:        "postgres",
	}
	return stores, func() { pool.Close() }, nil
}

// buildNotifier assembles the configured announcement sinks.
func buildNotifier(cfg *config.Config, logger *log.Logger) (notify.Notifier, func(), error) {
	var sinks notify.Multi
	closeNotifier := func() {}
	notifyLogger := log.New(os.Stdout, "[notify] ", log.LstdFlags|log.Lshortfile)

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			notify.WithTelegramRate(cfg.Telegram.RatePerMin),
			notify.WithTelegramLogger(notifyLogger),
		))
		logger.Println("Telegram notifications enabled")
	}

	if cfg.NATS.URL != "" {
		js, err := notify.NewJetStream(cfg.NATS.URL,
			notify.WithStreamName(cfg.NATS.Stream),
			notify.WithSubjectPrefix(cfg.NATS.SubjectPrefix),
			notify.WithJetStreamLogger(notifyLogger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect jetstream: %w", err)
		}
		sinks = append(sinks, js)
		closeNotifier = func() { js.Close() }
		logger.Println("JetStream notifications enabled")
	}

	if len(sinks) == 0 {
		return nil, closeNotifier, nil
	}
	return sinks, closeNotifier, nil
}

// runExpirySweep closes pending signals past the tracking horizon and keeps
// the pending gauge current.
func runExpirySweep(ctx context.Context, tracker *signals.Tracker, store storage.SignalStore, interval time.Duration, logger *log.Logger) {
	logger.Printf("Starting expiry sweep (interval: %v)", interval)

	sweep := func() {
		n, err := tracker.ExpireStale(ctx)
		if err != nil {
			logger.Printf("Expiry sweep failed: %v", err)
			return
		}
		if n > 0 {
			logger.Printf("Expired %d stale signals", n)
		}
		if stats, err := store.Stats(ctx); err == nil {
			observability.SetPendingSignals(stats.Pending)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// runIdempotencyPrune drops processed signatures older than the retention
// window on a schedule.
func runIdempotencyPrune(ctx context.Context, store storage.IdempotencyStore, retention, interval time.Duration, logger *log.Logger) {
	logger.Printf("Starting idempotency prune (interval: %v, retention: %v)", interval, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention).UnixMilli()
			n, err := store.PruneBefore(ctx, cutoff)
			if err != nil {
				logger.Printf("Idempotency prune failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("Pruned %d processed signatures", n)
			}
		}
	}
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
