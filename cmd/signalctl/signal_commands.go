package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"solana-launch-signals/internal/config"
	"solana-launch-signals/internal/domain"
	"solana-launch-signals/internal/enrichment"
	"solana-launch-signals/internal/signals"
	"solana-launch-signals/internal/storage"
	pgstore "solana-launch-signals/internal/storage/postgres"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregate signal statistics",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, closer, err := openSignalStore(cfg)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.Stats(context.Background())
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(statsRow{
					Total:       stats.Total,
					Pending:     stats.Pending,
					Migrated:    stats.Migrated,
					Expired:     stats.Expired,
					Wins:        stats.Wins,
					WinRate:     stats.WinRate,
					AvgPnLPct:   stats.AvgPnLPct,
					BestPnLPct:  stats.BestPnLPct,
					WorstPnLPct: stats.WorstPnLPct,
				})
			}

			// Pretty output
			fmt.Printf("Total:     %d\n", stats.Total)
			fmt.Printf("Pending:   %d\n", stats.Pending)
			fmt.Printf("Migrated:  %d\n", stats.Migrated)
			fmt.Printf("Expired:   %d\n", stats.Expired)
			if stats.Migrated > 0 {
				fmt.Printf("Win rate:  %.1f%% (%d wins)\n", stats.WinRate, stats.Wins)
				fmt.Printf("Avg PnL:   %+.2f%%\n", stats.AvgPnLPct)
				fmt.Printf("Best PnL:  %+.2f%%\n", stats.BestPnLPct)
				fmt.Printf("Worst PnL: %+.2f%%\n", stats.WorstPnLPct)
			}
			return nil
		},
	}
}

func recentCommand() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List recent signals, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum signals to list",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, closer, err := openSignalStore(cfg)
			if err != nil {
				return err
			}
			defer closer()

			sigs, err := store.ListRecent(context.Background(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("list signals: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(rowsFromSignals(sigs))
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tSTATUS\tENTRY\tPNL\tCREATED")
			for _, sig := range sigs {
				pnl := "-"
				if sig.Outcome != nil && sig.Outcome.RealizedPnLPct != nil {
					pnl = fmt.Sprintf("%+.1f%%", *sig.Outcome.RealizedPnLPct)
				}
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\n",
					sig.TokenAddress,
					sig.Status,
					formatPrice(sig.EntryPrice), sig.EntryDenom,
					pnl,
					time.UnixMilli(sig.CreatedAt).Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d signals\n", len(sigs))
			return nil
		},
	}
}

func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List signals still waiting on an outcome",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, closer, err := openSignalStore(cfg)
			if err != nil {
				return err
			}
			defer closer()

			sigs, err := store.ListPendingOlderThan(context.Background(), time.Now().UnixMilli())
			if err != nil {
				return fmt.Errorf("list pending signals: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(rowsFromSignals(sigs))
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tENTRY\tAGE\tCREATED")
			for _, sig := range sigs {
				age := time.Since(time.UnixMilli(sig.CreatedAt)).Round(time.Minute)
				fmt.Fprintf(w, "%s\t%s %s\t%v\t%s\n",
					sig.TokenAddress,
					formatPrice(sig.EntryPrice), sig.EntryDenom,
					age,
					time.UnixMilli(sig.CreatedAt).Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d pending\n", len(sigs))
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Show the latest signal for a token",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token address")
			}
			address := c.Args().First()

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, closer, err := openSignalStore(cfg)
			if err != nil {
				return err
			}
			defer closer()

			sig, err := store.GetLatestByToken(context.Background(), address)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no signal for %s", address)
			}
			if err != nil {
				return fmt.Errorf("get signal: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(rowFromSignal(sig))
			}

			// Pretty output
			fmt.Printf("ID:         %s\n", sig.ID)
			fmt.Printf("Token:      %s\n", sig.TokenAddress)
			fmt.Printf("Status:     %s\n", sig.Status)
			fmt.Printf("Trigger:    %s\n", sig.TriggerTx)
			fmt.Printf("Entry:      %s %s\n", formatPrice(sig.EntryPrice), sig.EntryDenom)
			if sig.MarketCapUSD != nil {
				fmt.Printf("Market cap: $%.0f\n", *sig.MarketCapUSD)
			}
			if sig.Volume1hUSD != nil {
				fmt.Printf("Volume 1h:  $%.0f\n", *sig.Volume1hUSD)
			}
			if sig.Outcome != nil {
				fmt.Printf("Exit:       %s %s\n", formatPrice(sig.Outcome.ExitPrice), sig.Outcome.ExitDenom)
				if sig.Outcome.RealizedPnLPct != nil {
					fmt.Printf("PnL:        %+.2f%%\n", *sig.Outcome.RealizedPnLPct)
				}
				fmt.Printf("Closed:     %s\n", time.UnixMilli(sig.Outcome.ClosedAt).Format(time.RFC3339))
			}
			fmt.Printf("Created:    %s\n", time.UnixMilli(sig.CreatedAt).Format(time.RFC3339))
			fmt.Printf("Updated:    %s\n", time.UnixMilli(sig.UpdatedAt).Format(time.RFC3339))
			return nil
		},
	}
}

func expireCommand() *cli.Command {
	return &cli.Command{
		Name:  "expire",
		Usage: "Run one expiry sweep over pending signals",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, closer, err := openSignalStore(cfg)
			if err != nil {
				return err
			}
			defer closer()

			tracker := signals.NewTracker(signals.TrackerOptions{
				Store:         store,
				Gateway:       enrichment.NewDexScreener(),
				ExpiryHorizon: cfg.Signals.ExpiryHorizon(),
				Logger:        log.New(io.Discard, "", 0),
			})

			n, err := tracker.ExpireStale(context.Background())
			if err != nil {
				return fmt.Errorf("expire sweep: %w", err)
			}

			fmt.Printf("Expired %d signals (horizon %v)\n", n, cfg.Signals.ExpiryHorizon())
			return nil
		},
	}
}

// signalRow is the JSON view of one signal, matching the HTTP API shape.
type signalRow struct {
	ID           string  `json:"id"`
	TokenAddress string  `json:"token_address"`
	TriggerTx    string  `json:"trigger_tx"`
	Status       string  `json:"status"`
	EntryPrice   float64 `json:"entry_price"`
	EntryDenom   string  `json:"entry_denom"`

	EntryPriceUSD *float64 `json:"entry_price_usd,omitempty"`
	MarketCapUSD  *float64 `json:"market_cap_usd,omitempty"`
	Volume1hUSD   *float64 `json:"volume_1h_usd,omitempty"`
	AgeMinutes    *float64 `json:"age_minutes,omitempty"`
	PairAddress   *string  `json:"pair_address,omitempty"`
	ChartURL      *string  `json:"chart_url,omitempty"`

	ExitPrice      *float64 `json:"exit_price,omitempty"`
	ExitDenom      string   `json:"exit_denom,omitempty"`
	RealizedPnLPct *float64 `json:"realized_pnl_pct,omitempty"`
	ClosedAt       int64    `json:"closed_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// statsRow is the JSON view of the aggregate statistics.
type statsRow struct {
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

func rowFromSignal(sig *domain.Signal) signalRow {
	row := signalRow{
		ID:            sig.ID,
		TokenAddress:  sig.TokenAddress,
		TriggerTx:     sig.TriggerTx,
		Status:        sig.Status.String(),
		EntryPrice:    sig.EntryPrice,
		EntryDenom:    sig.EntryDenom.String(),
		EntryPriceUSD: sig.EntryPriceUSD,
		MarketCapUSD:  sig.MarketCapUSD,
		Volume1hUSD:   sig.Volume1hUSD,
		AgeMinutes:    sig.AgeMinutes,
		PairAddress:   sig.PairAddress,
		ChartURL:      sig.ChartURL,
		CreatedAt:     sig.CreatedAt,
		UpdatedAt:     sig.UpdatedAt,
	}
	if sig.Outcome != nil {
		exit := sig.Outcome.ExitPrice
		row.ExitPrice = &exit
		row.ExitDenom = sig.Outcome.ExitDenom.String()
		row.RealizedPnLPct = sig.Outcome.RealizedPnLPct
		row.ClosedAt = sig.Outcome.ClosedAt
	}
	return row
}

func rowsFromSignals(sigs []*domain.Signal) []signalRow {
	rows := make([]signalRow, 0, len(sigs))
	for _, sig := range sigs {
		rows = append(rows, rowFromSignal(sig))
	}
	return rows
}

// loadConfig resolves the configuration with the global flag.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// openSignalStore connects to the configured PostgreSQL database.
func openSignalStore(cfg *config.Config) (storage.SignalStore, func(), error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil, fmt.Errorf("postgres DSN is required (set LAUNCHSIG__POSTGRES__DSN or postgres.dsn in the config)")
	}

	pool, err := pgstore.NewPool(context.Background(), cfg.Postgres.DSN, int32(cfg.Postgres.MaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pgstore.NewSignalStore(pool), func() { pool.Close() }, nil
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatPrice renders a price without scientific notation; launch prices sit
// many decimal places below one.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
