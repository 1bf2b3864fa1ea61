package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"solana-launch-signals/internal/domain"
	chstore "solana-launch-signals/internal/storage/clickhouse"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a token's archived trade history",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum records to list",
				Value:   100,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: token address")
			}
			address := c.Args().First()

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.ClickHouse.DSN == "" {
				return fmt.Errorf("clickhouse DSN is required (set LAUNCHSIG__CLICKHOUSE__DSN or clickhouse.dsn in the config)")
			}

			conn, err := chstore.NewConn(context.Background(), cfg.ClickHouse.DSN)
			if err != nil {
				return fmt.Errorf("connect to clickhouse: %w", err)
			}
			defer conn.Close()

			records, err := chstore.NewTradeStore(conn).GetByToken(context.Background(), address, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("get trade history: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(rowsFromTrades(records))
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OBSERVED\tEVENT\tPRICE\tBASE\tQUOTE\tVENUE\tTX")
			for _, rec := range records {
				venue := rec.Venue
				if venue == "" {
					venue = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%s\t%s\n",
					time.UnixMilli(rec.ObservedAt).Format(time.RFC3339),
					rec.EventType,
					formatPrice(rec.UnitPrice),
					rec.BaseAmount,
					rec.QuoteAmount,
					venue,
					rec.TxSignature,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d records\n", len(records))
			return nil
		},
	}
}

// tradeRow is the JSON view of one archived trade observation.
type tradeRow struct {
	TokenAddress string  `json:"token_address"`
	TxSignature  string  `json:"tx_signature"`
	Slot         int64   `json:"slot"`
	ObservedAt   int64   `json:"observed_at"`
	EventType    string  `json:"event_type"`
	BaseAmount   float64 `json:"base_amount"`
	QuoteAmount  float64 `json:"quote_amount"`
	UnitPrice    float64 `json:"unit_price"`
	Venue        string  `json:"venue,omitempty"`
}

func rowsFromTrades(records []*domain.TradeRecord) []tradeRow {
	rows := make([]tradeRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, tradeRow{
			TokenAddress: rec.TokenAddress,
			TxSignature:  rec.TxSignature,
			Slot:         rec.Slot,
			ObservedAt:   rec.ObservedAt,
			EventType:    rec.EventType.String(),
			BaseAmount:   rec.BaseAmount,
			QuoteAmount:  rec.QuoteAmount,
			UnitPrice:    rec.UnitPrice,
			Venue:        rec.Venue,
		})
	}
	return rows
}
