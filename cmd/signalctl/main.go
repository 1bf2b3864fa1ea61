package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "signalctl",
		Usage: "Inspect and maintain token launch signals",
		Description: `A command-line tool for operating the launch signal service.

Use it to check aggregate outcomes, list recent and pending signals,
force an expiry sweep and pull a token's archived trade history.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			statsCommand(),
			recentCommand(),
			pendingCommand(),
			tokenCommand(),
			expireCommand(),
			historyCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to TOML config file (default: config/default.toml if present)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
