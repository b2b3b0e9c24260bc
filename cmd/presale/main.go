package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/presale/client"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "presale",
		Usage: "Multi-chain presale pricing and purchase CLI",
		Description: `A command-line tool for the presale service.

Use this CLI to quote prices, check raised amounts, buy shares from a local
key, inspect the purchase ledger, and manage Temporal schedules and NATS streams.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Pricing, offline against the local config
			quoteCommand(),
			networksCommand(),
			statusCommand(),
			// RPC reads and writes
			balancesCommand(),
			{
				Name:  "wallet",
				Usage: "Local wallet commands",
				Subcommands: []*cli.Command{
					walletStatusCommand(),
					buyCommand(),
				},
			},
			// Referral backend
			{
				Name:  "invite",
				Usage: "Referral backend commands",
				Subcommands: []*cli.Command{
					inviteInfoCommand(),
					inviteRecordCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Purchase ledger commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listPurchasesCommand(),
					getPurchaseCommand(),
					raisedSnapshotsCommand(),
				},
			},
			// Temporal inspection and management commands
			{
				Name:  "temporal",
				Usage: "Temporal inspection and management commands",
				Subcommands: []*cli.Command{
					listSchedulesCommand(),
					describeScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					upsertScheduleCommand(),
					pollNowCommand(),
				},
			},
			// NATS event streaming commands
			{
				Name:  "nats",
				Usage: "NATS event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Streaming through the HTTP API
			{
				Name:  "stream",
				Usage: "Stream events from the API server",
				Subcommands: []*cli.Command{
					streamPurchasesCommand(),
					streamRaisedCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue of the balance worker",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "presale-balance-polling",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "API server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "backend-url",
				Usage:   "Referral backend URL",
				EnvVars: []string{"BACKEND_URL"},
				Value:   client.DefaultBaseURL,
			},
			&cli.BoolFlag{
				Name:    "testnet",
				Aliases: []string{"t"},
				Usage:   "Use the testnet networks",
				EnvVars: []string{"PRESALE_TESTNET"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for diagnostics on stderr",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to JSON output (implies --json)",
			},
		},
	}
}
