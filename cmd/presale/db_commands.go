package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/db"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the purchase ledger tables",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Printf("✓ Schema applied\n")
			return nil
		},
	}
}

func listPurchasesCommand() *cli.Command {
	return &cli.Command{
		Name:    "purchases",
		Usage:   "List recorded purchases, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Only purchases made from this address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of purchases to show",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := context.Background()
			var purchases []*db.Purchase
			if address := strings.TrimSpace(c.String("address")); address != "" {
				purchases, err = store.ListPurchasesByAddress(ctx, address, int32(limit))
			} else {
				purchases, err = store.ListRecentPurchases(ctx, int32(limit))
			}
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, purchases)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX HASH\tNETWORK\tFROM\tAMOUNT\tTOKENS\tINVITER\tCREATED")
			for _, p := range purchases {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					p.TxHash,
					p.Network,
					p.FromAddress,
					p.NativeAmount,
					p.TokenAmount,
					formatOptional(p.Inviter),
					p.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d purchases\n", len(purchases))
			if sold, err := store.TokensSold(ctx); err == nil {
				fmt.Fprintf(os.Stderr, "Tokens sold (all purchases): %d\n", sold)
			}
			return nil
		},
	}
}

func getPurchaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-purchase",
		Usage:     "Show one recorded purchase",
		ArgsUsage: "<tx-hash>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "network",
				Usage:    "Network key the purchase was made on",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction hash")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			network := strings.ToUpper(c.String("network"))
			p, err := store.GetPurchase(context.Background(), c.Args().First(), network)
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("no purchase %s on %s", c.Args().First(), network)
			}
			if err != nil {
				return fmt.Errorf("failed to get purchase: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, p)
			}

			fmt.Printf("Tx Hash:     %s\n", p.TxHash)
			fmt.Printf("Network:     %s (chain %s)\n", p.Network, p.ChainID)
			fmt.Printf("From:        %s\n", p.FromAddress)
			fmt.Printf("To:          %s\n", p.ToAddress)
			fmt.Printf("Amount:      %s\n", p.NativeAmount)
			fmt.Printf("Tokens:      %d\n", p.TokenAmount)
			fmt.Printf("Inviter:     %s\n", formatOptional(p.Inviter))
			fmt.Printf("Created:     %s\n", p.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func raisedSnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "raised",
		Usage: "Show the latest recorded raised amount of each asset",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			snaps, err := store.LatestRaisedSnapshots(context.Background())
			if err != nil {
				return fmt.Errorf("failed to load snapshots: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, snaps)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tNETWORK\tADDRESS\tBALANCE\tPOLLED")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.Asset,
					s.Network,
					s.Address,
					formatSnapshotBalance(s.Balance),
					s.PolledAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d snapshots\n", len(snaps))
			return nil
		},
	}
}

// Helper function to format optional text
func formatOptional(s string) string {
	if s != "" {
		return s
	}
	return "-"
}

func formatSnapshotBalance(b *string) string {
	if b == nil {
		return "(failed)"
	}
	d, err := decimal.NewFromString(*b)
	if err != nil {
		return *b
	}
	return balance.FormatDisplay(d)
}
