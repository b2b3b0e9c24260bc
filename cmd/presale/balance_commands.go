package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/config"
	"github.com/brojonat/presale/service/evm"
	"github.com/brojonat/presale/service/retry"
	"github.com/brojonat/presale/service/solana"
	"github.com/urfave/cli/v2"
)

// balanceRow is one line of balances output.
type balanceRow struct {
	Asset   chains.Asset   `json:"asset"`
	Network chains.Network `json:"network"`
	Address string         `json:"address"`
	Balance *string        `json:"balance"`
	Display string         `json:"display"`
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:  "balances",
		Usage: "Read the raised amount held by each presale recipient",
		Description: `Read the native balance of each asset's recipient over RPC. A failed
lookup prints as 0 and is reported on stderr.

Example:
  presale balances
  presale balances --address ETH=0xabc... --watch --interval 30s`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "address",
				Usage: "Read ASSET=ADDRESS instead of the recipient (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Keep polling until interrupted",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval with --watch",
				Value: balance.DefaultInterval,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, registry, err := loadConfig(c)
			if err != nil {
				return err
			}
			testnet := c.Bool("testnet")

			addrs := balance.RecipientAddresses(registry, testnet)
			overrides, err := parseAddressOverrides(c.StringSlice("address"))
			if err != nil {
				return err
			}
			for asset, addr := range overrides {
				addrs[asset] = addr
			}

			oracle := newOracle(cfg, registry, getLogger(c))

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sink := func(ctx context.Context, b balance.Balances) {
				rows := balanceRows(registry, addrs, b, testnet)
				if err := printBalances(c, rows); err != nil {
					fmt.Fprintf(os.Stderr, "Error printing balances: %v\n", err)
				}
				if failed := b.Failed(); len(failed) > 0 {
					fmt.Fprintf(os.Stderr, "Failed lookups: %v\n", failed)
				}
			}

			if !c.Bool("watch") {
				sink(ctx, oracle.PollAll(ctx, addrs, testnet))
				return nil
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			if !jsonOutput(c) {
				fmt.Fprintf(os.Stderr, "Polling every %s... (Ctrl+C to stop)\n\n", c.Duration("interval"))
			}
			if err := oracle.Run(ctx, c.Duration("interval"), addrs, testnet, sink); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// newOracle wires RPC readers for every chain family. The oracle retries per
// asset so the clients underneath try once.
func newOracle(cfg *config.Config, registry *chains.Registry, logger *slog.Logger) *balance.Oracle {
	once := retry.Policy{MaxAttempts: 1}
	pool := solana.NewPool(once, nil, logger)
	solanaReader := balance.SolanaReader{
		For: func(n chains.NetworkInfo) (balance.SolanaBalancer, error) {
			return pool.For(string(n.Key), n.RPCURLs)
		},
	}
	return balance.NewOracle(
		registry,
		evm.NewBalanceReader(evm.DialEthClient, nil, logger),
		solanaReader,
		cfg.RetryPolicy(),
		nil,
		logger,
	)
}

func parseAddressOverrides(pairs []string) (map[chains.Asset]string, error) {
	out := make(map[chains.Asset]string, len(pairs))
	for _, pair := range pairs {
		asset, addr, ok := strings.Cut(pair, "=")
		if !ok || addr == "" {
			return nil, fmt.Errorf("invalid --address %q: want ASSET=ADDRESS", pair)
		}
		a := chains.Asset(strings.ToUpper(strings.TrimSpace(asset)))
		known := false
		for _, candidate := range chains.Assets {
			if candidate == a {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("invalid --address %q: unknown asset %s", pair, a)
		}
		out[a] = strings.TrimSpace(addr)
	}
	return out, nil
}

func balanceRows(registry *chains.Registry, addrs map[chains.Asset]string, b balance.Balances, testnet bool) []balanceRow {
	rows := make([]balanceRow, 0, len(addrs))
	for _, asset := range chains.Assets {
		addr, ok := addrs[asset]
		if !ok {
			continue
		}
		row := balanceRow{Asset: asset, Address: addr, Display: b.Display(asset)}
		if n, ok := registry.BalanceNetwork(asset, testnet); ok {
			row.Network = n.Key
		}
		if v := b[asset]; v != nil {
			s := v.String()
			row.Balance = &s
		}
		rows = append(rows, row)
	}
	return rows
}

func printBalances(c *cli.Context, rows []balanceRow) error {
	if jsonOutput(c) {
		return outputJSON(c, rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tNETWORK\tADDRESS\tBALANCE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Asset, row.Network, row.Address, row.Display)
	}
	w.Flush()
	fmt.Fprintf(os.Stderr, "\nPolled at %s\n", time.Now().UTC().Format(time.RFC3339))
	return nil
}
