package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/pricing"
	"github.com/urfave/cli/v2"
)

// quoteOutput is what the quote command prints in JSON mode.
type quoteOutput struct {
	pricing.Quote
	Network   chains.Network `json:"network"`
	Recipient string         `json:"recipient"`
	Closed    bool           `json:"closed"`
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "Price a purchase on one network",
		ArgsUsage: "<network>",
		Description: `Price a purchase of 1-10 shares at the current presale day, or at
the day given with --day. Out of range share counts are clamped.

Example:
  presale quote --shares 3 ETH
  presale --testnet --json quote --day 12 SOL_TEST`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "shares",
				Aliases: []string{"n"},
				Usage:   "Number of shares to buy",
				Value:   pricing.MinShares,
			},
			&cli.IntFlag{
				Name:  "day",
				Usage: "Price at this 1-based presale day instead of today",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: network")
			}
			cfg, registry, err := loadConfig(c)
			if err != nil {
				return err
			}

			key := chains.Network(strings.ToUpper(c.Args().First()))
			network, ok := registry.Lookup(key)
			if !ok {
				return fmt.Errorf("unknown network %q", key)
			}
			chainCfg, err := registry.ConfigFor(key)
			if err != nil {
				return err
			}

			window := cfg.Window()
			now := time.Now()
			var quote pricing.Quote
			if c.IsSet("day") {
				quote = pricing.Calculate(chainCfg, c.Int("day"), c.Int("shares"))
			} else {
				quote = window.QuoteAt(chainCfg, now, c.Int("shares"))
			}

			out := quoteOutput{
				Quote:     quote,
				Network:   network.Key,
				Recipient: network.Recipient,
				Closed:    window.Closed(now),
			}
			if jsonOutput(c) {
				return outputJSON(c, out)
			}

			fmt.Printf("Network:          %s (%s)\n", network.Name, network.Key)
			fmt.Printf("Presale Day:      %d of %d\n", quote.ElapsedDays, window.DurationDays)
			fmt.Printf("Shares:           %d\n", quote.Shares)
			fmt.Printf("Price per Token:  %s %s\n", quote.PricePerToken, quote.Symbol)
			fmt.Printf("Tokens per Share: %d\n", quote.TokensPerShare)
			fmt.Printf("Tokens:           %d\n", quote.TokensForPurchase)
			fmt.Printf("Cost:             %s %s\n", quote.NativeAssetCost.String(), quote.Symbol)
			fmt.Printf("Recipient:        %s\n", network.Recipient)
			if out.Closed {
				fmt.Fprintf(os.Stderr, "\nThe presale has closed.\n")
			}
			return nil
		},
	}
}

func networksCommand() *cli.Command {
	return &cli.Command{
		Name:    "networks",
		Usage:   "List the supported networks",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			_, registry, err := loadConfig(c)
			if err != nil {
				return err
			}

			networks := registry.Networks(c.Bool("testnet"))
			if jsonOutput(c) {
				return outputJSON(c, networks)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tCHAIN\tASSET\tRECIPIENT")
			for _, n := range networks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					n.Key,
					n.Name,
					n.Identity.String(),
					n.Asset,
					n.Recipient,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d networks\n", len(networks))
			return nil
		},
	}
}

// presaleStatus is the presale window at one instant.
type presaleStatus struct {
	Start         time.Time               `json:"start"`
	End           time.Time               `json:"end"`
	DurationDays  int                     `json:"duration_days"`
	ElapsedDays   int                     `json:"elapsed_days"`
	Closed        bool                    `json:"closed"`
	NextIncrease  time.Duration           `json:"next_increase_ns"`
	PricePerToken map[chains.Asset]string `json:"price_per_token"`
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the presale window and today's unit prices",
		Action: func(c *cli.Context) error {
			cfg, registry, err := loadConfig(c)
			if err != nil {
				return err
			}

			status := buildStatus(cfg.Window(), registry, time.Now())
			if jsonOutput(c) {
				return outputJSON(c, status)
			}

			fmt.Printf("Start:          %s\n", status.Start.Format(time.RFC3339))
			fmt.Printf("End:            %s\n", status.End.Format(time.RFC3339))
			fmt.Printf("Day:            %d of %d\n", status.ElapsedDays, status.DurationDays)
			if status.Closed {
				fmt.Printf("Status:         closed\n")
			} else {
				fmt.Printf("Status:         open\n")
				if status.NextIncrease > 0 {
					fmt.Printf("Next Increase:  in %s\n", status.NextIncrease.Truncate(time.Second))
				}
			}
			fmt.Printf("\nPrice per Token:\n")
			for _, asset := range chains.Assets {
				if price, ok := status.PricePerToken[asset]; ok {
					fmt.Printf("  %-4s %s\n", asset, price)
				}
			}
			return nil
		},
	}
}

func buildStatus(window pricing.Window, registry *chains.Registry, now time.Time) presaleStatus {
	status := presaleStatus{
		Start:         window.Start,
		End:           window.End(),
		DurationDays:  window.DurationDays,
		ElapsedDays:   window.ElapsedDays(now),
		Closed:        window.Closed(now),
		NextIncrease:  window.NextIncrease(now),
		PricePerToken: make(map[chains.Asset]string, len(chains.Assets)),
	}
	for _, asset := range chains.Assets {
		if cfg, ok := registry.Config(asset); ok {
			status.PricePerToken[asset] = window.QuoteAt(cfg, now, pricing.MinShares).PricePerToken
		}
	}
	return status
}
