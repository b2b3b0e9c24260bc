package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/presale/client"
	"github.com/brojonat/presale/service/chains"
	"github.com/urfave/cli/v2"
)

func getReferralClient(c *cli.Context) *client.Client {
	httpClient := &http.Client{Timeout: c.Duration("timeout")}
	return client.NewClient(c.String("backend-url"), httpClient, getLogger(c))
}

func inviteTimeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: 30 * time.Second,
	}
}

func inviteInfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show how many users an address invited and its reward",
		ArgsUsage: "<address>",
		Flags:     []cli.Flag{inviteTimeoutFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}
			address := strings.TrimSpace(c.Args().First())
			if err := validateInviter(address); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			info, err := getReferralClient(c).InviteInfo(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to fetch invite info: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, info)
			}

			fmt.Printf("Address:        %s\n", address)
			fmt.Printf("Users Invited:  %d\n", info.TotalUserInvited)
			fmt.Printf("Reward:         %s\n", info.TotalManusReward.String())
			return nil
		},
	}
}

func inviteRecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Attribute a sent purchase to an inviter",
		Description: `Report a purchase to the referral backend by hand, e.g. when the
automatic report after "wallet buy" failed.

Example:
  presale invite record --network ETH --address 0xbuyer... --inviter 0xfriend... \
    --tx-hash 0xabc... --tokens 9000`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "network", Usage: "Network key of the purchase", Required: true},
			&cli.StringFlag{Name: "address", Usage: "Buyer address", Required: true},
			&cli.StringFlag{Name: "inviter", Usage: "Inviter address", Required: true},
			&cli.StringFlag{Name: "tx-hash", Usage: "Transaction hash or signature", Required: true},
			&cli.Int64Flag{Name: "tokens", Usage: "Tokens bought", Required: true},
			inviteTimeoutFlag(),
		},
		Action: func(c *cli.Context) error {
			_, registry, err := loadConfig(c)
			if err != nil {
				return err
			}
			network, err := lookupNetwork(registry, c.String("network"))
			if err != nil {
				return err
			}
			if err := chains.ValidateAddress(network.Identity, c.String("address")); err != nil {
				return err
			}
			if err := validateInviter(c.String("inviter")); err != nil {
				return err
			}
			if c.Int64("tokens") <= 0 {
				return fmt.Errorf("tokens must be positive")
			}

			rec := client.InviteRecord{
				ChainID:     inviteChainID(network),
				ChainName:   string(network.Key),
				Address:     c.String("address"),
				ManusAmount: c.Int64("tokens"),
				TxHash:      c.String("tx-hash"),
				Inviter:     c.String("inviter"),
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			if err := getReferralClient(c).RecordInvite(ctx, rec); err != nil {
				return fmt.Errorf("failed to record invite: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, rec)
			}
			fmt.Printf("✓ Invite recorded for %s (inviter %s)\n", rec.TxHash, rec.Inviter)
			return nil
		},
	}
}

// inviteChainID is the chain id the backend expects: hex for EVM, "SOL" for Solana.
func inviteChainID(n chains.NetworkInfo) string {
	if hex := n.ChainIDHex(); hex != "" {
		return hex
	}
	return n.Identity.String()
}
