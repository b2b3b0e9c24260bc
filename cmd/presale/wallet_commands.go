package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brojonat/presale/client"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/config"
	"github.com/brojonat/presale/service/dispatch"
	"github.com/brojonat/presale/service/evm"
	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/brojonat/presale/service/notify"
	"github.com/brojonat/presale/service/provider"
	"github.com/brojonat/presale/service/pricing"
	"github.com/brojonat/presale/service/solana"
	"github.com/brojonat/presale/service/wallet"
	"github.com/urfave/cli/v2"
)

func walletFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "evm-key",
			Usage:   "Hex EVM private key, or a file containing one",
			EnvVars: []string{"EVM_PRIVATE_KEY"},
		},
		&cli.StringFlag{
			Name:    "solana-keypair",
			Usage:   "Path to a solana-keygen JSON keypair",
			EnvVars: []string{"SOLANA_KEYPAIR"},
		},
	}
}

// stderrNotifier prints wallet and transaction notices for the terminal user.
func stderrNotifier(w io.Writer) notify.Notifier {
	return notify.NotifierFunc(func(ctx context.Context, n notify.Notification) {
		fmt.Fprintf(w, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
	})
}

// localWallet is a wallet session backed by keys on disk.
type localWallet struct {
	manager   *wallet.Manager
	providers provider.Set
	evm       *evm.Provider
}

func (lw *localWallet) Close() {
	lw.manager.Close()
	if lw.evm != nil {
		lw.evm.Close()
	}
}

// openWallet loads the configured keys and connects a session on target.
func openWallet(c *cli.Context, cfg *config.Config, registry *chains.Registry, target chains.NetworkInfo, notifier notify.Notifier, logger *slog.Logger) (*localWallet, error) {
	ctx := c.Context
	lw := &localWallet{}

	if keyArg := c.String("evm-key"); keyArg != "" {
		key, err := evm.LoadKey(keyArg)
		if err != nil {
			return nil, err
		}
		// attach straight to the target chain when it is EVM
		start := target.Identity
		if !start.IsEVM() {
			eth, _ := registry.Lookup(chains.ETH)
			if cfg.Testnet {
				eth, _ = registry.Lookup(chains.ETHTest)
			}
			start = eth.Identity
		}
		p, err := evm.NewProvider(ctx, evm.ProviderConfig{
			Key:      key,
			Registry: registry,
			ChainID:  start.ChainID(),
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		lw.evm = p
		lw.providers.EVM = p
	}

	if path := c.String("solana-keypair"); path != "" {
		kp, err := solana.LoadKeypairProvider(path)
		if err != nil {
			lw.closeProviders()
			return nil, err
		}
		lw.providers.Solana = kp
	}

	if lw.providers.Empty() {
		return nil, fmt.Errorf("%w: set --evm-key or --solana-keypair", provider.ErrWalletNotFound)
	}

	lw.manager = wallet.NewManager(lw.providers, registry, notifier, logger, wallet.Config{
		Testnet:         cfg.Testnet,
		SwitchTimeout:   cfg.SwitchTimeout,
		DisconnectGrace: cfg.DisconnectGrace,
	})

	session, err := lw.manager.Connect(ctx)
	if err != nil {
		lw.Close()
		return nil, err
	}
	if session.Chain != target.Identity {
		if err := lw.manager.SwitchNetwork(ctx, target.Key); err != nil {
			lw.Close()
			return nil, err
		}
	}
	return lw, nil
}

func (lw *localWallet) closeProviders() {
	if lw.evm != nil {
		lw.evm.Close()
	}
}

func lookupNetwork(registry *chains.Registry, arg string) (chains.NetworkInfo, error) {
	key := chains.Network(strings.ToUpper(strings.TrimSpace(arg)))
	network, ok := registry.Lookup(key)
	if !ok {
		return chains.NetworkInfo{}, fmt.Errorf("%w: %s", provider.ErrUnsupportedNetwork, key)
	}
	return network, nil
}

// walletStatus is the connected session and what it holds.
type walletStatus struct {
	wallet.Session
	State   string         `json:"state"`
	Network chains.Network `json:"network"`
	Balance string         `json:"balance,omitempty"`
	Symbol  string         `json:"symbol"`
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Connect the local wallet on a network and show its balance",
		ArgsUsage: "<network>",
		Flags:     walletFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: network")
			}
			cfg, registry, err := loadConfig(c)
			if err != nil {
				return err
			}
			network, err := lookupNetwork(registry, c.Args().First())
			if err != nil {
				return err
			}
			logger := getLogger(c)

			lw, err := openWallet(c, cfg, registry, network, stderrNotifier(os.Stderr), logger)
			if err != nil {
				return err
			}
			defer lw.Close()

			session := lw.manager.Session()
			status := walletStatus{
				Session: session,
				State:   lw.manager.State().String(),
				Network: network.Key,
				Symbol:  network.NativeCurrency.Symbol,
			}

			oracle := newOracle(cfg, registry, logger)
			b := oracle.PollAll(c.Context, map[chains.Asset]string{network.Asset: session.Address}, network.Testnet)
			if v := b[network.Asset]; v != nil {
				status.Balance = v.String()
			}

			if jsonOutput(c) {
				return outputJSON(c, status)
			}

			fmt.Printf("Address:  %s\n", status.Address)
			fmt.Printf("Network:  %s (chain %s)\n", network.Name, status.Chain.String())
			fmt.Printf("State:    %s\n", status.State)
			if status.Balance != "" {
				fmt.Printf("Balance:  %s %s\n", b.Display(network.Asset), status.Symbol)
			} else {
				fmt.Printf("Balance:  unavailable\n")
			}
			return nil
		},
	}
}

// buyReceipt is what the buy command prints after a successful send.
type buyReceipt struct {
	Hash        string         `json:"hash"`
	Network     chains.Network `json:"network"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Amount      string         `json:"amount"`
	Symbol      string         `json:"symbol"`
	Tokens      int64          `json:"tokens"`
	Inviter     string         `json:"inviter,omitempty"`
	ExplorerURL string         `json:"explorer_url"`
}

func buyCommand() *cli.Command {
	flags := append(walletFlags(),
		&cli.IntFlag{
			Name:    "shares",
			Aliases: []string{"n"},
			Usage:   "Number of shares to buy (1-10)",
			Value:   pricing.MinShares,
		},
		&cli.StringFlag{
			Name:  "inviter",
			Usage: "Address of the inviter to credit",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Skip the confirmation prompt",
		},
		&cli.BoolFlag{
			Name:  "record",
			Usage: "Record the purchase in the ledger at --database-url",
		},
		&cli.BoolFlag{
			Name:  "publish",
			Usage: "Publish the purchase on NATS at --nats-url",
		},
	)

	return &cli.Command{
		Name:      "buy",
		Usage:     "Buy presale shares from the local wallet",
		ArgsUsage: "<network>",
		Description: `Quote a purchase at today's price and send the native cost to the
network's presale recipient. A purchase with --inviter is attributed on the
referral backend once the transaction is sent.

Example:
  presale wallet buy --shares 2 --evm-key ./key.hex ETH
  presale --testnet wallet buy --solana-keypair ~/.config/solana/id.json -y SOL_TEST`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: network")
			}
			cfg, registry, err := loadConfig(c)
			if err != nil {
				return err
			}
			network, err := lookupNetwork(registry, c.Args().First())
			if err != nil {
				return err
			}
			chainCfg, err := registry.ConfigFor(network.Key)
			if err != nil {
				return err
			}

			window := cfg.Window()
			now := time.Now()
			if window.Closed(now) {
				return fmt.Errorf("the presale closed at %s", window.End().Format(time.RFC3339))
			}
			quote := window.QuoteAt(chainCfg, now, c.Int("shares"))

			inviter := strings.TrimSpace(c.String("inviter"))
			if inviter != "" {
				if err := validateInviter(inviter); err != nil {
					return err
				}
			}

			logger := getLogger(c)
			notifier := stderrNotifier(os.Stderr)

			lw, err := openWallet(c, cfg, registry, network, notifier, logger)
			if err != nil {
				return err
			}
			defer lw.Close()
			from := lw.manager.Session().Address

			fmt.Fprintf(os.Stderr, "Buying %d share(s) on %s: %d tokens for %s %s\n",
				quote.Shares, network.Name, quote.TokensForPurchase, quote.NativeAssetCost.String(), quote.Symbol)
			fmt.Fprintf(os.Stderr, "  From: %s\n  To:   %s\n", from, network.Recipient)

			if !c.Bool("yes") {
				ok, err := confirm(os.Stdin, os.Stderr, "Send transaction?")
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("purchase cancelled")
				}
			}

			var hooks []dispatch.Hook
			if inviter != "" {
				hooks = append(hooks, dispatch.ReferralHook{
					Recorder: client.NewClient(c.String("backend-url"), nil, logger),
				})
			}
			if c.Bool("record") {
				store, closer, err := getStore(c)
				if err != nil {
					return err
				}
				defer closer()
				hooks = append(hooks, dispatch.LedgerHook{Store: store})
			}
			if c.Bool("publish") {
				publisher, err := natspkg.NewPublisher(c.String("nats-url"), nil, logger)
				if err != nil {
					return err
				}
				defer publisher.Close()
				hooks = append(hooks, dispatch.PublishHook{Publisher: publisher})
			}

			pool := solana.NewPool(cfg.RetryPolicy(), nil, logger)
			solanaFor := func(n chains.NetworkInfo) (dispatch.SolanaLedger, error) {
				return pool.For(string(n.Key), n.RPCURLs)
			}

			dispatcher := dispatch.NewDispatcher(
				lw.manager,
				lw.providers,
				registry,
				solanaFor,
				notifier,
				nil,
				logger,
				dispatch.Config{
					FeeLamports:    cfg.SolanaFeeLamports,
					ConfirmTimeout: cfg.ConfirmTimeout,
				},
				hooks...,
			)

			hash, err := dispatcher.Send(c.Context, dispatch.TransferRequest{
				To:          network.Recipient,
				Amount:      quote.NativeAssetCost,
				Chain:       network.Identity,
				TokenAmount: quote.TokensForPurchase,
				Inviter:     inviter,
			})
			if err != nil {
				if hash != "" {
					fmt.Fprintf(os.Stderr, "Transaction %s did not confirm\n", hash)
				}
				return err
			}

			receipt := buyReceipt{
				Hash:        hash,
				Network:     network.Key,
				From:        from,
				To:          network.Recipient,
				Amount:      quote.NativeAssetCost.String(),
				Symbol:      string(quote.Symbol),
				Tokens:      quote.TokensForPurchase,
				Inviter:     inviter,
				ExplorerURL: network.TxURL(hash),
			}
			if jsonOutput(c) {
				return outputJSON(c, receipt)
			}

			fmt.Printf("✓ Transaction sent: %s\n", receipt.Hash)
			if receipt.ExplorerURL != "" {
				fmt.Printf("  Explorer: %s\n", receipt.ExplorerURL)
			}
			fmt.Printf("  Tokens:   %d\n", receipt.Tokens)
			return nil
		},
	}
}

// validateInviter accepts an EVM or a Solana address.
func validateInviter(addr string) error {
	if chains.ValidateAddress(chains.EVM(1), addr) == nil || chains.ValidateAddress(chains.Solana, addr) == nil {
		return nil
	}
	return fmt.Errorf("invalid inviter %q: must be an EVM or Solana address", addr)
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
