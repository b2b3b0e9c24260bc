package balance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/pricing"
	"github.com/brojonat/presale/service/retry"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 2 * time.Minute
	displayPlaces   = 6
)

// Reader fetches a native balance in the network's smallest unit.
type Reader interface {
	NativeBalance(ctx context.Context, network chains.NetworkInfo, address string) (*big.Int, error)
}

// Balances maps each presale asset to its raised amount in whole native
// units. A nil amount means the lookup failed.
type Balances map[chains.Asset]*decimal.Decimal

// Display renders the amount for asset, "0" when it is missing.
func (b Balances) Display(asset chains.Asset) string {
	v := b[asset]
	if v == nil {
		return "0"
	}
	return FormatDisplay(*v)
}

// FormatDisplay rounds a balance to six places and trims trailing zeros.
func FormatDisplay(d decimal.Decimal) string {
	return pricing.TrimDecimal(d.StringFixed(displayPlaces))
}

// Failed lists the assets whose lookup failed.
func (b Balances) Failed() []chains.Asset {
	var out []chains.Asset
	for _, asset := range chains.Assets {
		if v, ok := b[asset]; ok && v == nil {
			out = append(out, asset)
		}
	}
	return out
}

// Sink receives every completed poll.
type Sink func(ctx context.Context, b Balances)

// Oracle reads the recipient balances of every presale asset.
type Oracle struct {
	registry *chains.Registry
	evm      Reader
	solana   Reader
	retry    retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOracle creates an oracle. Either reader may be nil, in which case its
// assets always read as failed.
func NewOracle(registry *chains.Registry, evm, solana Reader, policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		registry: registry,
		evm:      evm,
		solana:   solana,
		retry:    policy,
		metrics:  m,
		logger:   logger,
	}
}

// PollAll looks up every asset in addrs concurrently. A failed lookup is
// logged and leaves a nil entry; it never aborts the others.
func (o *Oracle) PollAll(ctx context.Context, addrs map[chains.Asset]string, testnet bool) Balances {
	var (
		mu  sync.Mutex
		out = make(Balances, len(addrs))
	)

	g, gctx := errgroup.WithContext(ctx)
	for asset, address := range addrs {
		g.Go(func() error {
			amount, err := o.poll(gctx, asset, address, testnet)
			if err != nil {
				o.metrics.RecordBalancePoll(string(asset), "error")
				o.logger.WarnContext(ctx, "balance lookup failed",
					"asset", asset,
					"address", address,
					"testnet", testnet,
					"error", err,
				)
			} else {
				o.metrics.RecordBalancePoll(string(asset), "success")
			}

			mu.Lock()
			defer mu.Unlock()
			out[asset] = amount
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (o *Oracle) poll(ctx context.Context, asset chains.Asset, address string, testnet bool) (*decimal.Decimal, error) {
	network, ok := o.registry.BalanceNetwork(asset, testnet)
	if !ok {
		return nil, fmt.Errorf("no network for asset %s", asset)
	}
	cfg, ok := o.registry.Config(asset)
	if !ok {
		return nil, fmt.Errorf("no presale config for asset %s", asset)
	}
	reader := o.evm
	if network.Identity.IsSolana() {
		reader = o.solana
	}
	if reader == nil {
		return nil, fmt.Errorf("no balance reader for %s", network.Key)
	}

	raw, err := retry.Do(ctx, o.retry, func(ctx context.Context) (*big.Int, error) {
		return reader.NativeBalance(ctx, network, address)
	})
	if err != nil {
		return nil, err
	}

	amount := cfg.FromSmallestUnit(decimal.NewFromBigInt(raw, 0))
	o.metrics.RecordRaisedBalance(string(asset), string(network.Key), amount.InexactFloat64())
	return &amount, nil
}

// Run polls once immediately and then every interval until ctx is done,
// handing each result to sink. It returns ctx.Err().
func (o *Oracle) Run(ctx context.Context, interval time.Duration, addrs map[chains.Asset]string, testnet bool, sink Sink) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b := o.PollAll(ctx, addrs, testnet)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sink != nil {
			sink(ctx, b)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecipientAddresses returns the presale recipient of each asset's balance
// network, which is what the raised amount is read from.
func RecipientAddresses(registry *chains.Registry, testnet bool) map[chains.Asset]string {
	out := make(map[chains.Asset]string, len(chains.Assets))
	for _, asset := range chains.Assets {
		if n, ok := registry.BalanceNetwork(asset, testnet); ok && n.Recipient != "" {
			out[asset] = n.Recipient
		}
	}
	return out
}

// SolanaBalancer is the balance surface of a Solana RPC client.
type SolanaBalancer interface {
	Balance(ctx context.Context, account solanago.PublicKey) (uint64, error)
}

// SolanaReader adapts per-cluster Solana clients to Reader.
type SolanaReader struct {
	For func(network chains.NetworkInfo) (SolanaBalancer, error)
}

func (r SolanaReader) NativeBalance(ctx context.Context, network chains.NetworkInfo, address string) (*big.Int, error) {
	pk, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address %q: %w", address, err)
	}
	client, err := r.For(network)
	if err != nil {
		return nil, err
	}
	lamports, err := client.Balance(ctx, pk)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(lamports), nil
}
