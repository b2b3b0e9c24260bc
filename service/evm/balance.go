package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads native balances over a short-lived RPC connection.
type BalanceReader struct {
	dial    Dialer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewBalanceReader(dial Dialer, m *metrics.Metrics, logger *slog.Logger) *BalanceReader {
	if dial == nil {
		dial = DialEthClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BalanceReader{dial: dial, metrics: m, logger: logger}
}

// NativeBalance returns the balance of address on the network in wei.
func (r *BalanceReader) NativeBalance(ctx context.Context, network chains.NetworkInfo, address string) (*big.Int, error) {
	if !network.Identity.IsEVM() {
		return nil, fmt.Errorf("%s is not an EVM network", network.Key)
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid EVM address %q", address)
	}

	client, _, err := DialFirst(ctx, r.dial, network.RPCURLs, network.Identity.ChainID(), r.logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	start := time.Now()
	bal, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	observe(r.metrics, string(network.Key), "BalanceAt", start, err)
	if err != nil {
		return nil, fmt.Errorf("balance of %s on %s: %w", address, network.Key, err)
	}
	return bal, nil
}
