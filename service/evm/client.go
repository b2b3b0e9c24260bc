package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/brojonat/presale/service/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient is the subset of the go-ethereum client the presale needs.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Dialer opens an EthClient for an RPC URL.
type Dialer func(ctx context.Context, rpcURL string) (EthClient, error)

// DialEthClient is the Dialer backed by ethclient.
func DialEthClient(ctx context.Context, rpcURL string) (EthClient, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DialFirst tries each URL in order and returns the first client whose
// node reports a chain id. A non-zero want rejects nodes on another chain.
func DialFirst(ctx context.Context, dial Dialer, urls []string, want uint64, logger *slog.Logger) (EthClient, string, error) {
	if len(urls) == 0 {
		return nil, "", fmt.Errorf("no RPC endpoints configured")
	}
	var lastErr error
	for _, url := range urls {
		c, err := dial(ctx, url)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", url, err)
			logger.WarnContext(ctx, "rpc dial failed", "url", url, "error", err)
			continue
		}
		id, err := c.ChainID(ctx)
		if err != nil {
			c.Close()
			lastErr = fmt.Errorf("chain id from %s: %w", url, err)
			logger.WarnContext(ctx, "rpc endpoint unhealthy", "url", url, "error", err)
			continue
		}
		if want != 0 && id.Uint64() != want {
			c.Close()
			lastErr = fmt.Errorf("endpoint %s serves chain %d, want %d", url, id.Uint64(), want)
			continue
		}
		return c, url, nil
	}
	return nil, "", lastErr
}

// observe times one RPC call and records it against chain.
func observe(m *metrics.Metrics, chain, method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordRPCCall(chain, method, status, time.Since(start).Seconds())
}
