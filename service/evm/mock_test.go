package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeEthClient struct {
	mu sync.Mutex

	chainID  uint64
	chainErr error
	gasPrice *big.Int
	gas      uint64
	balance  *big.Int
	nonce    uint64
	sendErr  error

	sent   []*types.Transaction
	msgs   []ethereum.CallMsg
	closed bool
}

func (f *fakeEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.gas, nil
}

func (f *fakeEthClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balance == nil {
		return nil, errors.New("no balance")
	}
	return f.balance, nil
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEthClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// fakeDialer hands out clients keyed by URL and records every dial.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeEthClient
	dialed  []string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (EthClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, url)
	c, ok := d.clients[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return c, nil
}
