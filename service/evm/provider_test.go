package evm

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/provider"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func testRegistry(t *testing.T) *chains.Registry {
	t.Helper()
	reg, err := chains.DefaultRegistry().WithOverrides(map[chains.Network]chains.Override{
		chains.ETH:  {RPCURLs: []string{"http://eth-down", "http://eth-1"}},
		chains.BSC:  {RPCURLs: []string{"http://bsc-1"}},
		chains.BASE: {RPCURLs: []string{"http://base-wrong", "http://base-1"}},
	})
	require.NoError(t, err)
	return reg
}

func newTestProvider(t *testing.T) (*Provider, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{clients: map[string]*fakeEthClient{
		"http://eth-1":      {chainID: 1, gasPrice: big.NewInt(20e9), gas: 21000, balance: big.NewInt(1e18), nonce: 7},
		"http://bsc-1":      {chainID: 56, gasPrice: big.NewInt(3e9), gas: 21000, balance: big.NewInt(5e17)},
		"http://base-wrong": {chainID: 10},
		"http://base-1":     {chainID: 8453, gasPrice: big.NewInt(1e8), gas: 21000},
		"http://custom":     {chainID: 999},
	}}
	key, err := LoadKey(testKeyHex)
	require.NoError(t, err)

	p, err := NewProvider(context.Background(), ProviderConfig{
		Key:      key,
		Registry: testRegistry(t),
		ChainID:  1,
		Dial:     dialer.Dial,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)
	return p, dialer
}

func TestLoadKey(t *testing.T) {
	key, err := LoadKey("0x" + testKeyHex)
	require.NoError(t, err)
	plain, err := LoadKey(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(plain.PublicKey), crypto.PubkeyToAddress(key.PublicKey))

	_, err = LoadKey("not-a-key")
	assert.Error(t, err)
}

func TestNewProviderFallsBackAcrossEndpoints(t *testing.T) {
	p, dialer := newTestProvider(t)

	assert.Equal(t, []string{"http://eth-down", "http://eth-1"}, dialer.dialed)
	id, err := p.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestRequestAccounts(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.False(t, p.IsConnected())

	accounts, err = p.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.Address()}, accounts)
	assert.True(t, p.IsConnected())
}

func TestSwitchChain(t *testing.T) {
	p, dialer := newTestProvider(t)
	ctx := context.Background()

	var changed []uint64
	p.OnChainChanged(func(id uint64) { changed = append(changed, id) })

	require.NoError(t, p.SwitchChain(ctx, 8453))
	assert.Equal(t, []uint64{8453}, changed)
	assert.Contains(t, dialer.dialed, "http://base-wrong")
	assert.True(t, dialer.clients["http://base-wrong"].closed)
	assert.True(t, dialer.clients["http://eth-1"].closed)

	// switching to the current chain is a no-op
	require.NoError(t, p.SwitchChain(ctx, 8453))
	assert.Len(t, changed, 1)
}

func TestSwitchChainUnknownReturnsUnrecognized(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	err := p.SwitchChain(ctx, 999)
	require.Error(t, err)
	assert.Equal(t, provider.CodeUnrecognizedChain, provider.Code(err))

	require.NoError(t, p.AddChain(ctx, chains.AddChainParams{
		ChainID:   "0x3e7",
		ChainName: "Custom",
		RPCURLs:   []string{"http://custom"},
	}))
	require.NoError(t, p.SwitchChain(ctx, 999))

	id, _ := p.ChainID(ctx)
	assert.Equal(t, uint64(999), id)
}

func TestAddChainRejectsBadParams(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	assert.Error(t, p.AddChain(ctx, chains.AddChainParams{ChainID: "SOL", RPCURLs: []string{"x"}}))
	assert.Error(t, p.AddChain(ctx, chains.AddChainParams{ChainID: "0x1"}))
	assert.Error(t, p.AddChain(ctx, chains.AddChainParams{ChainID: "zz"}))
}

func TestGasAndBalance(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	price, err := p.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(20e9), price)

	gas, err := p.EstimateGas(ctx, provider.TxRequest{From: p.Address(), To: "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7", Value: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	bal, err := p.Balance(ctx, p.Address())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), bal)
}

func TestCallsAfterCloseFail(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	to := "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7"
	p.Close()

	_, err := p.GasPrice(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.EstimateGas(ctx, provider.TxRequest{From: p.Address(), To: to, Value: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.Balance(ctx, p.Address())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.SendTransaction(ctx, provider.TxRequest{From: p.Address(), To: to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrClosed)

	// closing twice is a no-op
	p.Close()
}

func TestSendTransactionSignsForActiveChain(t *testing.T) {
	p, dialer := newTestProvider(t)
	ctx := context.Background()
	to := "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7"

	hash, err := p.SendTransaction(ctx, provider.TxRequest{
		From:     p.Address(),
		To:       to,
		Value:    big.NewInt(5e17),
		Gas:      21000,
		GasPrice: big.NewInt(20e9),
	})
	require.NoError(t, err)

	sent := dialer.clients["http://eth-1"].sent
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, hash, tx.Hash().Hex())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(1), tx.ChainId())
	assert.Equal(t, big.NewInt(5e17), tx.Value())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, p.Address(), from.Hex())
}

func TestSendTransactionErrors(t *testing.T) {
	p, dialer := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SendTransaction(ctx, provider.TxRequest{From: "0x0000000000000000000000000000000000000001"})
	assert.Error(t, err)

	dialer.clients["http://eth-1"].sendErr = errors.New("insufficient funds for gas * price + value")
	_, err = p.SendTransaction(ctx, provider.TxRequest{
		From:     p.Address(),
		To:       "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7",
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestRevokeEmitsEmptyAccounts(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	_, err := p.RequestAccounts(ctx)
	require.NoError(t, err)

	var got []string
	called := false
	unsubscribe := p.OnAccountsChanged(func(accounts []string) {
		called = true
		got = accounts
	})

	p.Revoke()
	assert.True(t, called)
	assert.Empty(t, got)
	assert.False(t, p.IsConnected())

	called = false
	unsubscribe()
	p.Revoke()
	assert.False(t, called)
}

func TestBalanceReader(t *testing.T) {
	dialer := &fakeDialer{clients: map[string]*fakeEthClient{
		"http://bsc-1": {chainID: 56, balance: big.NewInt(3e18)},
	}}
	reader := NewBalanceReader(dialer.Dial, nil, nil)
	reg := testRegistry(t)
	bsc, ok := reg.Lookup(chains.BSC)
	require.True(t, ok)

	bal, err := reader.NativeBalance(context.Background(), bsc, bsc.Recipient)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3e18), bal)
	assert.True(t, dialer.clients["http://bsc-1"].closed)

	_, err = reader.NativeBalance(context.Background(), bsc, "nope")
	assert.Error(t, err)

	sol, _ := reg.Lookup(chains.SOL)
	_, err = reader.NativeBalance(context.Background(), sol, bsc.Recipient)
	assert.Error(t, err)
}

func TestDialFirstNoEndpoints(t *testing.T) {
	_, _, err := DialFirst(context.Background(), (&fakeDialer{}).Dial, nil, 1, slog.Default())
	assert.ErrorContains(t, err, "no RPC endpoints configured")
}
