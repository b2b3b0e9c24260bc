package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/notify"
	"github.com/brojonat/presale/service/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const evmAccount = "0x1111111111111111111111111111111111111111"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	manager  *Manager
	evm      *provider.MockEVM
	solana   *provider.MockSolana
	notes    *notify.Recorder
	clock    *fakeClock
	registry *chains.Registry
}

func newHarness(t *testing.T, set provider.Set, cfg Config) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)}
	cfg.Now = clock.Now
	notes := notify.NewRecorder()
	registry := chains.DefaultRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		manager:  NewManager(set, registry, notes, logger, cfg),
		notes:    notes,
		clock:    clock,
		registry: registry,
	}
	if m, ok := set.EVM.(*provider.MockEVM); ok {
		h.evm = m
	}
	if m, ok := set.Solana.(*provider.MockSolana); ok {
		h.solana = m
	}
	t.Cleanup(h.manager.Close)
	return h
}

func TestConnect_EVM(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm, Solana: provider.NewMockSolana()}, Config{})

	s, err := h.manager.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, evmAccount, s.Address)
	assert.Equal(t, chains.EVM(1), s.Chain)
	assert.Equal(t, Connected, h.manager.State())
	assert.Equal(t, []string{"RequestAccounts", "ChainID"}, evm.Calls())
	assert.Empty(t, h.solana.Calls(), "solana is only used when no EVM wallet exists")

	n, ok := h.manager.Network()
	require.True(t, ok)
	assert.Equal(t, chains.ETH, n.Key)
}

func TestConnect_SolanaOnly(t *testing.T) {
	sol := provider.NewMockSolana()
	h := newHarness(t, provider.Set{Solana: sol}, Config{Testnet: true})

	s, err := h.manager.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sol.Key().String(), s.Address)
	assert.Equal(t, chains.Solana, s.Chain)
	assert.True(t, s.Testnet)

	n, ok := h.manager.Network()
	require.True(t, ok)
	assert.Equal(t, chains.SOLTest, n.Key)
}

func TestConnect_NoWallet(t *testing.T) {
	h := newHarness(t, provider.Set{}, Config{})

	_, err := h.manager.Connect(context.Background())
	assert.ErrorIs(t, err, provider.ErrWalletNotFound)
	assert.Equal(t, Disconnected, h.manager.State())

	last, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestConnect_UserRejected(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	evm.RequestErr = provider.UserRejected("User rejected the request.")
	h := newHarness(t, provider.Set{EVM: evm}, Config{})

	_, err := h.manager.Connect(context.Background())
	assert.ErrorIs(t, err, provider.ErrUserRejected)
	assert.Equal(t, Disconnected, h.manager.State())
	assert.True(t, h.manager.Session().Empty())

	last, _ := h.notes.Last()
	assert.Equal(t, notify.LevelInfo, last.Level)
}

func TestConnect_UnsupportedChainStillConnects(t *testing.T) {
	evm := provider.NewMockEVM(137, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm}, Config{})

	s, err := h.manager.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chains.EVM(137), s.Chain)

	_, ok := h.manager.Network()
	assert.False(t, ok)

	last, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, "Unsupported Network", last.Title)
	assert.Equal(t, notify.LevelWarning, last.Level)
}

func TestSwitchNetwork_AddsUnknownChainThenRetriesOnce(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm}, Config{})
	ctx := context.Background()

	_, err := h.manager.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, h.manager.SwitchNetwork(ctx, chains.BSCTest))

	assert.Equal(t, []string{
		"RequestAccounts", "ChainID",
		"SwitchChain", "AddChain", "SwitchChain",
		"Accounts", "ChainID",
	}, evm.Calls())

	s := h.manager.Session()
	assert.Equal(t, chains.EVM(97), s.Chain)
	assert.Equal(t, evmAccount, s.Address)
	assert.True(t, s.Testnet)
}

func TestSwitchNetwork_SecondUnrecognizedIsNotRetriedAgain(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	evm.QueueSwitchError(provider.UnrecognizedChain(56))
	evm.QueueSwitchError(provider.UnrecognizedChain(56))
	h := newHarness(t, provider.Set{EVM: evm}, Config{})
	ctx := context.Background()
	_, _ = h.manager.Connect(ctx)

	err := h.manager.SwitchNetwork(ctx, chains.BSC)
	require.Error(t, err)
	assert.Equal(t, 2, evm.CallCount("SwitchChain"))
	assert.Equal(t, 1, evm.CallCount("AddChain"))
	assert.Equal(t, chains.EVM(1), h.manager.Session().Chain)
}

func TestSwitchNetwork_UserRejectedLeavesStateUnchanged(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	evm.SetChain(56)
	evm.SetChain(1)
	evm.QueueSwitchError(provider.UserRejected("User rejected the request."))
	h := newHarness(t, provider.Set{EVM: evm}, Config{})
	ctx := context.Background()
	before, err := h.manager.Connect(ctx)
	require.NoError(t, err)

	err = h.manager.SwitchNetwork(ctx, chains.BSC)
	assert.ErrorIs(t, err, provider.ErrUserRejected)
	assert.Equal(t, before, h.manager.Session())
	assert.Equal(t, 0, evm.CallCount("AddChain"))
	assert.Equal(t, 0, evm.CallCount("Accounts"))
}

func TestSwitchNetwork_TimeoutReconcilesFromWallet(t *testing.T) {
	t.Run("wallet reached target", func(t *testing.T) {
		evm := provider.NewMockEVM(1, evmAccount)
		evm.SetChain(8453)
		evm.SetChain(1)
		evm.SwitchHook = func(ctx context.Context, chainID uint64) error {
			evm.SetChain(chainID)
			<-ctx.Done()
			return ctx.Err()
		}
		h := newHarness(t, provider.Set{EVM: evm}, Config{SwitchTimeout: 20 * time.Millisecond})
		ctx := context.Background()
		_, _ = h.manager.Connect(ctx)

		require.NoError(t, h.manager.SwitchNetwork(ctx, chains.BASE))
		assert.Equal(t, chains.EVM(8453), h.manager.Session().Chain)
	})

	t.Run("wallet did not move", func(t *testing.T) {
		evm := provider.NewMockEVM(1, evmAccount)
		evm.SwitchHook = func(ctx context.Context, chainID uint64) error {
			<-ctx.Done()
			return ctx.Err()
		}
		h := newHarness(t, provider.Set{EVM: evm}, Config{SwitchTimeout: 20 * time.Millisecond})
		ctx := context.Background()
		_, _ = h.manager.Connect(ctx)

		err := h.manager.SwitchNetwork(ctx, chains.BASE)
		assert.ErrorIs(t, err, provider.ErrNetworkSwitchTimeout)
		assert.Equal(t, chains.EVM(1), h.manager.Session().Chain)
	})
}

func TestSwitchNetwork_SolanaTarget(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	sol := provider.NewMockSolana()
	h := newHarness(t, provider.Set{EVM: evm, Solana: sol}, Config{})
	ctx := context.Background()
	_, _ = h.manager.Connect(ctx)

	require.NoError(t, h.manager.SwitchNetwork(ctx, chains.SOLTest))

	s := h.manager.Session()
	assert.Equal(t, chains.Solana, s.Chain)
	assert.Equal(t, sol.Key().String(), s.Address)
	assert.True(t, s.Testnet)
	assert.Equal(t, 0, evm.CallCount("SwitchChain"))
}

func TestSwitchNetwork_UnknownTarget(t *testing.T) {
	h := newHarness(t, provider.Set{EVM: provider.NewMockEVM(1, evmAccount)}, Config{})

	err := h.manager.SwitchNetwork(context.Background(), "POLYGON")
	assert.ErrorIs(t, err, provider.ErrUnsupportedNetwork)
}

func TestEmptyAccountsChangedDisconnectsAndBlocksAutoReconnect(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm}, Config{DisconnectGrace: time.Second})
	ctx := context.Background()
	_, err := h.manager.Connect(ctx)
	require.NoError(t, err)

	evm.EmitAccountsChanged(nil)

	assert.True(t, h.manager.Session().Empty())
	assert.Equal(t, Disconnected, h.manager.State())
	assert.True(t, h.manager.Disconnecting())

	// the extension still claims to be connected with accounts
	evm.EmitAccountsChanged([]string{evmAccount})
	restored, err := h.manager.AutoReconnect(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.True(t, h.manager.Session().Empty())

	h.clock.Advance(2 * time.Second)
	restored, err = h.manager.AutoReconnect(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, evmAccount, h.manager.Session().Address)
}

func TestAccountsChangedUpdatesAddress(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm}, Config{})
	_, _ = h.manager.Connect(context.Background())

	other := "0x2222222222222222222222222222222222222222"
	evm.EmitAccountsChanged([]string{other})

	s := h.manager.Session()
	assert.Equal(t, other, s.Address)
	assert.Equal(t, chains.EVM(1), s.Chain)
}

func TestChainChangedUpdatesChainOnly(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	h := newHarness(t, provider.Set{EVM: evm}, Config{})
	_, _ = h.manager.Connect(context.Background())

	evm.EmitChainChanged(56)

	s := h.manager.Session()
	assert.Equal(t, chains.EVM(56), s.Chain)
	assert.Equal(t, evmAccount, s.Address)
}

func TestChainChangedIgnoredForSolanaSession(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	sol := provider.NewMockSolana()
	h := newHarness(t, provider.Set{EVM: evm, Solana: sol}, Config{})
	require.NoError(t, h.manager.SwitchNetwork(context.Background(), chains.SOL))

	evm.EmitChainChanged(56)
	assert.Equal(t, chains.Solana, h.manager.Session().Chain)
}

func TestSolanaEvents(t *testing.T) {
	t.Run("account removed disconnects", func(t *testing.T) {
		sol := provider.NewMockSolana()
		h := newHarness(t, provider.Set{Solana: sol}, Config{})
		_, err := h.manager.Connect(context.Background())
		require.NoError(t, err)

		sol.EmitAccountChanged(nil)

		assert.True(t, h.manager.Session().Empty())
		assert.Contains(t, sol.Calls(), "Disconnect")
	})

	t.Run("account switched updates address", func(t *testing.T) {
		sol := provider.NewMockSolana()
		h := newHarness(t, provider.Set{Solana: sol}, Config{})
		_, _ = h.manager.Connect(context.Background())

		other := provider.NewMockSolana().Key()
		sol.EmitAccountChanged(&other)
		assert.Equal(t, other.String(), h.manager.Session().Address)
	})

	t.Run("disconnect event clears session", func(t *testing.T) {
		sol := provider.NewMockSolana()
		h := newHarness(t, provider.Set{Solana: sol}, Config{})
		_, _ = h.manager.Connect(context.Background())

		sol.EmitDisconnect()
		assert.True(t, h.manager.Session().Empty())
	})
}

func TestDisconnect_SolanaFailureStillClears(t *testing.T) {
	sol := provider.NewMockSolana()
	sol.DisconnectErr = errors.New("wallet unreachable")
	h := newHarness(t, provider.Set{Solana: sol}, Config{Testnet: true})
	ctx := context.Background()
	_, _ = h.manager.Connect(ctx)

	h.manager.Disconnect(ctx)

	s := h.manager.Session()
	assert.True(t, s.Empty())
	assert.True(t, s.Chain.IsZero())
	assert.True(t, s.Testnet, "the network preference survives a disconnect")
}

func TestDisconnect_EVMHasNoProviderCall(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	sol := provider.NewMockSolana()
	h := newHarness(t, provider.Set{EVM: evm, Solana: sol}, Config{})
	ctx := context.Background()
	_, _ = h.manager.Connect(ctx)

	h.manager.Disconnect(ctx)
	assert.NotContains(t, sol.Calls(), "Disconnect")
	assert.True(t, h.manager.Session().Empty())
}

func TestAutoReconnect(t *testing.T) {
	t.Run("prefers EVM when both are connected", func(t *testing.T) {
		evm := provider.NewMockEVM(56, evmAccount)
		sol := provider.NewMockSolana()
		sol.SetConnected(true)
		h := newHarness(t, provider.Set{EVM: evm, Solana: sol}, Config{})

		restored, err := h.manager.AutoReconnect(context.Background())
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, chains.EVM(56), h.manager.Session().Chain)
	})

	t.Run("falls back to Solana", func(t *testing.T) {
		evm := provider.NewMockEVM(1, evmAccount)
		evm.SetConnected(false)
		sol := provider.NewMockSolana()
		sol.SetConnected(true)
		h := newHarness(t, provider.Set{EVM: evm, Solana: sol}, Config{})

		restored, err := h.manager.AutoReconnect(context.Background())
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, chains.Solana, h.manager.Session().Chain)
		assert.Equal(t, sol.Key().String(), h.manager.Session().Address)
	})

	t.Run("nothing connected", func(t *testing.T) {
		evm := provider.NewMockEVM(1, evmAccount)
		evm.SetConnected(false)
		h := newHarness(t, provider.Set{EVM: evm, Solana: provider.NewMockSolana()}, Config{})

		restored, err := h.manager.AutoReconnect(context.Background())
		require.NoError(t, err)
		assert.False(t, restored)
	})

	t.Run("idempotent once populated", func(t *testing.T) {
		evm := provider.NewMockEVM(1, evmAccount)
		h := newHarness(t, provider.Set{EVM: evm}, Config{})
		ctx := context.Background()

		restored, _ := h.manager.AutoReconnect(ctx)
		require.True(t, restored)
		calls := len(evm.Calls())

		restored, _ = h.manager.AutoReconnect(ctx)
		assert.False(t, restored)
		assert.Len(t, evm.Calls(), calls, "a populated session must not probe the wallet")
	})
}

func TestClose_Unsubscribes(t *testing.T) {
	evm := provider.NewMockEVM(1, evmAccount)
	sol := provider.NewMockSolana()
	m := NewManager(provider.Set{EVM: evm, Solana: sol}, chains.DefaultRegistry(), notify.NewRecorder(), nil, Config{})

	assert.Equal(t, 2, evm.Subscribers())
	assert.Equal(t, 2, sol.Subscribers())

	m.Close()
	assert.Equal(t, 0, evm.Subscribers())
	assert.Equal(t, 0, sol.Subscribers())
}
