package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/notify"
	"github.com/brojonat/presale/service/provider"
	"github.com/gagliardetto/solana-go"
)

const (
	DefaultSwitchTimeout   = 30 * time.Second
	DefaultDisconnectGrace = time.Second
)

// Config tunes the manager. Zero values take the defaults.
type Config struct {
	Testnet         bool
	SwitchTimeout   time.Duration
	DisconnectGrace time.Duration
	Now             func() time.Time
}

// Manager owns the wallet session. It is the only writer of session state;
// everything else reads through View.
type Manager struct {
	providers provider.Set
	registry  *chains.Registry
	notifier  notify.Notifier
	logger    *slog.Logger

	switchTimeout   time.Duration
	disconnectGrace time.Duration
	now             func() time.Time

	mu                 sync.Mutex
	session            Session
	state              State
	disconnectingUntil time.Time
	unsubscribe        []func()
}

// NewManager creates a manager and subscribes to the account and chain
// events of every present provider. Call Close to unsubscribe.
func NewManager(providers provider.Set, registry *chains.Registry, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = DefaultSwitchTimeout
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = DefaultDisconnectGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		providers:       providers,
		registry:        registry,
		notifier:        notifier,
		logger:          logger,
		switchTimeout:   cfg.SwitchTimeout,
		disconnectGrace: cfg.DisconnectGrace,
		now:             cfg.Now,
		session:         Session{Testnet: cfg.Testnet},
	}

	if providers.EVM != nil {
		m.unsubscribe = append(m.unsubscribe,
			providers.EVM.OnAccountsChanged(m.handleAccountsChanged),
			providers.EVM.OnChainChanged(m.handleChainChanged),
		)
	}
	if providers.Solana != nil {
		m.unsubscribe = append(m.unsubscribe,
			providers.Solana.OnAccountChanged(m.handleSolanaAccountChanged),
			providers.Solana.OnDisconnect(m.handleSolanaDisconnect),
		)
	}

	return m
}

// Close removes every provider subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Providers returns the provider set the manager was built with.
func (m *Manager) Providers() provider.Set {
	return m.providers
}

// Network resolves the session's chain to its registry entry.
func (m *Manager) Network() (chains.NetworkInfo, bool) {
	s := m.Session()
	return m.registry.ByIdentity(s.Chain, s.Testnet)
}

// SetTestnet selects mainnet or testnet for later Solana connections and lookups.
func (m *Manager) SetTestnet(testnet bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Testnet = testnet
}

// Disconnecting reports whether a local disconnect is still within its grace period.
func (m *Manager) Disconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectingLocked()
}

func (m *Manager) disconnectingLocked() bool {
	return m.now().Before(m.disconnectingUntil)
}

// Connect attaches the session to the EVM wallet when one is present and to
// the Solana wallet otherwise.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	m.mu.Lock()
	m.state = Connecting
	m.disconnectingUntil = time.Time{}
	m.mu.Unlock()

	var err error
	switch {
	case m.providers.EVM != nil:
		err = m.connectEVM(ctx)
	case m.providers.Solana != nil:
		err = m.connectSolana(ctx, m.Session().Testnet)
	default:
		err = provider.ErrWalletNotFound
	}

	if err != nil {
		m.mu.Lock()
		if m.session.Empty() {
			m.state = Disconnected
		} else {
			m.state = Connected
		}
		m.mu.Unlock()
		m.notifyError(ctx, "Connection Failed", err)
		return m.Session(), err
	}

	s := m.Session()
	m.logger.InfoContext(ctx, "wallet connected",
		"address", s.Address,
		"chain", s.Chain.String(),
		"testnet", s.Testnet,
	)
	m.checkSupported(ctx, s)
	return s, nil
}

func (m *Manager) connectEVM(ctx context.Context) error {
	evm := m.providers.EVM
	accounts, err := evm.RequestAccounts(ctx)
	if err != nil {
		return fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("request accounts: %w", provider.ErrNotConnected)
	}
	chainID, err := evm.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Address = accounts[0]
	m.session.Chain = chains.EVM(chainID)
	m.state = Connected
	return nil
}

func (m *Manager) connectSolana(ctx context.Context, testnet bool) error {
	sol := m.providers.Solana
	if sol == nil {
		return fmt.Errorf("%w: no Solana wallet", provider.ErrWalletNotFound)
	}
	pk, err := sol.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect solana wallet: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{Address: pk.String(), Chain: chains.Solana, Testnet: testnet}
	m.state = Connected
	return nil
}

// SwitchNetwork moves the session to target. EVM targets go through the
// wallet's switch, adding the chain first when the wallet does not know it;
// Solana targets go through the Solana connect path.
func (m *Manager) SwitchNetwork(ctx context.Context, target chains.Network) error {
	info, ok := m.registry.Lookup(target)
	if !ok {
		err := fmt.Errorf("%w: %s", provider.ErrUnsupportedNetwork, target)
		m.notifyError(ctx, "Network Switch Failed", err)
		return err
	}

	var err error
	if info.Identity.IsSolana() {
		err = m.connectSolana(ctx, info.Testnet)
	} else {
		err = m.switchEVM(ctx, info)
	}
	if err != nil {
		m.notifyError(ctx, "Network Switch Failed", err)
		return err
	}

	m.logger.InfoContext(ctx, "network switched", "network", string(target))
	return nil
}

func (m *Manager) switchEVM(ctx context.Context, info chains.NetworkInfo) error {
	evm := m.providers.EVM
	if evm == nil {
		return fmt.Errorf("%w: no EVM wallet", provider.ErrWalletNotFound)
	}
	chainID := info.Identity.ChainID()

	switchCtx, cancel := context.WithTimeout(ctx, m.switchTimeout)
	defer cancel()

	err := evm.SwitchChain(switchCtx, chainID)
	if provider.Code(err) == provider.CodeUnrecognizedChain {
		m.logger.InfoContext(ctx, "wallet does not know chain, adding it",
			"network", string(info.Key),
			"chain_id", info.ChainIDHex(),
		)
		if addErr := evm.AddChain(switchCtx, info.AddChainParams()); addErr != nil {
			return fmt.Errorf("add chain %s: %w", info.Key, addErr)
		}
		err = evm.SwitchChain(switchCtx, chainID)
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || (err != nil && switchCtx.Err() != nil && ctx.Err() == nil)
	if err != nil && !timedOut {
		return fmt.Errorf("switch to %s: %w", info.Key, err)
	}

	// the wallet is authoritative; never trust an optimistic local update
	accounts, err := evm.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("re-read accounts: %w", err)
	}
	current, err := evm.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("re-read chain id: %w", err)
	}

	m.mu.Lock()
	if len(accounts) > 0 {
		m.session.Address = accounts[0]
		m.state = Connected
	}
	m.session.Chain = chains.EVM(current)
	m.session.Testnet = info.Testnet
	m.mu.Unlock()

	if current != chainID {
		if timedOut {
			return fmt.Errorf("%w: wallet still on chain %d", provider.ErrNetworkSwitchTimeout, current)
		}
		return fmt.Errorf("switch to %s: wallet reports chain %d", info.Key, current)
	}
	if timedOut {
		m.logger.WarnContext(ctx, "network switch confirmation timed out but wallet is on target",
			"network", string(info.Key),
		)
	}
	return nil
}

// Disconnect clears the session. The Solana wallet is asked to disconnect
// when it is the active one; failures there are logged and ignored.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	wasSolana := m.session.Chain.IsSolana()
	m.clearLocked()
	m.mu.Unlock()

	if wasSolana && m.providers.Solana != nil {
		if err := m.providers.Solana.Disconnect(ctx); err != nil {
			m.logger.WarnContext(ctx, "solana wallet disconnect failed", "error", err)
		}
	}
	m.logger.InfoContext(ctx, "wallet disconnected")
}

func (m *Manager) clearLocked() {
	m.session = Session{Testnet: m.session.Testnet}
	m.state = Disconnected
	m.disconnectingUntil = m.now().Add(m.disconnectGrace)
}

// AutoReconnect restores a session from a wallet that is already
// connected, preferring EVM over Solana. It does nothing while a disconnect
// is in flight or a session already exists.
func (m *Manager) AutoReconnect(ctx context.Context) (bool, error) {
	if !m.canReconnect() {
		return false, nil
	}

	if evm := m.providers.EVM; evm != nil && evm.IsConnected() {
		accounts, err := evm.Accounts(ctx)
		if err != nil {
			return false, fmt.Errorf("read accounts: %w", err)
		}
		if len(accounts) > 0 {
			chainID, err := evm.ChainID(ctx)
			if err != nil {
				return false, fmt.Errorf("read chain id: %w", err)
			}
			return m.restore(ctx, accounts[0], chains.EVM(chainID)), nil
		}
	}

	if sol := m.providers.Solana; sol != nil && sol.IsConnected() {
		if pk, ok := sol.PublicKey(); ok {
			return m.restore(ctx, pk.String(), chains.Solana), nil
		}
	}

	return false, nil
}

func (m *Manager) canReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnectingLocked() && m.session.Empty()
}

func (m *Manager) restore(ctx context.Context, address string, chain chains.Identity) bool {
	m.mu.Lock()
	// a disconnect or connect may have landed while the providers were probed
	if m.disconnectingLocked() || !m.session.Empty() {
		m.mu.Unlock()
		return false
	}
	m.session.Address = address
	m.session.Chain = chain
	m.state = Connected
	s := m.session
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "wallet session restored", "address", address, "chain", chain.String())
	m.checkSupported(ctx, s)
	return true
}

func (m *Manager) handleAccountsChanged(accounts []string) {
	ctx := context.Background()
	if len(accounts) == 0 {
		m.mu.Lock()
		evmSession := m.session.Chain.IsEVM()
		m.mu.Unlock()
		if evmSession {
			m.logger.InfoContext(ctx, "wallet removed all accounts")
			m.Disconnect(ctx)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Chain.IsEVM() {
		m.session.Address = accounts[0]
	}
}

func (m *Manager) handleChainChanged(chainID uint64) {
	m.mu.Lock()
	if !m.session.Chain.IsEVM() {
		m.mu.Unlock()
		return
	}
	m.session.Chain = chains.EVM(chainID)
	s := m.session
	m.mu.Unlock()

	m.checkSupported(context.Background(), s)
}

func (m *Manager) handleSolanaAccountChanged(pk *solana.PublicKey) {
	m.mu.Lock()
	solSession := m.session.Chain.IsSolana()
	if solSession && pk != nil {
		m.session.Address = pk.String()
	}
	m.mu.Unlock()

	if solSession && pk == nil {
		m.Disconnect(context.Background())
	}
}

func (m *Manager) handleSolanaDisconnect() {
	m.mu.Lock()
	solSession := m.session.Chain.IsSolana()
	m.mu.Unlock()
	if solSession {
		m.Disconnect(context.Background())
	}
}

func (m *Manager) checkSupported(ctx context.Context, s Session) {
	if s.Chain.IsZero() {
		return
	}
	if _, ok := m.registry.ByIdentity(s.Chain, s.Testnet); ok {
		return
	}
	m.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelWarning,
		Title:   "Unsupported Network",
		Message: fmt.Sprintf("%v: chain %s", provider.ErrUnsupportedNetwork, s.Chain),
	})
}

func (m *Manager) notifyError(ctx context.Context, title string, err error) {
	if errors.Is(err, provider.ErrUserRejected) {
		m.logger.InfoContext(ctx, "wallet request cancelled by user", "error", err)
		m.notifier.Notify(ctx, notify.Notification{Level: notify.LevelInfo, Title: "Request Cancelled", Message: err.Error()})
		return
	}
	m.logger.ErrorContext(ctx, title, "error", err)
	m.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Title: title, Message: err.Error()})
}
