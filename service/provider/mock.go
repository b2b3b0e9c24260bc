package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/brojonat/presale/service/chains"
	"github.com/gagliardetto/solana-go"
)

// MockEVM is an in-memory EVMProvider for tests. Configure the exported
// fields before use; recorded calls are safe to read concurrently.
type MockEVM struct {
	RequestErr  error
	AddChainErr error
	EstimateErr error
	GasPriceErr error
	BalanceErr  error
	SendErr     error

	GasPriceWei *big.Int
	GasLimit    uint64
	BalanceWei  *big.Int
	SendHash    string

	// SwitchHook, when set, runs before the switch is applied and may block or fail.
	SwitchHook func(ctx context.Context, chainID uint64) error

	mu          sync.Mutex
	accounts    []string
	chainID     uint64
	connected   bool
	known       map[uint64]bool
	switchErrs  []error
	calls       []string
	sent        []TxRequest
	onAccounts  func([]string)
	onChain     func(uint64)
	subscribers int
}

// NewMockEVM returns a connected mock exposing account on chainID. Only
// chainID is known until AddChain is called for others.
func NewMockEVM(chainID uint64, account string) *MockEVM {
	m := &MockEVM{
		chainID:     chainID,
		connected:   true,
		known:       map[uint64]bool{chainID: true},
		GasPriceWei: big.NewInt(20_000_000_000),
		GasLimit:    21_000,
		BalanceWei:  new(big.Int),
		SendHash:    "0xmockhash",
	}
	if account != "" {
		m.accounts = []string{account}
	}
	return m
}

func (m *MockEVM) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the provider methods invoked so far, in order.
func (m *MockEVM) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (m *MockEVM) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// Sent returns the submitted transactions.
func (m *MockEVM) Sent() []TxRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TxRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// SetConnected toggles what IsConnected and Accounts report.
func (m *MockEVM) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// QueueSwitchError makes the next SwitchChain call fail with err.
func (m *MockEVM) QueueSwitchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchErrs = append(m.switchErrs, err)
}

// SetChain changes the chain without emitting an event.
func (m *MockEVM) SetChain(chainID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainID = chainID
	m.known[chainID] = true
}

// Subscribers returns the number of live event handlers.
func (m *MockEVM) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribers
}

func (m *MockEVM) RequestAccounts(ctx context.Context) ([]string, error) {
	m.record("RequestAccounts")
	if m.RequestErr != nil {
		return nil, m.RequestErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return append([]string(nil), m.accounts...), nil
}

func (m *MockEVM) Accounts(ctx context.Context) ([]string, error) {
	m.record("Accounts")
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, nil
	}
	return append([]string(nil), m.accounts...), nil
}

func (m *MockEVM) ChainID(ctx context.Context) (uint64, error) {
	m.record("ChainID")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID, nil
}

func (m *MockEVM) SwitchChain(ctx context.Context, chainID uint64) error {
	m.record("SwitchChain")
	if m.SwitchHook != nil {
		if err := m.SwitchHook(ctx, chainID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if len(m.switchErrs) > 0 {
		err := m.switchErrs[0]
		m.switchErrs = m.switchErrs[1:]
		m.mu.Unlock()
		return err
	}
	if !m.known[chainID] {
		m.mu.Unlock()
		return UnrecognizedChain(chainID)
	}
	m.chainID = chainID
	handler := m.onChain
	m.mu.Unlock()

	if handler != nil {
		handler(chainID)
	}
	return nil
}

func (m *MockEVM) AddChain(ctx context.Context, params chains.AddChainParams) error {
	m.record("AddChain")
	if m.AddChainErr != nil {
		return m.AddChainErr
	}
	id, err := chains.ParseIdentity(params.ChainID)
	if err != nil || !id.IsEVM() {
		return fmt.Errorf("bad chain id %q", params.ChainID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[id.ChainID()] = true
	return nil
}

func (m *MockEVM) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockEVM) EstimateGas(ctx context.Context, tx TxRequest) (uint64, error) {
	m.record("EstimateGas")
	if m.EstimateErr != nil {
		return 0, m.EstimateErr
	}
	return m.GasLimit, nil
}

func (m *MockEVM) GasPrice(ctx context.Context) (*big.Int, error) {
	m.record("GasPrice")
	if m.GasPriceErr != nil {
		return nil, m.GasPriceErr
	}
	return new(big.Int).Set(m.GasPriceWei), nil
}

func (m *MockEVM) Balance(ctx context.Context, address string) (*big.Int, error) {
	m.record("Balance")
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return new(big.Int).Set(m.BalanceWei), nil
}

func (m *MockEVM) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	m.record("SendTransaction")
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, tx)
	return m.SendHash, nil
}

func (m *MockEVM) OnAccountsChanged(fn func([]string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAccounts = fn
	m.subscribers++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.onAccounts != nil {
			m.onAccounts = nil
			m.subscribers--
		}
	}
}

func (m *MockEVM) OnChainChanged(fn func(uint64)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChain = fn
	m.subscribers++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.onChain != nil {
			m.onChain = nil
			m.subscribers--
		}
	}
}

// EmitAccountsChanged updates the accounts and notifies the handler.
func (m *MockEVM) EmitAccountsChanged(accounts []string) {
	m.mu.Lock()
	m.accounts = append([]string(nil), accounts...)
	handler := m.onAccounts
	m.mu.Unlock()
	if handler != nil {
		handler(accounts)
	}
}

// EmitChainChanged updates the chain and notifies the handler.
func (m *MockEVM) EmitChainChanged(chainID uint64) {
	m.SetChain(chainID)
	m.mu.Lock()
	handler := m.onChain
	m.mu.Unlock()
	if handler != nil {
		handler(chainID)
	}
}

// MockSolana is an in-memory SolanaProvider backed by a random keypair.
type MockSolana struct {
	ConnectErr    error
	DisconnectErr error
	SignErr       error

	key solana.PrivateKey

	mu           sync.Mutex
	connected    bool
	calls        []string
	onAccount    func(*solana.PublicKey)
	onDisconnect func()
	subscribers  int
}

// NewMockSolana returns a disconnected mock with a fresh key.
func NewMockSolana() *MockSolana {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return &MockSolana{key: key}
}

func (m *MockSolana) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the provider methods invoked so far, in order.
func (m *MockSolana) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Key returns the mock's public key regardless of connection state.
func (m *MockSolana) Key() solana.PublicKey {
	return m.key.PublicKey()
}

// SetConnected toggles the connection state without events.
func (m *MockSolana) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// Subscribers returns the number of live event handlers.
func (m *MockSolana) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribers
}

func (m *MockSolana) Connect(ctx context.Context) (solana.PublicKey, error) {
	m.record("Connect")
	if m.ConnectErr != nil {
		return solana.PublicKey{}, m.ConnectErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return m.key.PublicKey(), nil
}

func (m *MockSolana) Disconnect(ctx context.Context) error {
	m.record("Disconnect")
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return m.DisconnectErr
}

func (m *MockSolana) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockSolana) PublicKey() (solana.PublicKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return solana.PublicKey{}, false
	}
	return m.key.PublicKey(), true
}

func (m *MockSolana) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	m.record("SignTransaction")
	if m.SignErr != nil {
		return m.SignErr
	}
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(m.key.PublicKey()) {
			return &m.key
		}
		return nil
	})
	return err
}

func (m *MockSolana) OnAccountChanged(fn func(*solana.PublicKey)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAccount = fn
	m.subscribers++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.onAccount != nil {
			m.onAccount = nil
			m.subscribers--
		}
	}
}

func (m *MockSolana) OnDisconnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = fn
	m.subscribers++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.onDisconnect != nil {
			m.onDisconnect = nil
			m.subscribers--
		}
	}
}

// EmitAccountChanged notifies the handler; nil means the account was removed.
func (m *MockSolana) EmitAccountChanged(pk *solana.PublicKey) {
	m.mu.Lock()
	handler := m.onAccount
	m.mu.Unlock()
	if handler != nil {
		handler(pk)
	}
}

// EmitDisconnect marks the wallet disconnected and notifies the handler.
func (m *MockSolana) EmitDisconnect() {
	m.mu.Lock()
	m.connected = false
	handler := m.onDisconnect
	m.mu.Unlock()
	if handler != nil {
		handler()
	}
}
