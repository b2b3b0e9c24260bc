package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/provider"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrClosed is returned by RPC-backed calls after Close.
var ErrClosed = errors.New("evm provider closed")

// Provider is an EVMProvider backed by a local private key and JSON-RPC
// endpoints. It plays the role of a browser wallet for the CLI: the
// registry plus any chains added at runtime are the chains it knows.
type Provider struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	registry *chains.Registry
	dial     Dialer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	client     EthClient
	chainID    uint64
	chainName  string
	connected  bool
	added      map[uint64]chains.AddChainParams
	onAccounts func([]string)
	onChain    func(uint64)
}

// ProviderConfig configures NewProvider.
type ProviderConfig struct {
	Key      *ecdsa.PrivateKey
	Registry *chains.Registry
	// ChainID is the chain to attach to at start.
	ChainID uint64
	Dial    Dialer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewProvider dials the starting chain and returns a provider that is not
// yet connected; RequestAccounts exposes the key's address.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("chain registry is required")
	}
	if cfg.Dial == nil {
		cfg.Dial = DialEthClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Provider{
		key:      cfg.Key,
		address:  crypto.PubkeyToAddress(cfg.Key.PublicKey),
		registry: cfg.Registry,
		dial:     cfg.Dial,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		added:    make(map[uint64]chains.AddChainParams),
	}
	if err := p.attach(ctx, cfg.ChainID); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadKey reads a hex-encoded secp256k1 private key from a file or, when
// the argument is not a readable file, from the argument itself.
func LoadKey(pathOrHex string) (*ecdsa.PrivateKey, error) {
	raw := pathOrHex
	if b, err := os.ReadFile(pathOrHex); err == nil {
		raw = string(b)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse EVM private key: %w", err)
	}
	return key, nil
}

// Address returns the checksummed address of the key.
func (p *Provider) Address() string {
	return p.address.Hex()
}

func (p *Provider) rpcURLs(chainID uint64) ([]string, string, bool) {
	if n, ok := p.registry.ByIdentity(chains.EVM(chainID), false); ok {
		return n.RPCURLs, string(n.Key), true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if params, ok := p.added[chainID]; ok {
		return params.RPCURLs, params.ChainName, true
	}
	return nil, "", false
}

// attach dials chainID and swaps it in as the active chain.
func (p *Provider) attach(ctx context.Context, chainID uint64) error {
	urls, name, ok := p.rpcURLs(chainID)
	if !ok {
		return provider.UnrecognizedChain(chainID)
	}
	client, url, err := DialFirst(ctx, p.dial, urls, chainID, p.logger)
	if err != nil {
		return fmt.Errorf("attach to chain %d: %w", chainID, err)
	}

	p.mu.Lock()
	old := p.client
	p.client = client
	p.chainID = chainID
	p.chainName = name
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	p.logger.DebugContext(ctx, "attached to chain", "chain_id", chainID, "network", name, "rpc", url)
	return nil
}

func (p *Provider) active() (EthClient, uint64, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client, p.chainID, p.chainName
}

// connection is active, failing once the provider is closed.
func (p *Provider) connection() (EthClient, uint64, string, error) {
	client, chainID, chain := p.active()
	if client == nil {
		return nil, 0, "", ErrClosed
	}
	return client, chainID, chain, nil
}

func (p *Provider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return []string{p.address.Hex()}, nil
}

func (p *Provider) Accounts(ctx context.Context) ([]string, error) {
	if !p.IsConnected() {
		return nil, nil
	}
	return []string{p.address.Hex()}, nil
}

func (p *Provider) ChainID(ctx context.Context) (uint64, error) {
	_, id, _ := p.active()
	return id, nil
}

func (p *Provider) SwitchChain(ctx context.Context, chainID uint64) error {
	if _, current, _ := p.active(); current == chainID {
		return nil
	}
	if err := p.attach(ctx, chainID); err != nil {
		return err
	}

	p.mu.Lock()
	handler := p.onChain
	p.mu.Unlock()
	if handler != nil {
		handler(chainID)
	}
	return nil
}

func (p *Provider) AddChain(ctx context.Context, params chains.AddChainParams) error {
	id, err := chains.ParseIdentity(params.ChainID)
	if err != nil {
		return err
	}
	if !id.IsEVM() {
		return fmt.Errorf("add chain: %q is not an EVM chain id", params.ChainID)
	}
	if len(params.RPCURLs) == 0 {
		return fmt.Errorf("add chain %s: no RPC URLs", params.ChainName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.added[id.ChainID()] = params
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Provider) EstimateGas(ctx context.Context, tx provider.TxRequest) (uint64, error) {
	client, _, chain, err := p.connection()
	if err != nil {
		return 0, err
	}
	to := common.HexToAddress(tx.To)
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(tx.From),
		To:    &to,
		Value: tx.Value,
	}
	start := time.Now()
	gas, err := client.EstimateGas(ctx, msg)
	observe(p.metrics, chain, "EstimateGas", start, err)
	return gas, err
}

func (p *Provider) GasPrice(ctx context.Context) (*big.Int, error) {
	client, _, chain, err := p.connection()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	price, err := client.SuggestGasPrice(ctx)
	observe(p.metrics, chain, "SuggestGasPrice", start, err)
	return price, err
}

func (p *Provider) Balance(ctx context.Context, address string) (*big.Int, error) {
	client, _, chain, err := p.connection()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	bal, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	observe(p.metrics, chain, "BalanceAt", start, err)
	return bal, err
}

// SendTransaction signs a legacy transfer with the local key and submits
// it. It returns once the node accepts the transaction, not when mined.
func (p *Provider) SendTransaction(ctx context.Context, req provider.TxRequest) (string, error) {
	if !strings.EqualFold(req.From, p.address.Hex()) {
		return "", fmt.Errorf("cannot sign for %s", req.From)
	}
	client, chainID, chain, err := p.connection()
	if err != nil {
		return "", err
	}

	start := time.Now()
	nonce, err := client.PendingNonceAt(ctx, p.address)
	observe(p.metrics, chain, "PendingNonceAt", start, err)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	to := common.HexToAddress(req.To)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    req.Value,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), p.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	start = time.Now()
	err = client.SendTransaction(ctx, signed)
	observe(p.metrics, chain, "SendTransaction", start, err)
	if err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

func (p *Provider) OnAccountsChanged(fn func([]string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAccounts = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.onAccounts = nil
	}
}

func (p *Provider) OnChainChanged(fn func(uint64)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChain = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.onChain = nil
	}
}

// Revoke stops exposing the account, the way a wallet does when the user
// disconnects the site.
func (p *Provider) Revoke() {
	p.mu.Lock()
	p.connected = false
	handler := p.onAccounts
	p.mu.Unlock()
	if handler != nil {
		handler(nil)
	}
}

// Close releases the RPC connection.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}
