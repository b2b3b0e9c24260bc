package provider

import (
	"context"
	"math/big"

	"github.com/brojonat/presale/service/chains"
	"github.com/gagliardetto/solana-go"
)

// TxRequest is a native-asset transfer on an EVM chain. Gas and GasPrice
// are left zero when estimating.
type TxRequest struct {
	From     string
	To       string
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// EVMProvider is the request/subscribe surface of an EVM wallet.
type EVMProvider interface {
	// RequestAccounts asks the wallet to expose its accounts, prompting if needed.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts returns the currently exposed accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params chains.AddChainParams) error
	IsConnected() bool

	EstimateGas(ctx context.Context, tx TxRequest) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)

	// OnAccountsChanged and OnChainChanged register the single handler for
	// each event and return a function that removes it.
	OnAccountsChanged(fn func(accounts []string)) (unsubscribe func())
	OnChainChanged(fn func(chainID uint64)) (unsubscribe func())
}

// SolanaProvider is the surface of a Solana wallet.
type SolanaProvider interface {
	Connect(ctx context.Context) (solana.PublicKey, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	// PublicKey returns the connected key and false when not connected.
	PublicKey() (solana.PublicKey, bool)
	// SignTransaction adds the wallet's signature to tx in place.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error

	// OnAccountChanged delivers nil when the wallet drops its account.
	OnAccountChanged(fn func(pk *solana.PublicKey)) (unsubscribe func())
	OnDisconnect(fn func()) (unsubscribe func())
}

// Set holds the providers resolved once at startup. Either may be nil.
type Set struct {
	EVM    EVMProvider
	Solana SolanaProvider
}

// Kind names what the set can offer, for logs and hints.
func (s Set) Kind() string {
	switch {
	case s.EVM != nil && s.Solana != nil:
		return "evm+solana"
	case s.EVM != nil:
		return "evm"
	case s.Solana != nil:
		return "solana"
	default:
		return "none"
	}
}

// Empty reports whether no provider is present.
func (s Set) Empty() bool {
	return s.EVM == nil && s.Solana == nil
}
