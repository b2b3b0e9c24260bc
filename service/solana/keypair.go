package solana

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// KeypairProvider is a SolanaProvider backed by a local keypair, used by
// the CLI in place of a browser wallet.
type KeypairProvider struct {
	key solana.PrivateKey

	mu           sync.Mutex
	connected    bool
	onAccount    func(*solana.PublicKey)
	onDisconnect func()
}

// NewKeypairProvider wraps an in-memory private key.
func NewKeypairProvider(key solana.PrivateKey) *KeypairProvider {
	return &KeypairProvider{key: key}
}

// LoadKeypairProvider reads a solana-keygen JSON keypair file.
func LoadKeypairProvider(path string) (*KeypairProvider, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load solana keypair: %w", err)
	}
	return NewKeypairProvider(key), nil
}

func (k *KeypairProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = true
	return k.key.PublicKey(), nil
}

func (k *KeypairProvider) Disconnect(ctx context.Context) error {
	k.mu.Lock()
	k.connected = false
	handler := k.onDisconnect
	k.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (k *KeypairProvider) IsConnected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

func (k *KeypairProvider) PublicKey() (solana.PublicKey, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.connected {
		return solana.PublicKey{}, false
	}
	return k.key.PublicKey(), true
}

func (k *KeypairProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if !k.IsConnected() {
		return fmt.Errorf("keypair not connected")
	}
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(k.key.PublicKey()) {
			return &k.key
		}
		return nil
	})
	return err
}

func (k *KeypairProvider) OnAccountChanged(fn func(*solana.PublicKey)) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.onAccount = fn
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.onAccount = nil
	}
}

func (k *KeypairProvider) OnDisconnect(fn func()) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.onDisconnect = fn
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.onDisconnect = nil
	}
}
