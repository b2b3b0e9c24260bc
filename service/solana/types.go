package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Signer adds a signature to a transaction in place. Wallet providers and
// local keypairs both satisfy it.
type Signer interface {
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// Transfer is a submitted native SOL transfer.
// Confirmed is false when the transaction was sent but confirmation failed
// or timed out; the signature is still valid for lookups.
type Transfer struct {
	Signature solana.Signature
	From      solana.PublicKey
	To        solana.PublicKey
	Lamports  uint64
	Confirmed bool
}
