package dispatch

import (
	"context"
	"time"

	"github.com/brojonat/presale/client"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/db"
	"github.com/brojonat/presale/service/nats"
	"github.com/shopspring/decimal"
)

// Receipt describes a transfer the chain accepted.
type Receipt struct {
	Hash        string
	Network     chains.NetworkInfo
	From        string
	To          string
	Amount      decimal.Decimal
	TokenAmount int64
	Inviter     string
	At          time.Time
}

// ExplorerURL links to the transaction on the network's block explorer.
func (r Receipt) ExplorerURL() string {
	return r.Network.TxURL(r.Hash)
}

// Hook runs after a successful send. A hook error is logged and never
// turns the send into a failure.
type Hook interface {
	Name() string
	AfterSend(ctx context.Context, r Receipt) error
}

// InviteRecorder is the referral backend surface.
type InviteRecorder interface {
	RecordInvite(ctx context.Context, rec client.InviteRecord) error
}

// ReferralHook attributes purchases made with an inviter.
type ReferralHook struct {
	Recorder InviteRecorder
}

func (h ReferralHook) Name() string { return "referral" }

func (h ReferralHook) AfterSend(ctx context.Context, r Receipt) error {
	if r.Inviter == "" {
		return nil
	}
	return h.Recorder.RecordInvite(ctx, client.InviteRecord{
		ChainID:     chainID(r.Network),
		ChainName:   string(r.Network.Key),
		Address:     r.From,
		ManusAmount: r.TokenAmount,
		TxHash:      r.Hash,
		Inviter:     r.Inviter,
	})
}

// PurchaseLedger is the store surface the ledger hook writes to.
type PurchaseLedger interface {
	CreatePurchase(ctx context.Context, params db.CreatePurchaseParams) (*db.Purchase, error)
}

// LedgerHook records every purchase in the database.
type LedgerHook struct {
	Store PurchaseLedger
}

func (h LedgerHook) Name() string { return "ledger" }

func (h LedgerHook) AfterSend(ctx context.Context, r Receipt) error {
	_, err := h.Store.CreatePurchase(ctx, purchaseParams(r))
	return err
}

// PublishHook announces every purchase on NATS.
type PublishHook struct {
	Publisher nats.Publisher
}

func (h PublishHook) Name() string { return "publish" }

func (h PublishHook) AfterSend(ctx context.Context, r Receipt) error {
	p := purchaseParams(r)
	event := nats.FromDBPurchase(&db.Purchase{
		TxHash:       p.TxHash,
		Network:      p.Network,
		ChainID:      p.ChainID,
		FromAddress:  p.FromAddress,
		ToAddress:    p.ToAddress,
		NativeAmount: p.NativeAmount,
		TokenAmount:  p.TokenAmount,
		Inviter:      p.Inviter,
		CreatedAt:    r.At,
	})
	event.ExplorerURL = r.ExplorerURL()
	return h.Publisher.PublishPurchase(ctx, event)
}

func purchaseParams(r Receipt) db.CreatePurchaseParams {
	return db.CreatePurchaseParams{
		TxHash:       r.Hash,
		Network:      string(r.Network.Key),
		ChainID:      chainID(r.Network),
		FromAddress:  r.From,
		ToAddress:    r.To,
		NativeAmount: r.Amount.String(),
		TokenAmount:  r.TokenAmount,
		Inviter:      r.Inviter,
	}
}

// chainID renders the hex chain id for EVM networks and "SOL" for Solana.
func chainID(n chains.NetworkInfo) string {
	if hex := n.ChainIDHex(); hex != "" {
		return hex
	}
	return n.Identity.String()
}
