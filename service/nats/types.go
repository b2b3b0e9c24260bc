package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/presale/service/db"
)

// PurchaseEvent is published to "presale.purchases.{network}" after a
// transfer to the presale recipient succeeds.
type PurchaseEvent struct {
	TxHash       string `json:"tx_hash"`
	Network      string `json:"network"`
	ChainID      string `json:"chain_id"`
	FromAddress  string `json:"from_address"`
	ToAddress    string `json:"to_address"`
	NativeAmount string `json:"native_amount"`
	TokenAmount  int64  `json:"token_amount"`
	Inviter      string `json:"inviter,omitempty"`
	ExplorerURL  string `json:"explorer_url,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at"`
}

// RaisedBalance is one asset's entry in a RaisedEvent. Balance is nil when
// the lookup failed.
type RaisedBalance struct {
	Asset   string  `json:"asset"`
	Network string  `json:"network"`
	Address string  `json:"address"`
	Balance *string `json:"balance"`
}

// RaisedEvent is published to "presale.raised" after every balance poll.
type RaisedEvent struct {
	Testnet     bool            `json:"testnet"`
	Balances    []RaisedBalance `json:"balances"`
	PolledAt    time.Time       `json:"polled_at"`
	PublishedAt time.Time       `json:"published_at"`
}

// PurchaseSubject returns the subject a purchase on network is published to.
func PurchaseSubject(network string) string {
	return fmt.Sprintf("%s.%s", purchaseSubjectPrefix, strings.ToLower(network))
}

// FromDBPurchase converts a ledger row to a PurchaseEvent for publishing.
func FromDBPurchase(p *db.Purchase) *PurchaseEvent {
	return &PurchaseEvent{
		TxHash:       p.TxHash,
		Network:      p.Network,
		ChainID:      p.ChainID,
		FromAddress:  p.FromAddress,
		ToAddress:    p.ToAddress,
		NativeAmount: p.NativeAmount,
		TokenAmount:  p.TokenAmount,
		Inviter:      p.Inviter,
		CreatedAt:    p.CreatedAt,
		PublishedAt:  time.Now().UTC(),
	}
}

// FromDBSnapshots converts the snapshots of one poll to a RaisedEvent.
func FromDBSnapshots(testnet bool, snaps []*db.RaisedSnapshot) *RaisedEvent {
	event := &RaisedEvent{
		Testnet:     testnet,
		Balances:    make([]RaisedBalance, 0, len(snaps)),
		PublishedAt: time.Now().UTC(),
	}
	for _, s := range snaps {
		event.Balances = append(event.Balances, RaisedBalance{
			Asset:   s.Asset,
			Network: s.Network,
			Address: s.Address,
			Balance: s.Balance,
		})
		if s.PolledAt.After(event.PolledAt) {
			event.PolledAt = s.PolledAt
		}
	}
	return event
}
