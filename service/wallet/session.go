package wallet

import (
	"github.com/brojonat/presale/service/chains"
)

// State is the connection state of the wallet session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is the wallet the presale is currently talking to.
type Session struct {
	Address string          `json:"address"`
	Chain   chains.Identity `json:"chain"`
	Testnet bool            `json:"testnet"`
}

// Empty reports whether no account is attached.
func (s Session) Empty() bool {
	return s.Address == ""
}

// View is the read-only side of the session handed to collaborators.
type View interface {
	Session() Session
	State() State
}
