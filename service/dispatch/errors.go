package dispatch

import (
	"errors"
	"fmt"

	"github.com/brojonat/presale/service/provider"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrSendInFlight  = errors.New("a transaction is already in progress")
	// ErrWrongChain means the request targets a chain the wallet is not on.
	ErrWrongChain = errors.New("wallet is attached to a different chain")
)

// InsufficientBalanceError reports a pre-submission funds check that
// failed. Required includes the fee overhead.
type InsufficientBalanceError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

// Shortfall is how much more native asset the payer needs.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s (including fees), have %s, short %s",
		e.Symbol, e.Required.String(), e.Available.String(), e.Shortfall().String())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return provider.ErrInsufficientBalance
}
