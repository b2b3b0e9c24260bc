package provider

import (
	"errors"
	"fmt"

	"github.com/brojonat/presale/service/retry"
)

// Wallet error codes reported by EVM providers.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrUserRejected         = errors.New("user rejected the request")
	ErrUnsupportedNetwork   = errors.New("unsupported network")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrRPCTransient         = retry.ErrTransient
	ErrNetworkSwitchTimeout = errors.New("network switch timed out")
	ErrTransactionFailed    = errors.New("transaction failed")
	ErrNotConnected         = errors.New("wallet not connected")
)

// RPCError is an error reported by a wallet provider with a numeric code.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrUserRejected) match a 4001.
func (e *RPCError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == CodeUserRejected
}

// Code extracts the provider error code from err, or 0.
func Code(err error) int {
	var re *RPCError
	if errors.As(err, &re) {
		return re.Code
	}
	return 0
}

// UserRejected builds the error a provider returns when the user declines.
func UserRejected(msg string) error {
	return &RPCError{Code: CodeUserRejected, Message: msg}
}

// UnrecognizedChain builds the error a provider returns for an unknown chain id.
func UnrecognizedChain(chainID uint64) error {
	return &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id 0x%x", chainID)}
}
