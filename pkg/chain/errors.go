package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrWalletNotFound means no signer/provider could be detected after retries
	ErrWalletNotFound = errors.New("wallet not found: configure a signer key and a reachable RPC endpoint")

	// ErrUserRejected means the signature or chain switch prompt was declined
	ErrUserRejected = errors.New("user rejected the request")

	// ErrUnrecognizedChain mirrors wallet error 4902: the provider does not know the chain
	ErrUnrecognizedChain = errors.New("unrecognized chain")

	// ErrQuoteUnavailable means no route could be priced
	ErrQuoteUnavailable = errors.New("quote unavailable: no liquidity route")

	// ErrNotConnected is returned for signer operations before Connect
	ErrNotConnected = errors.New("wallet not connected")
)

// Wallet provider error codes (EIP-1193 / MetaMask)
const (
	codeUserRejected      = 4001
	codeUnrecognizedChain = 4902
)

// AssetKind tells native-coin shortfalls apart from token shortfalls
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetToken  AssetKind = "token"
)

// InsufficientBalanceError is raised by client-side balance checks before submission
type InsufficientBalanceError struct {
	Asset  AssetKind
	Symbol string
	Have   string
	Need   string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %s %s, need %s %s", e.Asset, e.Have, e.Symbol, e.Need, e.Symbol)
}

// TransferError wraps a contract revert or network failure of a write
type TransferError struct {
	Op     string
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsUserRejected classifies provider errors that mean "the user said no"
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "user rejected") || strings.Contains(s, "ACTION_REJECTED")
}

// IsInsufficientBalance reports whether err is a client-side balance shortfall
func IsInsufficientBalance(err error) bool {
	var balErr *InsufficientBalanceError
	return errors.As(err, &balErr)
}

// RevertReason extracts the most useful part of a provider error
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var txErr *TransferError
	if errors.As(err, &txErr) {
		return txErr.Reason
	}
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}

// wrapWrite turns a write failure into a TransferError, keeping rejections distinguishable
func wrapWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsUserRejected(err) {
		return fmt.Errorf("%s: %w", op, ErrUserRejected)
	}
	if IsInsufficientBalance(err) {
		return err
	}
	return &TransferError{Op: op, Reason: RevertReason(err), Err: err}
}
