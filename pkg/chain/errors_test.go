package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codeError struct {
	code int
	msg  string
}

func (e codeError) Error() string  { return e.msg }
func (e codeError) ErrorCode() int { return e.code }

func TestIsUserRejected(t *testing.T) {
	assert.True(t, IsUserRejected(ErrUserRejected))
	assert.True(t, IsUserRejected(fmt.Errorf("approve: %w", ErrUserRejected)))
	assert.True(t, IsUserRejected(codeError{code: 4001, msg: "denied"}))
	assert.True(t, IsUserRejected(errors.New("ethers: user rejected transaction")))
	assert.True(t, IsUserRejected(errors.New("code=ACTION_REJECTED")))
	assert.False(t, IsUserRejected(errors.New("execution reverted")))
	assert.False(t, IsUserRejected(nil))
}

func TestIsUnrecognizedChain(t *testing.T) {
	assert.True(t, IsUnrecognizedChain(fmt.Errorf("%w: 0x38", ErrUnrecognizedChain)))
	assert.True(t, IsUnrecognizedChain(codeError{code: 4902, msg: "Unrecognized chain ID"}))
	assert.False(t, IsUnrecognizedChain(codeError{code: 4001, msg: "rejected"}))
}

func TestRevertReason(t *testing.T) {
	err := errors.New("gas estimation failed: execution reverted: PancakeRouter: EXPIRED")
	assert.Equal(t, "execution reverted: PancakeRouter: EXPIRED", RevertReason(err))
	assert.Equal(t, "connection refused", RevertReason(errors.New("connection refused")))
	assert.Equal(t, "boom", RevertReason(&TransferError{Op: "swap", Reason: "boom"}))
}

func TestWrapWrite(t *testing.T) {
	assert.NoError(t, wrapWrite("swap", nil))

	err := wrapWrite("swap", codeError{code: 4001, msg: "User denied transaction signature"})
	assert.ErrorIs(t, err, ErrUserRejected)

	bal := &InsufficientBalanceError{Asset: AssetNative, Symbol: "BNB", Have: "0.1", Need: "1"}
	assert.Same(t, bal, wrapWrite("swap", bal))

	err = wrapWrite("transfer", errors.New("execution reverted: paused"))
	var txErr *TransferError
	assert.ErrorAs(t, err, &txErr)
	assert.Equal(t, "execution reverted: paused", txErr.Reason)
	assert.Equal(t, "transfer failed: execution reverted: paused", err.Error())
}

func TestInsufficientBalanceError(t *testing.T) {
	err := error(&InsufficientBalanceError{Asset: AssetToken, Symbol: "USDT", Have: "5", Need: "10"})
	assert.True(t, IsInsufficientBalance(fmt.Errorf("swap: %w", err)))
	assert.Contains(t, err.Error(), "insufficient token balance")
}
