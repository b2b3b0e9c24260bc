package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCError_UserRejectedMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("switch chain: %w", UserRejected("User rejected the request."))

	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, CodeUserRejected, Code(err))
}

func TestRPCError_UnrecognizedChain(t *testing.T) {
	err := UnrecognizedChain(84532)

	assert.NotErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, CodeUnrecognizedChain, Code(err))
	assert.Contains(t, err.Error(), "0x14a34")
}

func TestCode_PlainError(t *testing.T) {
	assert.Equal(t, 0, Code(errors.New("boom")))
	assert.Equal(t, 0, Code(nil))
}

func TestSet_Kind(t *testing.T) {
	assert.Equal(t, "none", Set{}.Kind())
	assert.True(t, Set{}.Empty())
}
