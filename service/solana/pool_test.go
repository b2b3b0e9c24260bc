package solana

import (
	"testing"

	"github.com/brojonat/presale/service/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_For(t *testing.T) {
	var dialed []string
	pool := NewPool(retry.Policy{MaxAttempts: 1}, nil, nil)
	pool.dial = func(url string) RPCClient {
		dialed = append(dialed, url)
		return &mockRPCClient{}
	}

	endpoints := []string{"https://api.devnet.solana.com"}

	first, err := pool.For("SOL_TEST", endpoints)
	require.NoError(t, err)
	second, err := pool.For("SOL_TEST", endpoints)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"https://api.devnet.solana.com"}, dialed)
	assert.Equal(t, 1, first.retry.MaxAttempts)

	_, err = pool.For("SOL", nil)
	assert.Error(t, err)
	assert.Len(t, dialed, 1)
}
