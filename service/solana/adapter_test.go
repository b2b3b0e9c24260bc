package solana

import (
	"testing"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterRegistry(t *testing.T) *chains.Registry {
	t.Helper()
	reg, err := chains.DefaultRegistry().WithOverrides(map[chains.Network]chains.Override{
		chains.SOL: {RPCURLs: []string{
			"https://api.mainnet-beta.solana.com",
			"https://mainnet.helius-rpc.com/?api-key=test",
			"https://solana-rpc.publicnode.com",
		}},
	})
	require.NoError(t, err)
	return reg
}

func TestSelectRandomEndpoint_ClusterLists(t *testing.T) {
	reg := clusterRegistry(t)

	for _, key := range []chains.Network{chains.SOL, chains.SOLTest} {
		t.Run(string(key), func(t *testing.T) {
			n, ok := reg.Lookup(key)
			require.True(t, ok)
			require.NotEmpty(t, n.RPCURLs)

			selected, err := SelectRandomEndpoint(n.RPCURLs)
			require.NoError(t, err)
			assert.Contains(t, n.RPCURLs, selected)
		})
	}

	t.Run("devnet has a single endpoint", func(t *testing.T) {
		n, _ := reg.Lookup(chains.SOLTest)
		selected, err := SelectRandomEndpoint(n.RPCURLs)
		require.NoError(t, err)
		assert.Equal(t, "https://api.devnet.solana.com", selected)
	})

	t.Run("mainnet overrides are all used", func(t *testing.T) {
		n, _ := reg.Lookup(chains.SOL)
		seen := make(map[string]bool)
		// 60 draws from 3 endpoints leave one unseen with probability ~3*(2/3)^60
		for i := 0; i < 60; i++ {
			selected, err := SelectRandomEndpoint(n.RPCURLs)
			require.NoError(t, err)
			seen[selected] = true
		}
		assert.Len(t, seen, 3)
	})

	t.Run("no endpoints", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no RPC endpoints configured")
	})
}

func TestPool_ForDialsClusterEndpoint(t *testing.T) {
	reg := clusterRegistry(t)
	pool := NewPool(retry.Policy{MaxAttempts: 1}, nil, nil)
	dialed := map[string]string{}
	var label string
	pool.dial = func(url string) RPCClient {
		dialed[label] = url
		return &mockRPCClient{}
	}

	clients := map[chains.Network]*Client{}
	for _, key := range []chains.Network{chains.SOL, chains.SOLTest} {
		n, _ := reg.Lookup(key)
		label = string(key)
		c, err := pool.For(label, n.RPCURLs)
		require.NoError(t, err)
		assert.Contains(t, n.RPCURLs, dialed[label])
		clients[key] = c
	}

	assert.NotSame(t, clients[chains.SOL], clients[chains.SOLTest])
	assert.Equal(t, "https://api.devnet.solana.com", dialed[string(chains.SOLTest)])
}
