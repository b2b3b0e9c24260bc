package chains

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		in      string
		want    Identity
		wantErr bool
	}{
		{in: "", want: Identity{}},
		{in: "SOL", want: Solana},
		{in: "sol", want: Solana},
		{in: "0x1", want: EVM(1)},
		{in: "0x38", want: EVM(56)},
		{in: "0x14A34", want: EVM(84532)},
		{in: "8453", want: EVM(8453)},
		{in: "0xzz", wantErr: true},
		{in: "mainnet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentity_Accessors(t *testing.T) {
	id := EVM(11155111)
	assert.True(t, id.IsEVM())
	assert.Equal(t, "0xaa36a7", id.Hex())
	assert.Equal(t, "11155111", id.String())

	assert.True(t, Solana.IsSolana())
	assert.Equal(t, uint64(0), Solana.ChainID())
	assert.Equal(t, "", Solana.Hex())
	assert.Equal(t, "SOL", Solana.String())

	assert.True(t, Identity{}.IsZero())
}

func TestIdentity_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Chain Identity `json:"chain"`
	}

	b, err := json.Marshal(wrapper{Chain: Solana})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chain":"SOL"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"chain":"56"}`), &w))
	assert.Equal(t, EVM(56), w.Chain)
}

func TestDefaultRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	eth, ok := r.Lookup(ETH)
	require.True(t, ok)
	assert.Equal(t, "0x1", eth.ChainIDHex())
	assert.Equal(t, AssetETH, eth.Asset)
	assert.False(t, eth.Testnet)

	base, ok := r.Lookup(BASETest)
	require.True(t, ok)
	assert.Equal(t, "0x14a34", base.ChainIDHex())
	assert.True(t, base.Testnet)

	_, ok = r.Lookup("DOGE")
	assert.False(t, ok)
}

func TestRegistry_ByIdentity(t *testing.T) {
	r := DefaultRegistry()

	n, ok := r.ByIdentity(EVM(56), false)
	require.True(t, ok)
	assert.Equal(t, BSC, n.Key)

	// EVM chain ids resolve regardless of the testnet flag.
	n, ok = r.ByIdentity(EVM(97), false)
	require.True(t, ok)
	assert.Equal(t, BSCTest, n.Key)

	n, ok = r.ByIdentity(Solana, true)
	require.True(t, ok)
	assert.Equal(t, SOLTest, n.Key)

	n, ok = r.ByIdentity(Solana, false)
	require.True(t, ok)
	assert.Equal(t, SOL, n.Key)

	_, ok = r.ByIdentity(EVM(137), false)
	assert.False(t, ok)

	_, ok = r.ByIdentity(Identity{}, false)
	assert.False(t, ok)
}

func TestRegistry_NameFor(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, "ETH", r.NameFor(EVM(1), false))
	assert.Equal(t, "BASE", r.NameFor(EVM(8453), false))
	assert.Equal(t, "ETH_TEST", r.NameFor(EVM(11155111), true))
	assert.Equal(t, "SOL", r.NameFor(Solana, false))
	assert.Equal(t, "SOL_TEST", r.NameFor(Solana, true))
	assert.Equal(t, "", r.NameFor(EVM(10), false))
}

func TestRegistry_ConfigFor(t *testing.T) {
	r := DefaultRegistry()

	// BASE uses the ETH economics.
	cfg, err := r.ConfigFor(BASE)
	require.NoError(t, err)
	assert.Equal(t, AssetETH, cfg.Symbol)
	assert.True(t, cfg.BaseAssetTotal.Equal(decimal.RequireFromString("0.5")))

	cfg, err = r.ConfigFor(BSCTest)
	require.NoError(t, err)
	assert.Equal(t, AssetBNB, cfg.Symbol)
	assert.Equal(t, int32(4), cfg.Decimals)

	cfg, err = r.ConfigFor(SOL)
	require.NoError(t, err)
	assert.Equal(t, int32(9), cfg.NativeExponent)

	_, err = r.ConfigFor("NOPE")
	assert.Error(t, err)
}

func TestRegistry_Networks(t *testing.T) {
	r := DefaultRegistry()

	mainnet := r.Networks(false)
	require.Len(t, mainnet, 4)
	assert.Equal(t, BASE, mainnet[0].Key)
	for _, n := range mainnet {
		assert.False(t, n.Testnet)
	}

	testnet := r.Networks(true)
	require.Len(t, testnet, 4)
	for _, n := range testnet {
		assert.True(t, n.Testnet)
	}
}

func TestRegistry_BalanceNetwork(t *testing.T) {
	r := DefaultRegistry()

	n, ok := r.BalanceNetwork(AssetETH, false)
	require.True(t, ok)
	assert.Equal(t, ETH, n.Key)

	n, ok = r.BalanceNetwork(AssetBNB, true)
	require.True(t, ok)
	assert.Equal(t, BSCTest, n.Key)

	n, ok = r.BalanceNetwork(AssetSOL, true)
	require.True(t, ok)
	assert.Equal(t, SOLTest, n.Key)
}

func TestRegistry_WithOverrides(t *testing.T) {
	r := DefaultRegistry()

	overridden, err := r.WithOverrides(map[Network]Override{
		SOL: {RPCURLs: []string{"https://mainnet.helius-rpc.com"}},
		ETH: {Recipient: "0x0000000000000000000000000000000000000001"},
	})
	require.NoError(t, err)

	sol, _ := overridden.Lookup(SOL)
	assert.Equal(t, []string{"https://mainnet.helius-rpc.com"}, sol.RPCURLs)

	eth, _ := overridden.Lookup(ETH)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", eth.Recipient)

	// the source registry is untouched
	orig, _ := r.Lookup(SOL)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, orig.RPCURLs)

	_, err = r.WithOverrides(map[Network]Override{"DOGE": {Recipient: "x"}})
	assert.Error(t, err)

	_, err = r.WithOverrides(map[Network]Override{ETH: {Recipient: "not-an-address"}})
	assert.Error(t, err)
}

func TestNewRegistry_Rejects(t *testing.T) {
	configs := DefaultConfigs()

	t.Run("duplicate chain id", func(t *testing.T) {
		_, err := NewRegistry([]NetworkInfo{
			{Key: ETH, Identity: EVM(1), Asset: AssetETH},
			{Key: BASE, Identity: EVM(1), Asset: AssetETH},
		}, configs)
		assert.Error(t, err)
	})

	t.Run("missing asset config", func(t *testing.T) {
		_, err := NewRegistry([]NetworkInfo{
			{Key: ETH, Identity: EVM(1), Asset: "DOGE"},
		}, configs)
		assert.Error(t, err)
	})

	t.Run("growth factor not above one", func(t *testing.T) {
		bad := DefaultConfigs()
		bad[0].DailyGrowthFactor = decimal.NewFromInt(1)
		_, err := NewRegistry(nil, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "greater than 1")
	})

	t.Run("missing identity", func(t *testing.T) {
		_, err := NewRegistry([]NetworkInfo{{Key: ETH, Asset: AssetETH}}, configs)
		assert.Error(t, err)
	})
}

func TestNetworkInfo_TxURL(t *testing.T) {
	r := DefaultRegistry()

	eth, _ := r.Lookup(ETH)
	assert.Equal(t, "https://etherscan.io/tx/0xabc", eth.TxURL("0xabc"))

	devnet, _ := r.Lookup(SOLTest)
	assert.Equal(t, "https://explorer.solana.com/tx/5sig?cluster=devnet", devnet.TxURL("5sig"))

	sol, _ := r.Lookup(SOL)
	assert.Equal(t, "https://explorer.solana.com/tx/5sig", sol.TxURL("5sig"))
}

func TestNetworkInfo_AddChainParams(t *testing.T) {
	r := DefaultRegistry()

	bsc, _ := r.Lookup(BSCTest)
	p := bsc.AddChainParams()
	assert.Equal(t, "0x61", p.ChainID)
	assert.Equal(t, "BSC Testnet", p.ChainName)
	assert.Equal(t, "BNB", p.NativeCurrency.Symbol)
	assert.Equal(t, 18, p.NativeCurrency.Decimals)
	assert.Equal(t, []string{"https://data-seed-prebsc-1-s1.binance.org:8545"}, p.RPCURLs)
	assert.Len(t, p.IconURLs, 1)

	base, _ := r.Lookup(BASETest)
	assert.Empty(t, base.AddChainParams().IconURLs)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(EVM(1), "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7"))
	assert.Error(t, ValidateAddress(EVM(1), "0x123"))
	assert.NoError(t, ValidateAddress(Solana, "2moCDRhmTKQW32q5XMp9MraaLLEyCiFNg7NbCp3NdV5A"))
	assert.Error(t, ValidateAddress(Solana, "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7"))
	assert.Error(t, ValidateAddress(Identity{}, "anything"))
}

func TestChainConfig_SmallestUnit(t *testing.T) {
	sol, ok := DefaultRegistry().Config(AssetSOL)
	require.True(t, ok)

	lamports := sol.ToSmallestUnit(decimal.RequireFromString("0.7000000019"))
	assert.Equal(t, "700000001", lamports.String())
	assert.Equal(t, "0.700000001", sol.FromSmallestUnit(lamports).String())
}
