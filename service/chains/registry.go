package chains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Network is a registry key such as "ETH" or "SOL_TEST".
type Network string

const (
	ETH      Network = "ETH"
	BSC      Network = "BSC"
	BASE     Network = "BASE"
	SOL      Network = "SOL"
	ETHTest  Network = "ETH_TEST"
	BSCTest  Network = "BSC_TEST"
	BASETest Network = "BASE_TEST"
	SOLTest  Network = "SOL_TEST"
)

// NativeCurrency describes a chain's native currency as wallets expect it.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkInfo is the static connectivity record of one network.
type NetworkInfo struct {
	Key            Network        `json:"key"`
	Name           string         `json:"name"`
	Identity       Identity       `json:"chain_identity"`
	Asset          Asset          `json:"asset"`
	Testnet        bool           `json:"testnet"`
	RPCURLs        []string       `json:"rpc_urls"`
	ExplorerURLs   []string       `json:"block_explorer_urls"`
	NativeCurrency NativeCurrency `json:"native_currency"`
	IconURL        string         `json:"icon_url,omitempty"`
	Recipient      string         `json:"recipient"`
}

// ChainIDHex returns the hex chain id for EVM networks and "" for Solana.
func (n NetworkInfo) ChainIDHex() string { return n.Identity.Hex() }

// TxURL returns an explorer link for a transaction hash or signature.
func (n NetworkInfo) TxURL(hash string) string {
	if len(n.ExplorerURLs) == 0 {
		return ""
	}
	base := n.ExplorerURLs[0]
	if n.Identity.IsSolana() {
		// the devnet explorer carries a ?cluster query that must follow the path
		path, query, _ := strings.Cut(base, "?")
		link := strings.TrimRight(path, "/") + "/tx/" + hash
		if query != "" {
			link += "?" + query
		}
		return link
	}
	return strings.TrimRight(base, "/") + "/tx/" + hash
}

// AddChainParams is the chain definition handed to an EVM provider that
// does not recognize a chain.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
	IconURLs          []string       `json:"iconUrls,omitempty"`
}

// AddChainParams builds the add-chain definition for an EVM network.
func (n NetworkInfo) AddChainParams() AddChainParams {
	p := AddChainParams{
		ChainID:           n.Identity.Hex(),
		ChainName:         n.Name,
		NativeCurrency:    n.NativeCurrency,
		RPCURLs:           n.RPCURLs,
		BlockExplorerURLs: n.ExplorerURLs,
	}
	if n.IconURL != "" {
		p.IconURLs = []string{n.IconURL}
	}
	return p
}

// Registry maps network keys and chain identities to network records and
// assets to presale economics. It is immutable after construction.
type Registry struct {
	networks map[Network]NetworkInfo
	byChain  map[uint64]Network
	configs  map[Asset]ChainConfig
}

// NewRegistry validates and indexes the given networks and configs.
func NewRegistry(networks []NetworkInfo, configs []ChainConfig) (*Registry, error) {
	r := &Registry{
		networks: make(map[Network]NetworkInfo, len(networks)),
		byChain:  make(map[uint64]Network, len(networks)),
		configs:  make(map[Asset]ChainConfig, len(configs)),
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		r.configs[cfg.Symbol] = cfg
	}

	solana := map[bool]bool{}
	for _, n := range networks {
		if n.Key == "" {
			return nil, fmt.Errorf("network key is required")
		}
		if _, dup := r.networks[n.Key]; dup {
			return nil, fmt.Errorf("duplicate network %s", n.Key)
		}
		if _, ok := r.configs[n.Asset]; !ok {
			return nil, fmt.Errorf("network %s: no chain config for asset %s", n.Key, n.Asset)
		}
		switch {
		case n.Identity.IsEVM():
			if other, dup := r.byChain[n.Identity.ChainID()]; dup {
				return nil, fmt.Errorf("network %s: chain id %d already used by %s", n.Key, n.Identity.ChainID(), other)
			}
			r.byChain[n.Identity.ChainID()] = n.Key
		case n.Identity.IsSolana():
			if solana[n.Testnet] {
				return nil, fmt.Errorf("network %s: more than one solana network with testnet=%t", n.Key, n.Testnet)
			}
			solana[n.Testnet] = true
		default:
			return nil, fmt.Errorf("network %s: chain identity is required", n.Key)
		}
		if n.Recipient != "" {
			if err := ValidateAddress(n.Identity, n.Recipient); err != nil {
				return nil, fmt.Errorf("network %s: recipient: %w", n.Key, err)
			}
		}
		r.networks[n.Key] = n
	}

	return r, nil
}

// DefaultRegistry returns the registry of supported mainnet and testnet networks.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultNetworks(), DefaultConfigs())
	if err != nil {
		panic(fmt.Sprintf("default chain registry is invalid: %v", err))
	}
	return r
}

// Lookup returns the network registered under key.
func (r *Registry) Lookup(key Network) (NetworkInfo, bool) {
	n, ok := r.networks[key]
	return n, ok
}

// ByIdentity resolves a chain identity to its network. EVM chain ids are
// unique across mainnet and testnet; the testnet flag selects the Solana cluster.
func (r *Registry) ByIdentity(id Identity, testnet bool) (NetworkInfo, bool) {
	switch {
	case id.IsEVM():
		key, ok := r.byChain[id.ChainID()]
		if !ok {
			return NetworkInfo{}, false
		}
		return r.networks[key], true
	case id.IsSolana():
		for _, n := range r.networks {
			if n.Identity.IsSolana() && n.Testnet == testnet {
				return n, true
			}
		}
	}
	return NetworkInfo{}, false
}

// NameFor is the reverse map from chain identity to network name; it
// returns "" for identities the registry does not know.
func (r *Registry) NameFor(id Identity, testnet bool) string {
	n, ok := r.ByIdentity(id, testnet)
	if !ok {
		return ""
	}
	return string(n.Key)
}

// Networks returns the networks of one environment, sorted by key.
func (r *Registry) Networks(testnet bool) []NetworkInfo {
	out := make([]NetworkInfo, 0, len(r.networks))
	for _, n := range r.networks {
		if n.Testnet == testnet {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Config returns the presale economics for an asset.
func (r *Registry) Config(asset Asset) (ChainConfig, bool) {
	c, ok := r.configs[asset]
	return c, ok
}

// ConfigFor returns the presale economics applying to a network.
func (r *Registry) ConfigFor(key Network) (ChainConfig, error) {
	n, ok := r.networks[key]
	if !ok {
		return ChainConfig{}, fmt.Errorf("unknown network %q", key)
	}
	return r.configs[n.Asset], nil
}

// BalanceNetwork returns the network whose balance represents an asset in one environment.
func (r *Registry) BalanceNetwork(asset Asset, testnet bool) (NetworkInfo, bool) {
	for _, n := range r.Networks(testnet) {
		if n.Asset != asset {
			continue
		}
		// BASE shares the ETH asset; the ETH chain itself is authoritative.
		if asset == AssetETH && n.Key != ETH && n.Key != ETHTest {
			continue
		}
		return n, true
	}
	return NetworkInfo{}, false
}

// Override is a per-network replacement of RPC URLs and/or recipient.
type Override struct {
	RPCURLs   []string
	Recipient string
}

// WithOverrides returns a copy of the registry with the given overrides applied.
func (r *Registry) WithOverrides(overrides map[Network]Override) (*Registry, error) {
	networks := make([]NetworkInfo, 0, len(r.networks))
	for _, n := range r.networks {
		if o, ok := overrides[n.Key]; ok {
			if len(o.RPCURLs) > 0 {
				n.RPCURLs = append([]string(nil), o.RPCURLs...)
			}
			if o.Recipient != "" {
				n.Recipient = o.Recipient
			}
		}
		networks = append(networks, n)
	}
	for key := range overrides {
		if _, ok := r.networks[key]; !ok {
			return nil, fmt.Errorf("override for unknown network %q", key)
		}
	}
	configs := make([]ChainConfig, 0, len(r.configs))
	for _, c := range r.configs {
		configs = append(configs, c)
	}
	return NewRegistry(networks, configs)
}

// ValidateAddress checks that addr is well formed for the chain family of id.
func ValidateAddress(id Identity, addr string) error {
	switch {
	case id.IsEVM():
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid EVM address %q", addr)
		}
		return nil
	case id.IsSolana():
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("invalid Solana address %q: %w", addr, err)
		}
		return nil
	default:
		return fmt.Errorf("no chain identity for address %q", addr)
	}
}

const (
	ethIcon = "https://s2.coinmarketcap.com/static/img/coins/64x64/1027.png"
	bnbIcon = "https://s2.coinmarketcap.com/static/img/coins/64x64/1839.png"
	solIcon = "https://s2.coinmarketcap.com/static/img/coins/64x64/5426.png"

	evmRecipient     = "0xf6A89FBc3fB613bC21bf3F088F87Acd114C799B7"
	evmTestRecipient = "0x9893474207892592288695132068914166760922"
	solRecipient     = "2moCDRhmTKQW32q5XMp9MraaLLEyCiFNg7NbCp3NdV5A"
	solTestRecipient = "EgfRtdJwzwnKYHsKUzLYkAMEN3docYuaCtLesytWKKQj"
)

// DefaultNetworks returns the built-in network table.
func DefaultNetworks() []NetworkInfo {
	ether := NativeCurrency{Name: "Ethereum", Symbol: "ETH", Decimals: 18}
	bnb := NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18}
	sol := NativeCurrency{Name: "Solana", Symbol: "SOL", Decimals: 9}

	return []NetworkInfo{
		{
			Key:      ETH,
			Name:     "ETH",
			Identity: EVM(1),
			Asset:    AssetETH,
			RPCURLs: []string{
				"https://rpc.ankr.com/eth",
				"https://eth.llamarpc.com",
			},
			ExplorerURLs:   []string{"https://etherscan.io"},
			NativeCurrency: ether,
			IconURL:        ethIcon,
			Recipient:      evmRecipient,
		},
		{
			Key:      BSC,
			Name:     "BSC",
			Identity: EVM(56),
			Asset:    AssetBNB,
			RPCURLs: []string{
				"https://bsc-dataseed.binance.org",
				"https://bsc-dataseed1.defibit.io",
			},
			ExplorerURLs:   []string{"https://bscscan.com"},
			NativeCurrency: bnb,
			IconURL:        bnbIcon,
			Recipient:      evmRecipient,
		},
		{
			Key:      BASE,
			Name:     "BASE",
			Identity: EVM(8453),
			Asset:    AssetETH,
			RPCURLs: []string{
				"https://mainnet.base.org",
				"https://base.publicnode.com",
			},
			ExplorerURLs:   []string{"https://basescan.org"},
			NativeCurrency: ether,
			IconURL:        "https://base.org/favicon.ico",
			Recipient:      evmRecipient,
		},
		{
			Key:            SOL,
			Name:           "SOL",
			Identity:       Solana,
			Asset:          AssetSOL,
			RPCURLs:        []string{"https://api.mainnet-beta.solana.com"},
			ExplorerURLs:   []string{"https://explorer.solana.com"},
			NativeCurrency: sol,
			IconURL:        solIcon,
			Recipient:      solRecipient,
		},
		{
			Key:            ETHTest,
			Name:           "ETH Sepolia",
			Identity:       EVM(11155111),
			Asset:          AssetETH,
			Testnet:        true,
			RPCURLs:        []string{"https://rpc.ankr.com/eth_sepolia"},
			ExplorerURLs:   []string{"https://sepolia.etherscan.io"},
			NativeCurrency: ether,
			IconURL:        ethIcon,
			Recipient:      evmTestRecipient,
		},
		{
			Key:            BSCTest,
			Name:           "BSC Testnet",
			Identity:       EVM(97),
			Asset:          AssetBNB,
			Testnet:        true,
			RPCURLs:        []string{"https://data-seed-prebsc-1-s1.binance.org:8545"},
			ExplorerURLs:   []string{"https://testnet.bscscan.com"},
			NativeCurrency: bnb,
			IconURL:        bnbIcon,
			Recipient:      evmTestRecipient,
		},
		{
			Key:            BASETest,
			Name:           "Base Sepolia Testnet",
			Identity:       EVM(84532),
			Asset:          AssetETH,
			Testnet:        true,
			RPCURLs:        []string{"https://rpc.notadegen.com/base/sepolia"},
			ExplorerURLs:   []string{"https://sepolia.basescan.org"},
			NativeCurrency: ether,
			Recipient:      evmTestRecipient,
		},
		{
			Key:            SOLTest,
			Name:           "SOL Devnet",
			Identity:       Solana,
			Asset:          AssetSOL,
			Testnet:        true,
			RPCURLs:        []string{"https://api.devnet.solana.com"},
			ExplorerURLs:   []string{"https://explorer.solana.com/?cluster=devnet"},
			NativeCurrency: sol,
			IconURL:        solIcon,
			Recipient:      solTestRecipient,
		},
	}
}
