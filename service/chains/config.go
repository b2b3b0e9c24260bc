package chains

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Asset is the native asset whose economics a ChainConfig describes.
type Asset string

const (
	AssetETH Asset = "ETH"
	AssetBNB Asset = "BNB"
	AssetSOL Asset = "SOL"
)

// Assets lists every asset with a presale config, in display order.
var Assets = []Asset{AssetETH, AssetBNB, AssetSOL}

// AllocationModel selects how tokens per share are derived.
type AllocationModel int

const (
	// TotalSupply divides a fixed token supply by the decay factor, then by ten shares.
	TotalSupply AllocationModel = iota
	// PerShare divides a fixed day-one tokens-per-share figure by the decay factor.
	PerShare
)

// SharesPerSupply is the number of shares the daily supply is split into.
const SharesPerSupply = 10

// ChainConfig holds the presale economics of one native asset.
type ChainConfig struct {
	Symbol            Asset
	DailyGrowthFactor decimal.Decimal
	Model             AllocationModel

	// TotalSupply model
	BaseAssetTotal   decimal.Decimal
	TotalTokenSupply decimal.Decimal

	// PerShare model
	BasePricePerShare     decimal.Decimal
	InitialTokensPerShare decimal.Decimal

	// Decimals is the number of places used when formatting the token price.
	Decimals int32
	// NativeExponent is the power of ten between the native asset and its smallest unit.
	NativeExponent int32
}

// Validate checks the config invariants.
func (c ChainConfig) Validate() error {
	var errs []error

	if c.Symbol == "" {
		errs = append(errs, fmt.Errorf("symbol is required"))
	}
	if !c.DailyGrowthFactor.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("daily growth factor must be greater than 1, got %s", c.DailyGrowthFactor))
	}
	switch c.Model {
	case TotalSupply:
		if !c.BaseAssetTotal.IsPositive() {
			errs = append(errs, fmt.Errorf("base asset total must be positive"))
		}
		if !c.TotalTokenSupply.IsPositive() {
			errs = append(errs, fmt.Errorf("total token supply must be positive"))
		}
	case PerShare:
		if !c.BasePricePerShare.IsPositive() {
			errs = append(errs, fmt.Errorf("base price per share must be positive"))
		}
		if !c.InitialTokensPerShare.IsPositive() {
			errs = append(errs, fmt.Errorf("initial tokens per share must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown allocation model %d", c.Model))
	}
	if c.Decimals < 0 {
		errs = append(errs, fmt.Errorf("decimals must not be negative"))
	}
	if c.NativeExponent <= 0 {
		errs = append(errs, fmt.Errorf("native exponent must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid chain config %s: %v", c.Symbol, errs)
	}
	return nil
}

// ToSmallestUnit converts a native amount to its smallest unit, rounding down.
func (c ChainConfig) ToSmallestUnit(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(c.NativeExponent).Floor()
}

// FromSmallestUnit converts a smallest-unit amount back to the native asset.
func (c ChainConfig) FromSmallestUnit(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(-c.NativeExponent)
}

// DefaultConfigs returns the presale economics for ETH, BNB and SOL.
func DefaultConfigs() []ChainConfig {
	growth := decimal.RequireFromString("1.2")
	supply := decimal.NewFromInt(50_000_000)
	return []ChainConfig{
		{
			Symbol:            AssetETH,
			DailyGrowthFactor: growth,
			Model:             TotalSupply,
			BaseAssetTotal:    decimal.RequireFromString("0.5"),
			TotalTokenSupply:  supply,
			Decimals:          9,
			NativeExponent:    18,
		},
		{
			Symbol:            AssetBNB,
			DailyGrowthFactor: growth,
			Model:             TotalSupply,
			BaseAssetTotal:    decimal.RequireFromString("1.6"),
			TotalTokenSupply:  supply,
			Decimals:          4,
			NativeExponent:    18,
		},
		{
			Symbol:            AssetSOL,
			DailyGrowthFactor: growth,
			Model:             TotalSupply,
			BaseAssetTotal:    decimal.NewFromInt(7),
			TotalTokenSupply:  supply,
			Decimals:          2,
			NativeExponent:    9,
		},
	}
}
