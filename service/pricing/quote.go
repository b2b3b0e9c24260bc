package pricing

import (
	"github.com/brojonat/presale/service/chains"
	"github.com/shopspring/decimal"
)

const (
	MinShares = 1
	MaxShares = 10
)

// referencePrecision is the number of places kept when dividing the
// reference native amount by the reference token quantity.
const referencePrecision = 30

// extraPricePlaces widens the configured decimals when rendering a unit price.
const extraPricePlaces = 6

// Quote is the price and allocation for one purchase. It is derived per
// request and never persisted.
type Quote struct {
	Symbol            chains.Asset    `json:"symbol"`
	ElapsedDays       int             `json:"elapsed_days"`
	Shares            int             `json:"shares"`
	DecayFactor       decimal.Decimal `json:"decay_factor"`
	Price             decimal.Decimal `json:"-"`
	PricePerToken     string          `json:"price_per_token"`
	TokensPerShare    int64           `json:"tokens_per_share"`
	TokensForPurchase int64           `json:"tokens_for_purchase"`
	NativeAssetCost   decimal.Decimal `json:"native_asset_cost"`
}

// Calculate prices a purchase of shares on the given day of the presale.
// Shares are clamped into [MinShares, MaxShares] and elapsedDays below 1 is
// treated as day 1. Identical inputs always produce an identical Quote.
func Calculate(cfg chains.ChainConfig, elapsedDays, shares int) Quote {
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	shares = ClampShares(shares)

	decay := cfg.DailyGrowthFactor.Pow(decimal.NewFromInt(int64(elapsedDays - 1)))

	var refNative, refTokens, shareCost, tokensPerShare decimal.Decimal
	switch cfg.Model {
	case chains.PerShare:
		refNative = cfg.BasePricePerShare
		refTokens = cfg.InitialTokensPerShare
		shareCost = cfg.BasePricePerShare
		tokensPerShare = cfg.InitialTokensPerShare.Div(decay).Floor()
	default:
		refNative = cfg.BaseAssetTotal
		refTokens = cfg.TotalTokenSupply
		shareCost = cfg.BaseAssetTotal.Div(decimal.NewFromInt(chains.SharesPerSupply))
		tokensToday := cfg.TotalTokenSupply.Div(decay).Floor()
		tokensPerShare = tokensToday.Div(decimal.NewFromInt(chains.SharesPerSupply)).Floor()
	}

	price := refNative.DivRound(refTokens, referencePrecision).Mul(decay)
	n := decimal.NewFromInt(int64(shares))

	return Quote{
		Symbol:            cfg.Symbol,
		ElapsedDays:       elapsedDays,
		Shares:            shares,
		DecayFactor:       decay,
		Price:             price,
		PricePerToken:     FormatPrice(price, cfg.Decimals+extraPricePlaces),
		TokensPerShare:    tokensPerShare.IntPart(),
		TokensForPurchase: tokensPerShare.Mul(n).Floor().IntPart(),
		NativeAssetCost:   shareCost.Mul(n),
	}
}

// ClampShares constrains a share count to [MinShares, MaxShares].
func ClampShares(shares int) int {
	return max(MinShares, min(MaxShares, shares))
}
