package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/config"
	"github.com/brojonat/presale/service/db"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/pricing"
	"github.com/shopspring/decimal"
)

const (
	maxAddressLength     = 100 // Solana addresses are 44 chars, EVM 42
	defaultPurchaseLimit = 50
	maxPurchaseLimit     = 500
	refreshTimeout       = 2 * time.Minute
)

// handleListNetworks returns a handler that lists the networks of one environment.
// GET /api/v1/networks?testnet={bool}
func handleListNetworks(registry *chains.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testnet, err := parseTestnet(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		networks := registry.Networks(testnet)
		resp := make([]networkResponse, len(networks))
		for i, n := range networks {
			resp[i] = networkToResponse(n)
		}

		writeJSON(w, map[string]interface{}{
			"networks": resp,
			"count":    len(resp),
			"testnet":  testnet,
		}, http.StatusOK)
	})
}

// networkResponse is the JSON response format for a network.
type networkResponse struct {
	chains.NetworkInfo
	ChainID        string                `json:"chain_id"`
	AddChainParams *chains.AddChainParams `json:"add_chain_params,omitempty"`
}

func networkToResponse(n chains.NetworkInfo) networkResponse {
	resp := networkResponse{NetworkInfo: n, ChainID: n.Identity.String()}
	if n.Identity.IsEVM() {
		p := n.AddChainParams()
		resp.AddChainParams = &p
	}
	return resp
}

// handlePresaleStatus returns a handler describing the presale window.
// GET /api/v1/presale
func handlePresaleStatus(cfg *config.Config, registry *chains.Registry, store Store, now func() time.Time, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := cfg.Window()
		at := now()

		resp := map[string]interface{}{
			"start":                 window.Start,
			"end":                   window.End(),
			"duration_days":         window.DurationDays,
			"elapsed_days":          window.ElapsedDays(at),
			"closed":                window.Closed(at),
			"next_increase_seconds": int64(window.NextIncrease(at).Seconds()),
		}

		prices := make(map[chains.Asset]string, len(chains.Assets))
		for _, asset := range chains.Assets {
			if c, ok := registry.Config(asset); ok {
				prices[asset] = window.QuoteAt(c, at, pricing.MinShares).PricePerToken
			}
		}
		resp["price_per_token"] = prices

		if store != nil {
			sold, err := store.TokensSold(r.Context())
			if err != nil {
				logger.Warn("failed to sum tokens sold", "error", err)
			} else {
				resp["tokens_sold"] = sold
			}
		}

		writeJSON(w, resp, http.StatusOK)
	})
}

// quoteResponse is the JSON response format for a price quote.
type quoteResponse struct {
	pricing.Quote
	Network             chains.Network `json:"network"`
	ChainID             string         `json:"chain_id"`
	Recipient           string         `json:"recipient"`
	Closed              bool           `json:"closed"`
	NextIncreaseSeconds int64          `json:"next_increase_seconds"`
}

// handleQuote returns a handler that prices a purchase.
// GET /api/v1/quote?network={key}&shares={n}
func handleQuote(cfg *config.Config, registry *chains.Registry, now func() time.Time, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		key := chains.Network(strings.ToUpper(strings.TrimSpace(query.Get("network"))))
		if key == "" {
			writeError(w, "network query parameter is required", http.StatusBadRequest)
			return
		}
		network, ok := registry.Lookup(key)
		if !ok {
			writeError(w, fmt.Sprintf("unknown network %q", key), http.StatusBadRequest)
			return
		}
		chainCfg, err := registry.ConfigFor(key)
		if err != nil {
			logger.Error("network has no presale config", "network", key, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// out of range counts are clamped by the pricing engine
		shares := pricing.MinShares
		if raw := query.Get("shares"); raw != "" {
			shares, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, "invalid shares parameter: must be an integer", http.StatusBadRequest)
				return
			}
		}

		window := cfg.Window()
		at := now()
		quote := window.QuoteAt(chainCfg, at, shares)
		m.RecordQuote(string(quote.Symbol))

		logger.Debug("quote served",
			"network", key,
			"shares", quote.Shares,
			"elapsed_days", quote.ElapsedDays,
			"cost", quote.NativeAssetCost.String(),
		)

		writeJSON(w, quoteResponse{
			Quote:               quote,
			Network:             key,
			ChainID:             network.Identity.String(),
			Recipient:           network.Recipient,
			Closed:              window.Closed(at),
			NextIncreaseSeconds: int64(window.NextIncrease(at).Seconds()),
		}, http.StatusOK)
	})
}

// raisedEntry is one recipient balance in a raised response.
type raisedEntry struct {
	Asset   string  `json:"asset"`
	Network string  `json:"network"`
	Address string  `json:"address"`
	Balance *string `json:"balance"`
	Display string  `json:"display"`
}

// raisedResponse is the JSON response format for the raised amounts.
type raisedResponse struct {
	Testnet  bool          `json:"testnet"`
	Balances []raisedEntry `json:"balances"`
	PolledAt time.Time     `json:"polled_at"`
	Source   string        `json:"source"`
}

// handleRaised returns a handler reporting the balance held by each presale recipient.
// The latest recorded snapshot is served when present; otherwise balances are read live.
// GET /api/v1/raised?testnet={bool}
func handleRaised(registry *chains.Registry, store Store, oracle BalancePoller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testnet, err := parseTestnet(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if store != nil {
			snaps, err := store.LatestRaisedSnapshots(r.Context())
			switch {
			case err != nil:
				logger.Error("failed to load raised snapshots", "error", err)
				if oracle == nil {
					writeError(w, "internal server error", http.StatusInternalServerError)
					return
				}
			default:
				if resp, ok := raisedFromSnapshots(registry, snaps, testnet); ok {
					writeJSON(w, resp, http.StatusOK)
					return
				}
			}
		}

		if oracle == nil {
			writeError(w, "no raised amounts recorded yet", http.StatusServiceUnavailable)
			return
		}

		polledAt := time.Now().UTC()
		balances := oracle.PollAll(r.Context(), balance.RecipientAddresses(registry, testnet), testnet)
		writeJSON(w, raisedFromBalances(registry, balances, testnet, polledAt), http.StatusOK)
	})
}

// raisedFromSnapshots keeps the snapshots of one environment, in asset order.
func raisedFromSnapshots(registry *chains.Registry, snaps []*db.RaisedSnapshot, testnet bool) (raisedResponse, bool) {
	keys := make(map[string]bool)
	for _, n := range registry.Networks(testnet) {
		keys[string(n.Key)] = true
	}

	resp := raisedResponse{Testnet: testnet, Source: "snapshot", Balances: []raisedEntry{}}
	for _, s := range snaps {
		if !keys[s.Network] {
			continue
		}
		resp.Balances = append(resp.Balances, raisedEntry{
			Asset:   s.Asset,
			Network: s.Network,
			Address: s.Address,
			Balance: s.Balance,
			Display: displayBalance(s.Balance),
		})
		if s.PolledAt.After(resp.PolledAt) {
			resp.PolledAt = s.PolledAt
		}
	}
	slices.SortFunc(resp.Balances, func(a, b raisedEntry) int {
		return assetIndex(a.Asset) - assetIndex(b.Asset)
	})
	return resp, len(resp.Balances) > 0
}

func raisedFromBalances(registry *chains.Registry, balances balance.Balances, testnet bool, polledAt time.Time) raisedResponse {
	resp := raisedResponse{Testnet: testnet, Source: "live", PolledAt: polledAt, Balances: []raisedEntry{}}
	for _, asset := range chains.Assets {
		n, ok := registry.BalanceNetwork(asset, testnet)
		if !ok {
			continue
		}
		entry := raisedEntry{
			Asset:   string(asset),
			Network: string(n.Key),
			Address: n.Recipient,
			Display: balances.Display(asset),
		}
		if v := balances[asset]; v != nil {
			s := v.String()
			entry.Balance = &s
		}
		resp.Balances = append(resp.Balances, entry)
	}
	return resp
}

func assetIndex(asset string) int {
	return slices.Index(chains.Assets, chains.Asset(asset))
}

// displayBalance renders a stored balance the way the oracle displays it.
func displayBalance(s *string) string {
	if s == nil {
		return "0"
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return *s
	}
	return balance.FormatDisplay(d)
}

// handleRefreshRaised returns a handler that runs a raised-amount poll now.
// POST /api/v1/raised/refresh?testnet={bool}
func handleRefreshRaised(trigger PollTrigger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testnet, err := parseTestnet(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
		defer cancel()

		result, err := trigger.PollNow(ctx, testnet)
		if err != nil {
			logger.Error("raised poll failed", "testnet", testnet, "error", err)
			writeError(w, "raised poll failed", http.StatusBadGateway)
			return
		}

		logger.Info("raised poll completed",
			"testnet", testnet,
			"failed", result.Failed,
			"recorded", result.Recorded,
		)
		writeJSON(w, result, http.StatusOK)
	})
}

// purchaseResponse is the JSON response format for a purchase.
type purchaseResponse struct {
	TxHash       string    `json:"tx_hash"`
	Network      string    `json:"network"`
	ChainID      string    `json:"chain_id"`
	FromAddress  string    `json:"from_address"`
	ToAddress    string    `json:"to_address"`
	NativeAmount string    `json:"native_amount"`
	TokenAmount  int64     `json:"token_amount"`
	Inviter      string    `json:"inviter,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func purchaseToResponse(p *db.Purchase) purchaseResponse {
	return purchaseResponse{
		TxHash:       p.TxHash,
		Network:      p.Network,
		ChainID:      p.ChainID,
		FromAddress:  p.FromAddress,
		ToAddress:    p.ToAddress,
		NativeAmount: p.NativeAmount,
		TokenAmount:  p.TokenAmount,
		Inviter:      p.Inviter,
		CreatedAt:    p.CreatedAt,
	}
}

// handleListPurchases returns a handler that lists recorded purchases.
// Without an address the most recent purchases across all buyers are listed.
// GET /api/v1/purchases?address={address}&limit={n}
func handleListPurchases(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		address := strings.TrimSpace(query.Get("address"))

		limit, err := parseLimit(query.Get("limit"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var purchases []*db.Purchase
		if address != "" {
			if err := validateAddress(address); err != nil {
				logger.Debug("invalid address", "address", address, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			purchases, err = store.ListPurchasesByAddress(r.Context(), address, limit)
		} else {
			purchases, err = store.ListRecentPurchases(r.Context(), limit)
		}
		if err != nil {
			logger.Error("failed to list purchases", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]purchaseResponse, len(purchases))
		for i := range purchases {
			resp[i] = purchaseToResponse(purchases[i])
		}

		writeJSON(w, map[string]interface{}{
			"purchases": resp,
			"count":     len(resp),
			"limit":     limit,
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// parseTestnet reads the optional testnet query flag.
func parseTestnet(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("testnet")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errorf("invalid testnet parameter: must be a boolean")
	}
	return v, nil
}

// parseLimit reads a page size, defaulting to defaultPurchaseLimit.
func parseLimit(raw string) (int32, error) {
	if raw == "" {
		return defaultPurchaseLimit, nil
	}
	var parsed int
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil {
		return 0, errorf("invalid limit parameter: must be an integer")
	}
	if parsed < 1 {
		return 0, errorf("limit must be at least 1")
	}
	if parsed > maxPurchaseLimit {
		return 0, errorf("limit cannot exceed %d", maxPurchaseLimit)
	}
	return int32(parsed), nil
}

// validateAddress accepts an EVM hex address or a Solana base58 public key.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if chains.ValidateAddress(chains.EVM(1), address) == nil {
		return nil
	}
	if chains.ValidateAddress(chains.Solana, address) == nil {
		return nil
	}
	return errorf("invalid address format: must be an EVM or Solana address")
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
