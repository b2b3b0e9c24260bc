package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/presale/service/retry"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the referral backend used when none is configured.
const DefaultBaseURL = "https://api.openmanus.xyz/manus"

// ErrBackend is wrapped by errors reported inside a backend envelope.
var ErrBackend = errors.New("backend error")

// InviteInfo is the referral summary for an address.
type InviteInfo struct {
	TotalUserInvited int64           `json:"TotalUserInvited"`
	TotalManusReward decimal.Decimal `json:"TotalManusReward"`
}

// InviteRecord attributes a confirmed purchase to an inviter.
type InviteRecord struct {
	ChainID     string `json:"chain_id"`
	ChainName   string `json:"chain_name"`
	Address     string `json:"address"`
	ManusAmount int64  `json:"manus_amount"`
	TxHash      string `json:"tx_hash"`
	Inviter     string `json:"inviter"`
}

// envelope is the response wrapper every backend endpoint uses.
type envelope struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// Client is the HTTP client for the referral backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new referral backend client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// InviteInfo fetches invite statistics for address.
func (c *Client) InviteInfo(ctx context.Context, address string) (*InviteInfo, error) {
	var info InviteInfo
	if err := c.post(ctx, "/user/invite/info", map[string]string{"address": address}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RecordInvite reports a purchase made through an invite link.
func (c *Client) RecordInvite(ctx context.Context, rec InviteRecord) error {
	if rec.Inviter == "" {
		return fmt.Errorf("inviter is required")
	}
	if err := c.post(ctx, "/user/invite/new", rec, nil); err != nil {
		return err
	}
	c.logger.Debug("invite recorded", "inviter", rec.Inviter, "tx_hash", rec.TxHash, "chain", rec.ChainName)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status != http.StatusOK {
		msg := env.Msg
		if msg == "" {
			msg = fmt.Sprintf("status %d", env.Status)
		}
		return fmt.Errorf("%w: %s", ErrBackend, msg)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
