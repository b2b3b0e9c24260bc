package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/retry"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultFeeLamports is the fee reserved on top of a transfer when checking
// that the payer can afford it.
const DefaultFeeLamports uint64 = 5000

// ErrTransactionFailed is returned when a submitted transaction lands with an error.
var ErrTransactionFailed = errors.New("solana transaction failed")

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Client wraps the RPC client with the transfer and balance operations the
// presale needs. Reads are retried on rate limits and gateway errors.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // network label for metrics, e.g. "SOL" or "SOL_TEST"

	retry        retry.Policy
	pollInterval time.Duration
}

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		retry:        retry.Default(),
		pollInterval: time.Second,
	}
}

// WithRetry replaces the retry policy used for reads.
func (c *Client) WithRetry(p retry.Policy) *Client {
	c.retry = p
	return c
}

// WithPollInterval sets how often AwaitConfirmation polls signature status.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.pollInterval = d
	return c
}

func (c *Client) policy(method string) retry.Policy {
	p := c.retry
	next := p.OnRetry
	p.OnRetry = func(attempt int, err error) {
		reason := retry.Reason(err)
		c.logger.Warn("solana rpc retry",
			"method", method,
			"endpoint", c.endpoint,
			"attempt", attempt,
			"reason", reason,
			"error", err,
		)
		if reason == "rate_limit" {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
		c.metrics.RecordRPCRetry(c.endpoint, method, reason)
		if next != nil {
			next(attempt, err)
		}
	}
	return p
}

func (c *Client) observe(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(c.endpoint, method, status, time.Since(start).Seconds())
}

// Balance returns the confirmed balance of account in lamports.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return retry.Do(ctx, c.policy("GetBalance"), func(ctx context.Context) (uint64, error) {
		start := time.Now()
		out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
		c.observe("GetBalance", start, err)
		if err != nil {
			return 0, err
		}
		return out.Value, nil
	})
}

// LatestBlockhash returns a recent blockhash to anchor a new transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return retry.Do(ctx, c.policy("GetLatestBlockhash"), func(ctx context.Context) (solana.Hash, error) {
		start := time.Now()
		out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		c.observe("GetLatestBlockhash", start, err)
		if err != nil {
			return solana.Hash{}, err
		}
		if out == nil || out.Value == nil {
			return solana.Hash{}, fmt.Errorf("empty blockhash response")
		}
		return out.Value.Blockhash, nil
	})
}

// BuildTransfer builds an unsigned system transfer paid by from.
func (c *Client) BuildTransfer(ctx context.Context, from, to solana.PublicKey, lamports uint64) (*solana.Transaction, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	return tx, nil
}

// Send submits a signed transaction. Resubmitting the same signed bytes is
// idempotent, so transient failures are retried.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	}
	return retry.Do(ctx, c.policy("SendTransaction"), func(ctx context.Context) (solana.Signature, error) {
		start := time.Now()
		sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, opts)
		c.observe("SendTransaction", start, err)
		return sig, err
	})
}

// Transfer builds, signs, sends and confirms a native transfer. When the
// send succeeds the returned Transfer carries the signature even if
// confirmation then fails.
func (c *Client) Transfer(ctx context.Context, signer Signer, from, to solana.PublicKey, lamports uint64) (Transfer, error) {
	out := Transfer{From: from, To: to, Lamports: lamports}

	tx, err := c.BuildTransfer(ctx, from, to, lamports)
	if err != nil {
		return out, err
	}
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return out, err
	}

	sig, err := c.Send(ctx, tx)
	if err != nil {
		return out, fmt.Errorf("send transaction: %w", err)
	}
	out.Signature = sig
	c.logger.InfoContext(ctx, "solana transfer sent",
		"signature", sig.String(),
		"from", from.String(),
		"to", to.String(),
		"lamports", lamports,
	)

	if err := c.AwaitConfirmation(ctx, sig); err != nil {
		return out, err
	}
	out.Confirmed = true
	return out, nil
}

// AwaitConfirmation polls the signature until it reaches confirmed
// commitment, lands with an error, or ctx is done.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.observe("GetSignatureStatuses", start, err)

		switch {
		case err != nil && !retry.IsTransient(err):
			return fmt.Errorf("signature status: %w", err)
		case err != nil:
			c.logger.DebugContext(ctx, "signature status unavailable", "signature", sig.String(), "error", err)
		case out != nil && len(out.Value) > 0 && out.Value[0] != nil:
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("await confirmation of %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
