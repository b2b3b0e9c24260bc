package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/notify"
	"github.com/brojonat/presale/service/provider"
	"github.com/brojonat/presale/service/solana"
	"github.com/brojonat/presale/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConfirmTimeout = 90 * time.Second
)

// TransferRequest is one purchase: a native transfer of Amount to the
// presale recipient. Chain and To default to the session's chain and the
// network's recipient.
type TransferRequest struct {
	To          string
	Amount      decimal.Decimal
	Chain       chains.Identity
	TokenAmount int64
	Inviter     string
}

// SolanaLedger is the cluster-side surface of a Solana transfer.
type SolanaLedger interface {
	Balance(ctx context.Context, account solanago.PublicKey) (uint64, error)
	Transfer(ctx context.Context, signer solana.Signer, from, to solanago.PublicKey, lamports uint64) (solana.Transfer, error)
}

// SolanaResolver returns the RPC client for a Solana network.
type SolanaResolver func(network chains.NetworkInfo) (SolanaLedger, error)

// Config tunes a Dispatcher.
type Config struct {
	FeeLamports    uint64
	ConfirmTimeout time.Duration
	// OnBusy is called with true when a send starts and false when it ends.
	OnBusy func(busy bool)
	Now    func() time.Time
}

// Dispatcher validates funds and submits purchase transfers on whichever
// chain the wallet session is attached to. At most one send runs at a time.
type Dispatcher struct {
	session   wallet.View
	providers provider.Set
	registry  *chains.Registry
	solana    SolanaResolver
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hooks     []Hook
	cfg       Config

	inFlight atomic.Bool
}

// NewDispatcher wires a dispatcher. solanaFor may be nil when no Solana
// provider is configured.
func NewDispatcher(
	session wallet.View,
	providers provider.Set,
	registry *chains.Registry,
	solanaFor SolanaResolver,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
	hooks ...Hook,
) *Dispatcher {
	if cfg.FeeLamports == 0 {
		cfg.FeeLamports = solanaFeeDefault
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Dispatcher{
		session:   session,
		providers: providers,
		registry:  registry,
		solana:    solanaFor,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		hooks:     hooks,
		cfg:       cfg,
	}
}

const solanaFeeDefault = solana.DefaultFeeLamports

// Busy reports whether a send is in progress.
func (d *Dispatcher) Busy() bool {
	return d.inFlight.Load()
}

// Send validates and submits req and returns the transaction hash (EVM) or
// signature (Solana). Every outcome is reported through the notifier.
func (d *Dispatcher) Send(ctx context.Context, req TransferRequest) (string, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelWarning,
			Title:   "Transaction In Progress",
			Message: ErrSendInFlight.Error(),
		})
		return "", ErrSendInFlight
	}
	d.setBusy(true)
	defer func() {
		d.inFlight.Store(false)
		d.setBusy(false)
	}()

	start := d.cfg.Now()
	session := d.session.Session()

	network, err := d.validate(session, &req)
	if err != nil {
		d.fail(ctx, network, err, start)
		return "", err
	}

	var (
		hash string
		from string
	)
	if network.Identity.IsSolana() {
		hash, from, err = d.sendSolana(ctx, network, req)
	} else {
		from = session.Address
		hash, err = d.sendEVM(ctx, network, session.Address, req)
	}
	if err != nil {
		d.fail(ctx, network, err, start)
		return hash, err
	}

	receipt := Receipt{
		Hash:        hash,
		Network:     network,
		From:        from,
		To:          req.To,
		Amount:      req.Amount,
		TokenAmount: req.TokenAmount,
		Inviter:     req.Inviter,
		At:          d.cfg.Now().UTC(),
	}
	d.succeed(ctx, receipt, start)
	return hash, nil
}

func (d *Dispatcher) setBusy(busy bool) {
	if d.cfg.OnBusy != nil {
		d.cfg.OnBusy(busy)
	}
}

func (d *Dispatcher) validate(session wallet.Session, req *TransferRequest) (chains.NetworkInfo, error) {
	if session.Empty() {
		return chains.NetworkInfo{}, provider.ErrNotConnected
	}
	if !req.Amount.IsPositive() {
		return chains.NetworkInfo{}, ErrInvalidAmount
	}

	chain := req.Chain
	if chain.IsZero() {
		chain = session.Chain
	}
	if chain != session.Chain {
		return chains.NetworkInfo{}, fmt.Errorf("%w: session on %s, request for %s", ErrWrongChain, session.Chain, chain)
	}
	network, ok := d.registry.ByIdentity(chain, session.Testnet)
	if !ok {
		return chains.NetworkInfo{}, fmt.Errorf("%w: chain %s", provider.ErrUnsupportedNetwork, chain)
	}

	if req.To == "" {
		req.To = network.Recipient
	}
	if err := chains.ValidateAddress(network.Identity, req.To); err != nil {
		return network, err
	}
	return network, nil
}

func (d *Dispatcher) config(network chains.NetworkInfo) (chains.ChainConfig, error) {
	return d.registry.ConfigFor(network.Key)
}

// sendEVM prices gas, checks the payer can cover value plus gas, and
// submits through the EVM provider.
func (d *Dispatcher) sendEVM(ctx context.Context, network chains.NetworkInfo, from string, req TransferRequest) (string, error) {
	evm := d.providers.EVM
	if evm == nil {
		return "", provider.ErrWalletNotFound
	}
	cfg, err := d.config(network)
	if err != nil {
		return "", err
	}

	value := cfg.ToSmallestUnit(req.Amount).BigInt()
	tx := provider.TxRequest{From: from, To: req.To, Value: value}

	var (
		gasPrice *big.Int
		gasLimit uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gasPrice, err = evm.GasPrice(gctx)
		if err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		gasLimit, err = evm.EstimateGas(gctx, tx)
		if err != nil {
			return fmt.Errorf("estimate gas: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	total := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	total.Add(total, value)

	balance, err := evm.Balance(ctx, from)
	if err != nil {
		return "", fmt.Errorf("balance: %w", err)
	}
	if balance.Cmp(total) < 0 {
		return "", &InsufficientBalanceError{
			Symbol:    network.NativeCurrency.Symbol,
			Required:  cfg.FromSmallestUnit(decimal.NewFromBigInt(total, 0)),
			Available: cfg.FromSmallestUnit(decimal.NewFromBigInt(balance, 0)),
		}
	}

	tx.Gas = gasLimit
	tx.GasPrice = gasPrice
	d.logger.InfoContext(ctx, "submitting EVM transfer",
		"network", network.Key,
		"from", from,
		"to", req.To,
		"value_wei", value.String(),
		"gas", gasLimit,
		"gas_price", gasPrice.String(),
	)
	hash, err := evm.SendTransaction(ctx, tx)
	if err != nil {
		return "", submitError("", err)
	}
	return hash, nil
}

// sendSolana checks the payer covers lamports plus the fee reserve, then
// builds, signs, sends and confirms a system transfer.
func (d *Dispatcher) sendSolana(ctx context.Context, network chains.NetworkInfo, req TransferRequest) (string, string, error) {
	signer := d.providers.Solana
	if signer == nil || d.solana == nil {
		if d.providers.EVM != nil {
			return "", "", fmt.Errorf("%w: EVM wallet connected, install a Solana wallet to pay in SOL", provider.ErrWalletNotFound)
		}
		return "", "", fmt.Errorf("%w: no Solana wallet configured", provider.ErrWalletNotFound)
	}
	cfg, err := d.config(network)
	if err != nil {
		return "", "", err
	}
	ledger, err := d.solana(network)
	if err != nil {
		return "", "", err
	}

	from, ok := signer.PublicKey()
	if !ok || !signer.IsConnected() {
		from, err = signer.Connect(ctx)
		if err != nil {
			return "", "", err
		}
	}
	to, err := solanago.PublicKeyFromBase58(req.To)
	if err != nil {
		return "", from.String(), fmt.Errorf("recipient: %w", err)
	}

	lamports, err := toLamports(cfg, req.Amount, d.cfg.FeeLamports)
	if err != nil {
		return "", from.String(), err
	}
	required := lamports + d.cfg.FeeLamports

	balance, err := ledger.Balance(ctx, from)
	if err != nil {
		return "", from.String(), fmt.Errorf("balance: %w", err)
	}
	if balance < required {
		return "", from.String(), &InsufficientBalanceError{
			Symbol:    network.NativeCurrency.Symbol,
			Required:  cfg.FromSmallestUnit(lamportsDecimal(required)),
			Available: cfg.FromSmallestUnit(lamportsDecimal(balance)),
		}
	}

	tctx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	transfer, err := ledger.Transfer(tctx, signer, from, to, lamports)
	sig := ""
	if transfer.Signature != (solanago.Signature{}) {
		sig = transfer.Signature.String()
	}
	if err != nil {
		return sig, from.String(), submitError(sig, err)
	}
	return sig, from.String(), nil
}

// toLamports converts amount to lamports, rejecting amounts that round to
// zero or leave no room for the fee in a uint64.
func toLamports(cfg chains.ChainConfig, amount decimal.Decimal, fee uint64) (uint64, error) {
	n := cfg.ToSmallestUnit(amount).BigInt()
	if n.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s is below one lamport", ErrInvalidAmount, amount.String())
	}
	if !n.IsUint64() || n.Uint64() > math.MaxUint64-fee {
		return 0, fmt.Errorf("%w: %s exceeds the largest transferable amount", ErrInvalidAmount, amount.String())
	}
	return n.Uint64(), nil
}

// submitError classes a submission failure as ErrTransactionFailed unless
// the user declined to sign.
func submitError(hash string, err error) error {
	switch {
	case errors.Is(err, provider.ErrUserRejected), errors.Is(err, provider.ErrTransactionFailed):
		return err
	case hash != "":
		return fmt.Errorf("%w: %s: %w", provider.ErrTransactionFailed, hash, err)
	default:
		return fmt.Errorf("%w: %w", provider.ErrTransactionFailed, err)
	}
}

func lamportsDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func (d *Dispatcher) fail(ctx context.Context, network chains.NetworkInfo, err error, start time.Time) {
	label := string(network.Key)
	if label == "" {
		label = "unknown"
	}
	duration := d.cfg.Now().Sub(start).Seconds()

	var insufficient *InsufficientBalanceError
	switch {
	case errors.Is(err, provider.ErrUserRejected):
		d.metrics.RecordDispatch(label, "rejected", duration)
		d.logger.InfoContext(ctx, "transaction cancelled by user", "network", label)
		d.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelInfo,
			Title:   "Transaction Cancelled",
			Message: err.Error(),
		})
	case errors.As(err, &insufficient):
		d.metrics.RecordDispatch(label, "insufficient_balance", duration)
		d.logger.WarnContext(ctx, "insufficient balance", "network", label, "shortfall", insufficient.Shortfall().String())
		d.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Title:   "Insufficient Balance",
			Message: err.Error(),
		})
	default:
		d.metrics.RecordDispatch(label, "error", duration)
		d.logger.ErrorContext(ctx, "transaction failed", "network", label, "error", err)
		d.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Title:   "Transaction Failed",
			Message: err.Error(),
		})
	}
}

func (d *Dispatcher) succeed(ctx context.Context, r Receipt, start time.Time) {
	label := string(r.Network.Key)
	d.metrics.RecordDispatch(label, "success", d.cfg.Now().Sub(start).Seconds())
	d.metrics.RecordTokensSold(label, r.TokenAmount)
	d.logger.InfoContext(ctx, "transaction sent",
		"network", label,
		"hash", r.Hash,
		"from", r.From,
		"amount", r.Amount.String(),
		"tokens", r.TokenAmount,
	)

	message := fmt.Sprintf("Sent %s %s", r.Amount.String(), r.Network.NativeCurrency.Symbol)
	if url := r.ExplorerURL(); url != "" {
		message += ": " + url
	}
	d.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelSuccess,
		Title:   "Transaction Sent",
		Message: message,
	})

	for _, h := range d.hooks {
		if err := h.AfterSend(ctx, r); err != nil {
			d.logger.WarnContext(ctx, "post-send hook failed",
				"hook", h.Name(),
				"hash", r.Hash,
				"error", err,
			)
		}
	}
}
