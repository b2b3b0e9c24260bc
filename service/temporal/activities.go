package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/db"
	"github.com/brojonat/presale/service/metrics"
	natspkg "github.com/brojonat/presale/service/nats"
)

// DefaultSnapshotRetention is how long raised snapshots are kept.
const DefaultSnapshotRetention = 30 * 24 * time.Hour

// PollRaisedInput contains the input parameters for one raised-amount poll.
type PollRaisedInput struct {
	Testnet bool `json:"testnet"`
	// Addresses overrides the registry recipients, keyed by asset.
	Addresses map[string]string `json:"addresses,omitempty"`
}

// PollRaisedResult contains the result of polling the raised amounts.
type PollRaisedResult struct {
	Testnet   bool             `json:"testnet"`
	Balances  []BalanceReading `json:"balances"`
	Failed    int              `json:"failed"`
	Recorded  int              `json:"recorded"`
	Published bool             `json:"published"`
	PollTime  time.Time        `json:"poll_time"`
	Error     *string          `json:"error,omitempty"`
}

// BalanceReading is one recipient balance. Balance is nil when the lookup failed.
type BalanceReading struct {
	Asset   string  `json:"asset"`
	Network string  `json:"network"`
	Address string  `json:"address"`
	Balance *string `json:"balance"`
}

// PollBalancesInput contains parameters for the PollBalances activity.
type PollBalancesInput struct {
	Testnet   bool              `json:"testnet"`
	Addresses map[string]string `json:"addresses,omitempty"`
}

// PollBalancesResult contains the result of the PollBalances activity.
type PollBalancesResult struct {
	Balances []BalanceReading `json:"balances"`
	PolledAt time.Time        `json:"polled_at"`
}

// RecordSnapshotInput contains parameters for the RecordSnapshot activity.
type RecordSnapshotInput struct {
	Balances []BalanceReading `json:"balances"`
	PolledAt time.Time        `json:"polled_at"`
}

// RecordSnapshotResult contains the result of the RecordSnapshot activity.
type RecordSnapshotResult struct {
	Recorded int `json:"recorded"`
}

// PublishSnapshotInput contains parameters for the PublishSnapshot activity.
type PublishSnapshotInput struct {
	Testnet   bool             `json:"testnet"`
	Balances  []BalanceReading `json:"balances"`
	PolledAt  time.Time        `json:"polled_at"`
	StartedAt time.Time        `json:"started_at"`
}

// BalanceOracle reads the recipient balances of every presale asset.
type BalanceOracle interface {
	PollAll(ctx context.Context, addrs map[chains.Asset]string, testnet bool) balance.Balances
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	CreateRaisedSnapshots(ctx context.Context, snaps []*db.RaisedSnapshot) error
	DeleteRaisedSnapshotsOlderThan(ctx context.Context, before time.Time) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishRaised(ctx context.Context, event *natspkg.RaisedEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	oracle    BalanceOracle
	registry  *chains.Registry
	store     StoreInterface
	publisher PublisherInterface
	retention time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewActivities creates a new Activities instance with explicit dependencies.
// store and publisher may be nil, in which case recording and publishing are skipped.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	oracle BalanceOracle,
	registry *chains.Registry,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		oracle:    oracle,
		registry:  registry,
		store:     store,
		publisher: publisher,
		retention: DefaultSnapshotRetention,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// PollBalances reads every recipient balance. Individual lookup failures
// come back as nil balances rather than an activity error.
func (a *Activities) PollBalances(ctx context.Context, input PollBalancesInput) (*PollBalancesResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("PollBalances", time.Since(start).Seconds())
	}()

	addrs := balance.RecipientAddresses(a.registry, input.Testnet)
	for asset, addr := range input.Addresses {
		addrs[chains.Asset(asset)] = addr
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no recipient addresses configured (testnet=%t)", input.Testnet)
	}

	a.logger.DebugContext(ctx, "polling balances",
		"testnet", input.Testnet,
		"assets", len(addrs),
	)

	balances := a.oracle.PollAll(ctx, addrs, input.Testnet)
	result := &PollBalancesResult{
		Balances: make([]BalanceReading, 0, len(addrs)),
		PolledAt: a.now().UTC(),
	}
	for _, asset := range chains.Assets {
		addr, ok := addrs[asset]
		if !ok {
			continue
		}
		reading := BalanceReading{Asset: string(asset), Address: addr}
		if n, ok := a.registry.BalanceNetwork(asset, input.Testnet); ok {
			reading.Network = string(n.Key)
		}
		if v := balances[asset]; v != nil {
			s := v.String()
			reading.Balance = &s
		}
		result.Balances = append(result.Balances, reading)
	}

	a.logger.InfoContext(ctx, "polled balances",
		"testnet", input.Testnet,
		"count", len(result.Balances),
		"failed", len(balances.Failed()),
	)

	return result, nil
}

// RecordSnapshot writes the balances of one poll and prunes history older
// than the retention window.
func (a *Activities) RecordSnapshot(ctx context.Context, input RecordSnapshotInput) (*RecordSnapshotResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("RecordSnapshot", time.Since(start).Seconds())
	}()

	if a.store == nil {
		a.logger.DebugContext(ctx, "no store configured, skipping snapshot")
		return &RecordSnapshotResult{}, nil
	}

	snaps := make([]*db.RaisedSnapshot, 0, len(input.Balances))
	for _, b := range input.Balances {
		snaps = append(snaps, &db.RaisedSnapshot{
			Asset:    b.Asset,
			Network:  b.Network,
			Address:  b.Address,
			Balance:  b.Balance,
			PolledAt: input.PolledAt,
		})
	}

	if err := a.store.CreateRaisedSnapshots(ctx, snaps); err != nil {
		a.logger.ErrorContext(ctx, "failed to record snapshot",
			"count", len(snaps),
			"error", err,
		)
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}

	if a.retention > 0 {
		cutoff := input.PolledAt.Add(-a.retention)
		if err := a.store.DeleteRaisedSnapshotsOlderThan(ctx, cutoff); err != nil {
			// Don't fail the activity for this - the snapshot is written
			a.logger.WarnContext(ctx, "failed to prune old snapshots",
				"cutoff", cutoff,
				"error", err,
			)
		}
	}

	a.logger.InfoContext(ctx, "recorded snapshot", "count", len(snaps))
	return &RecordSnapshotResult{Recorded: len(snaps)}, nil
}

// PublishSnapshot announces the balances of one poll on NATS.
func (a *Activities) PublishSnapshot(ctx context.Context, input PublishSnapshotInput) error {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("PublishSnapshot", time.Since(start).Seconds())
		if !input.StartedAt.IsZero() {
			a.metrics.RecordWorkflowDuration(pollStatus(input.Balances), time.Since(input.StartedAt).Seconds())
		}
	}()

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping publish")
		return nil
	}

	event := &natspkg.RaisedEvent{
		Testnet:     input.Testnet,
		Balances:    make([]natspkg.RaisedBalance, 0, len(input.Balances)),
		PolledAt:    input.PolledAt,
		PublishedAt: a.now().UTC(),
	}
	for _, b := range input.Balances {
		event.Balances = append(event.Balances, natspkg.RaisedBalance{
			Asset:   b.Asset,
			Network: b.Network,
			Address: b.Address,
			Balance: b.Balance,
		})
	}

	if err := a.publisher.PublishRaised(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish raised snapshot", "error", err)
		return fmt.Errorf("failed to publish raised snapshot: %w", err)
	}
	return nil
}

// pollStatus labels a poll "success" when every lookup succeeded.
func pollStatus(readings []BalanceReading) string {
	for _, r := range readings {
		if r.Balance == nil {
			return "partial"
		}
	}
	return "success"
}
