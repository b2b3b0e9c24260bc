package solana

import (
	"log/slog"
	"sync"

	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/retry"
)

// Pool hands out one Client per cluster label, dialing a random endpoint
// of the cluster the first time it is asked for.
type Pool struct {
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
	dial    func(rpcURL string) RPCClient

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool whose clients read with policy.
func NewPool(policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		policy:  policy,
		metrics: m,
		logger:  logger,
		dial:    NewRPCClient,
		clients: make(map[string]*Client),
	}
}

// For returns the client for label, e.g. "SOL" or "SOL_TEST".
func (p *Pool) For(label string, endpoints []string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[label]; ok {
		return c, nil
	}
	url, err := SelectRandomEndpoint(endpoints)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("dialing solana rpc", "cluster", label, "rpc_url", url)

	c := NewClient(p.dial(url), label, p.metrics, p.logger).WithRetry(p.policy)
	p.clients[label] = c
	return c, nil
}
