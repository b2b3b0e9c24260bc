package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/presale/service/balance"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/config"
	"github.com/brojonat/presale/service/db"
	"github.com/brojonat/presale/service/metrics"
	"github.com/brojonat/presale/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the read side of the purchase ledger used by the API.
type Store interface {
	ListPurchasesByAddress(ctx context.Context, address string, limit int32) ([]*db.Purchase, error)
	ListRecentPurchases(ctx context.Context, limit int32) ([]*db.Purchase, error)
	TokensSold(ctx context.Context) (int64, error)
	LatestRaisedSnapshots(ctx context.Context) ([]*db.RaisedSnapshot, error)
}

// BalancePoller reads recipient balances live when no snapshot is recorded.
type BalancePoller interface {
	PollAll(ctx context.Context, addrs map[chains.Asset]string, testnet bool) balance.Balances
}

// PollTrigger runs an out-of-schedule raised-amount poll.
type PollTrigger interface {
	PollNow(ctx context.Context, testnet bool) (*temporal.PollRaisedResult, error)
}

// Server represents the HTTP server for the presale API.
type Server struct {
	addr     string
	cfg      *config.Config
	registry *chains.Registry
	store    Store
	oracle   BalancePoller
	trigger  PollTrigger
	events   Subscriber
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
	now      func() time.Time
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithStore enables the purchases endpoint and snapshot-backed raised amounts.
func WithStore(store Store) Option {
	return func(s *Server) { s.store = store }
}

// WithOracle enables live raised amounts when no snapshot is available.
func WithOracle(oracle BalancePoller) Option {
	return func(s *Server) { s.oracle = oracle }
}

// WithPollTrigger enables POST /api/v1/raised/refresh.
func WithPollTrigger(trigger PollTrigger) Option {
	return func(s *Server) { s.trigger = trigger }
}

// WithEvents enables the streaming endpoints.
func WithEvents(events Subscriber) Option {
	return func(s *Server) { s.events = events }
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a new HTTP server. Every dependency beyond the config and
// registry is optional and the routes needing it are left out when absent.
func New(addr string, cfg *config.Config, registry *chains.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/networks", "/api/v1/networks", handleListNetworks(s.registry))
	route("GET /api/v1/presale", "/api/v1/presale", handlePresaleStatus(s.cfg, s.registry, s.store, s.now, s.logger))
	route("GET /api/v1/quote", "/api/v1/quote", handleQuote(s.cfg, s.registry, s.now, s.metrics, s.logger))
	route("GET /api/v1/raised", "/api/v1/raised", handleRaised(s.registry, s.store, s.oracle, s.logger))

	if s.store != nil {
		route("GET /api/v1/purchases", "/api/v1/purchases", handleListPurchases(s.store, s.logger))
	} else {
		s.logger.Warn("store not configured, purchases endpoint disabled")
	}

	if s.trigger != nil {
		route("POST /api/v1/raised/refresh", "/api/v1/raised/refresh", handleRefreshRaised(s.trigger, s.logger))
	}

	// Streaming routes hijack or flush the connection, so they skip the
	// metrics wrapper.
	if s.events != nil {
		mux.Handle("GET /api/v1/stream/raised", handleStreamRaised(s.events, s.metrics, s.logger))
		mux.Handle("GET /api/v1/stream/purchases/{network}", handleStreamPurchases(s.events, s.registry, s.logger))
		mux.Handle("GET /api/v1/stream/purchases", handleStreamPurchases(s.events, s.registry, s.logger))
		s.logger.Info("streaming endpoints enabled")
	} else {
		s.logger.Warn("event stream not configured, streaming endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut off the long-lived streams
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
