package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// Every recording method is a no-op on a nil *Metrics.
type Metrics struct {
	// Chain RPC Metrics
	rpcCallsTotal    *prometheus.CounterVec
	rpcCallDuration  *prometheus.HistogramVec
	rpcRateLimitHits *prometheus.CounterVec
	rpcRetries       *prometheus.CounterVec

	// Purchase Metrics
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	tokensSold       *prometheus.CounterVec
	quotesServed     *prometheus.CounterVec

	// Raised Amount Metrics
	raisedBalance    *prometheus.GaugeVec
	balancePollTotal *prometheus.CounterVec

	// Workflow Metrics
	pollWorkflowDuration        *prometheus.HistogramVec
	pollWorkflowExecutionsTotal *prometheus.CounterVec
	pollActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	wsActiveConnections prometheus.Gauge
	wsMessagesSent      *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Chain RPC Metrics
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_rpc_calls_total",
				Help: "Total number of chain RPC calls by chain, method and status",
			},
			[]string{"chain", "method", "status"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_rpc_call_duration_seconds",
				Help:    "Duration of chain RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"chain", "method"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_rpc_rate_limit_hits_total",
				Help: "Total number of chain RPC rate limit hits (429 errors)",
			},
			[]string{"chain"},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_rpc_retries_total",
				Help: "Total number of chain RPC retry attempts",
			},
			[]string{"chain", "method", "reason"},
		),

		// Purchase Metrics
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchase_dispatch_total",
				Help: "Total number of purchase transfers by network and outcome",
			},
			[]string{"network", "outcome"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "purchase_dispatch_duration_seconds",
				Help:    "Duration of purchase transfers from request to hash",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"network"},
		),
		tokensSold: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presale_tokens_sold_total",
				Help: "Total number of tokens allocated by confirmed purchases",
			},
			[]string{"network"},
		),
		quotesServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presale_quotes_total",
				Help: "Total number of price quotes computed",
			},
			[]string{"symbol"},
		),

		// Raised Amount Metrics
		raisedBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "presale_raised_balance",
				Help: "Last polled balance of the presale recipient in native units",
			},
			[]string{"asset", "network"},
		),
		balancePollTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presale_balance_polls_total",
				Help: "Total number of recipient balance lookups by asset and status",
			},
			[]string{"asset", "status"},
		),

		// Workflow Metrics
		pollWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_workflow_duration_seconds",
				Help:    "Duration of raised-amount poll workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		pollWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poll_workflow_executions_total",
				Help: "Total number of raised-amount poll workflow executions",
			},
			[]string{"status"},
		),
		pollActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_activity_duration_seconds",
				Help:    "Duration of poll workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		wsActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_active_connections",
				Help: "Number of active raised-amount websocket connections",
			},
		),
		wsMessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websocket_messages_sent_total",
				Help: "Total number of websocket messages sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Chain RPC metric helpers

// RecordRPCCall records a chain RPC call with duration.
func (m *Metrics) RecordRPCCall(chain, method, status string, duration float64) {
	if m == nil {
		return
	}
	m.rpcCallsTotal.WithLabelValues(chain, method, status).Inc()
	m.rpcCallDuration.WithLabelValues(chain, method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(chain string) {
	if m == nil {
		return
	}
	m.rpcRateLimitHits.WithLabelValues(chain).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(chain, method, reason string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(chain, method, reason).Inc()
}

// Purchase metric helpers

// RecordDispatch records the outcome of a purchase transfer.
// Outcome is one of "success", "rejected", "insufficient_balance", "busy" or "error".
func (m *Metrics) RecordDispatch(network, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(network, outcome).Inc()
	m.dispatchDuration.WithLabelValues(network).Observe(duration)
}

// RecordTokensSold adds a confirmed purchase's allocation.
func (m *Metrics) RecordTokensSold(network string, tokens int64) {
	if m == nil {
		return
	}
	m.tokensSold.WithLabelValues(network).Add(float64(tokens))
}

// RecordQuote records a computed price quote.
func (m *Metrics) RecordQuote(symbol string) {
	if m == nil {
		return
	}
	m.quotesServed.WithLabelValues(symbol).Inc()
}

// Raised amount metric helpers

// RecordRaisedBalance records the last polled recipient balance.
func (m *Metrics) RecordRaisedBalance(asset, network string, balance float64) {
	if m == nil {
		return
	}
	m.raisedBalance.WithLabelValues(asset, network).Set(balance)
}

// RecordBalancePoll records one balance lookup outcome.
func (m *Metrics) RecordBalancePoll(asset, status string) {
	if m == nil {
		return
	}
	m.balancePollTotal.WithLabelValues(asset, status).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	if m == nil {
		return
	}
	m.pollWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.pollWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	if m == nil {
		return
	}
	m.pollActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordWSConnectionChange records a change in websocket connection count.
func (m *Metrics) RecordWSConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.wsActiveConnections.Add(delta)
}

// RecordWSMessageSent records a websocket message being sent.
func (m *Metrics) RecordWSMessageSent(eventType string) {
	if m == nil {
		return
	}
	m.wsMessagesSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
