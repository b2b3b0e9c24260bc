package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRPCCall("SOL", "GetBalance", "success", 0.1)
		m.RecordRateLimitHit("SOL")
		m.RecordDispatch("ETH", "success", 1)
		m.RecordRaisedBalance("ETH", "ETH", 1.5)
		m.RecordDBQuery("insert", "purchases", 0.01, errors.New("x"))
		m.RecordWSConnectionChange(1)
	})
}

func TestRecordRPCCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRPCCall("SOL", "GetBalance", "success", 0.2)
	m.RecordRPCCall("SOL", "GetBalance", "success", 0.3)
	m.RecordRPCCall("SOL", "GetBalance", "error", 0.1)

	assert.Equal(t, 2.0, value(t, m.rpcCallsTotal.WithLabelValues("SOL", "GetBalance", "success")))
	assert.Equal(t, 1.0, value(t, m.rpcCallsTotal.WithLabelValues("SOL", "GetBalance", "error")))
}

func TestRecordRaisedBalance(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRaisedBalance("BNB", "BSC", 1.25)
	m.RecordRaisedBalance("BNB", "BSC", 2.5)

	assert.Equal(t, 2.5, value(t, m.raisedBalance.WithLabelValues("BNB", "BSC")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := HTTPMetricsMiddleware(m, "/api/v1/quote")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1.0, value(t, m.httpRequestsTotal.WithLabelValues("/api/v1/quote", "GET", "4xx")))
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "3xx", statusCodeToString(301))
	assert.Equal(t, "5xx", statusCodeToString(503))
	assert.Equal(t, "unknown", statusCodeToString(99))
}
