package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// StatusError is an HTTP-level failure carrying the response status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// transientStatus is the whitelist of retryable HTTP statuses.
var transientStatus = map[int]string{
	http.StatusTooManyRequests:    "rate_limit",
	http.StatusBadGateway:         "bad_gateway",
	http.StatusServiceUnavailable: "unavailable",
	http.StatusGatewayTimeout:     "gateway_timeout",
}

var transientText = []struct {
	needle string
	reason string
}{
	{"too many requests", "rate_limit"},
	{"bad gateway", "bad_gateway"},
	{"service unavailable", "unavailable"},
	{"gateway timeout", "gateway_timeout"},
}

// statusText matches a status code only where the message labels it as one,
// e.g. "status code: 429" or "HTTP 503".
var statusText = regexp.MustCompile(`(?:status(?: code)?|http)[:=]?\s*(\d{3})\b`)

// IsTransient reports whether err is a rate-limit or gateway failure.
func IsTransient(err error) bool {
	return Reason(err) != ""
}

// IsRateLimit reports whether err is a 429.
func IsRateLimit(err error) bool {
	return Reason(err) == "rate_limit"
}

// Reason classifies a transient error for logs and metrics. It returns ""
// for errors that are not retryable.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}

	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus[se.StatusCode]
	}
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return transientStatus[he.StatusCode]
	}
	var she *jsonrpc.HTTPError
	if errors.As(err, &she) {
		return transientStatus[she.Code]
	}
	// some providers put the HTTP status in the JSON-RPC error code
	var re *jsonrpc.RPCError
	if errors.As(err, &re) {
		return transientStatus[re.Code]
	}

	msg := strings.ToLower(err.Error())
	for _, t := range transientText {
		if strings.Contains(msg, t.needle) {
			return t.reason
		}
	}
	for _, m := range statusText.FindAllStringSubmatch(msg, -1) {
		code, _ := strconv.Atoi(m[1])
		if reason, ok := transientStatus[code]; ok {
			return reason
		}
	}
	return ""
}
