package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		`event: connected`,
		`data: {"network":"ETH"}`,
		``,
		`: keepalive`,
		``,
		`event: purchase`,
		`data: {"tx_hash":"0xfeed"}`,
		``,
		`data: orphan data without an event`,
		``,
	}, "\n")

	type event struct{ name, data string }
	var got []event
	err := readSSE(strings.NewReader(stream), func(name, data string) error {
		got = append(got, event{name, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []event{
		{"connected", `{"network":"ETH"}`},
		{"purchase", `{"tx_hash":"0xfeed"}`},
	}, got)
}

func TestHandleSSEEvent(t *testing.T) {
	count := 0
	stdout, _, err := captureOutput(t, func() error {
		return handleSSEEvent("purchase", `{"tx_hash":"0xfeed","network":"ETH","token_amount":9000}`, &count, true)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Contains(t, stdout, `"tx_hash":"0xfeed"`)

	err = handleSSEEvent("error", `{"error":"stream closed"}`, &count, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream closed")

	assert.NoError(t, handleSSEEvent("mystery", `{}`, &count, true))
	assert.Error(t, handleSSEEvent("purchase", `not-json`, &count, true))
	assert.Equal(t, 1, count)
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server  string
		testnet bool
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", false, "ws://localhost:8080/api/v1/stream/raised?testnet=false", false},
		{"https://presale.example.com/", true, "wss://presale.example.com/api/v1/stream/raised?testnet=true", false},
		{"ws://10.0.0.1:8080", false, "ws://10.0.0.1:8080/api/v1/stream/raised?testnet=false", false},
		{"ftp://example.com", false, "", true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.server, "/api/v1/stream/raised", tt.testnet)
		if tt.wantErr {
			assert.Error(t, err, tt.server)
			continue
		}
		require.NoError(t, err, tt.server)
		assert.Equal(t, tt.want, got)
	}
}

func TestStreamRaisedCommand(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/raised", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("testnet"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"raised","testnet":true,"polled_at":"2025-06-02T00:00:00Z","source":"stream",`+
				`"balances":[{"asset":"ETH","network":"ETH_TEST","address":"0xabc","balance":"1.5","display":"1.5"},`+
				`{"asset":"SOL","network":"SOL_TEST","address":"So1","balance":null,"display":"0"}]}`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	defer server.Close()

	stdout, _, err := captureOutput(t, func() error {
		return newApp().Run([]string{"presale", "--testnet", "--server-url", server.URL, "stream", "raised"})
	})
	require.NoError(t, err)
	assert.Contains(t, stdout, "Raised (testnet) at 2025-06-02T00:00:00Z")
	assert.Contains(t, stdout, "ETH_TEST")
	assert.Contains(t, stdout, "1.5")
	assert.Contains(t, stdout, "(failed)")
}
