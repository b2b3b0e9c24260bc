package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/presale/service/metrics"
	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingPeriod   = wsPongTimeout * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API is public and read-only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// raisedMessage is one frame on the raised-amount websocket.
type raisedMessage struct {
	Type string `json:"type"`
	raisedResponse
}

// handleStreamRaised pushes every raised-amount snapshot of one environment
// over a websocket. The latest snapshot is sent on connect.
// GET /api/v1/stream/raised?testnet={bool}
func handleStreamRaised(events Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testnet, err := parseTestnet(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client
			logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		m.RecordWSConnectionChange(1)
		defer m.RecordWSConnectionChange(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		msgs, err := events.Subscribe(ctx, natspkg.RaisedSubject, true)
		if err != nil {
			logger.Error("failed to subscribe", "subject", natspkg.RaisedSubject, "error", err)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event stream unavailable"),
				time.Now().Add(wsWriteTimeout))
			return
		}

		logger.Debug("websocket client connected", "testnet", testnet, "remote_addr", r.RemoteAddr)

		// The read pump only services control frames. A read error means
		// the client went away.
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket client disconnected", "remote_addr", r.RemoteAddr)
				return

			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case data := <-msgs:
				var event natspkg.RaisedEvent
				if err := json.Unmarshal(data, &event); err != nil {
					logger.Warn("failed to unmarshal raised event", "error", err)
					continue
				}
				if event.Testnet != testnet {
					continue
				}

				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(raisedMessage{Type: "raised", raisedResponse: raisedFromEvent(&event)}); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
				m.RecordWSMessageSent("raised")
			}
		}
	})
}

func raisedFromEvent(event *natspkg.RaisedEvent) raisedResponse {
	resp := raisedResponse{
		Testnet:  event.Testnet,
		PolledAt: event.PolledAt,
		Source:   "stream",
		Balances: make([]raisedEntry, 0, len(event.Balances)),
	}
	for _, b := range event.Balances {
		resp.Balances = append(resp.Balances, raisedEntry{
			Asset:   b.Asset,
			Network: b.Network,
			Address: b.Address,
			Balance: b.Balance,
			Display: displayBalance(b.Balance),
		})
	}
	return resp
}
