package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/presale/service/chains"
	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber delivers the payloads published on a subject until ctx is done.
// When last is set the most recent message per subject is replayed first.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, last bool) (<-chan []byte, error)
}

// EventStream reads presale events back out of the JetStream stream.
type EventStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewEventStream connects to NATS for streaming events to API clients.
func NewEventStream(natsURL string, logger *slog.Logger) (*EventStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("presale-event-stream"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("event stream initialized", "nats_url", natsURL)

	return &EventStream{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Subscribe creates an ephemeral consumer filtered on subject.
func (e *EventStream) Subscribe(ctx context.Context, subject string, last bool) (<-chan []byte, error) {
	policy := jetstream.DeliverNewPolicy
	if last {
		policy = jetstream.DeliverLastPerSubjectPolicy
	}

	cons, err := e.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     policy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", subject, err)
	}

	out := make(chan []byte, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case out <- msg.Data():
		case <-ctx.Done():
		}
		msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return out, nil
}

// Close closes the NATS connection.
func (e *EventStream) Close() error {
	if e.nc != nil {
		e.nc.Close()
		e.logger.Info("event stream closed")
	}
	return nil
}

// handleStreamPurchases streams purchases over Server-Sent Events.
// Without a network path parameter purchases on every network are streamed.
// GET /api/v1/stream/purchases/{network}
func handleStreamPurchases(events Subscriber, registry *chains.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		network := strings.ToUpper(r.PathValue("network"))

		subject := natspkg.PurchaseSubject("*")
		desc := "all networks"
		if network != "" {
			subject = natspkg.PurchaseSubject(network)
			desc = network
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		msgs, err := events.Subscribe(r.Context(), subject, false)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe",
				"subject", subject,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		logger.DebugContext(r.Context(), "SSE client connected",
			"network", desc,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"network\":%q}\n\n", desc)
		flusher.Flush()

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case data := <-msgs:
				var event natspkg.PurchaseEvent
				if err := json.Unmarshal(data, &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event", "error", err)
					continue
				}
				if event.ExplorerURL == "" {
					if n, ok := registry.Lookup(chains.Network(event.Network)); ok {
						event.ExplorerURL = n.TxURL(event.TxHash)
					}
				}

				payload, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: purchase\ndata: %s\n\n", payload)
				flusher.Flush()

				logger.DebugContext(r.Context(), "sent purchase event",
					"network", event.Network,
					"tx_hash", event.TxHash,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"network", desc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
