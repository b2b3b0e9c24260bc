package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

// interruptContext is cancelled on Ctrl-C or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func streamPurchasesCommand() *cli.Command {
	return &cli.Command{
		Name:      "purchases",
		Usage:     "Stream purchases via SSE (HTTP)",
		ArgsUsage: "[network]",
		Action: func(c *cli.Context) error {
			serverURL := strings.TrimRight(c.String("server-url"), "/")
			network := strings.ToUpper(c.Args().First())
			jsonOut := jsonOutput(c)

			// Build SSE endpoint URL
			endpoint := serverURL + "/api/v1/stream/purchases"
			if network != "" {
				endpoint += "/" + url.PathEscape(network)
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()

			// Create HTTP request
			req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")

			// No timeout for streaming
			resp, err := (&http.Client{}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			if !jsonOut {
				fmt.Fprintf(os.Stderr, "Streaming purchases... (Ctrl+C to stop)\n\n")
			}

			count := 0
			err = readSSE(resp.Body, func(event, data string) error {
				return handleSSEEvent(event, data, &count, jsonOut)
			})
			if err != nil {
				if ctx.Err() != nil {
					// Context cancelled (user interrupt)
					if !jsonOut {
						fmt.Fprintf(os.Stderr, "\nDisconnected\n")
					}
					return nil
				}
				return fmt.Errorf("error reading SSE stream: %w", err)
			}
			return nil
		},
	}
}

// readSSE splits an event stream into (event, data) pairs. Comment lines
// such as keepalives are skipped. A handler error is reported and does not
// stop the stream.
func readSSE(r io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var currentEvent, currentData string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if currentEvent != "" && currentData != "" {
				if err := handle(currentEvent, currentData); err != nil {
					fmt.Fprintf(os.Stderr, "Error handling event: %v\n", err)
				}
			}
			currentEvent = ""
			currentData = ""
			continue
		}

		// Parse event line
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			currentData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return scanner.Err()
}

func handleSSEEvent(eventType, data string, count *int, jsonOut bool) error {
	switch eventType {
	case "connected":
		if !jsonOut {
			var info map[string]interface{}
			if err := json.Unmarshal([]byte(data), &info); err != nil {
				return err
			}
			if network, ok := info["network"].(string); ok {
				fmt.Fprintf(os.Stderr, "✓ Subscribed to: %s\n\n", network)
			}
		}
		return nil

	case "purchase":
		var event natspkg.PurchaseEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return err
		}
		*count++

		if jsonOut {
			fmt.Println(data)
		} else {
			printPurchase(&event, *count)
		}
		return nil

	case "error":
		var errInfo map[string]interface{}
		if err := json.Unmarshal([]byte(data), &errInfo); err != nil {
			return err
		}
		return fmt.Errorf("server error: %v", errInfo["error"])

	default:
		// Unknown event type, ignore
		return nil
	}
}

// raisedFrame is one message of the raised-amount websocket.
type raisedFrame struct {
	Type     string `json:"type"`
	Testnet  bool   `json:"testnet"`
	Balances []struct {
		Asset   string  `json:"asset"`
		Network string  `json:"network"`
		Address string  `json:"address"`
		Balance *string `json:"balance"`
		Display string  `json:"display"`
	} `json:"balances"`
	PolledAt time.Time `json:"polled_at"`
	Source   string    `json:"source"`
}

// websocketURL maps an http(s) API base URL to its ws(s) form.
func websocketURL(serverURL, path string, testnet bool) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("testnet", fmt.Sprintf("%t", testnet))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func streamRaisedCommand() *cli.Command {
	return &cli.Command{
		Name:  "raised",
		Usage: "Stream raised amounts via websocket",
		Action: func(c *cli.Context) error {
			testnet := c.Bool("testnet")
			jsonOut := jsonOutput(c)

			wsURL, err := websocketURL(c.String("server-url"), "/api/v1/stream/raised", testnet)
			if err != nil {
				return err
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()

			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("failed to connect to %s: status %d", wsURL, resp.StatusCode)
				}
				return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
			}
			defer conn.Close()

			// unblock ReadMessage on interrupt
			go func() {
				<-ctx.Done()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
			}()

			if !jsonOut {
				fmt.Fprintf(os.Stderr, "Streaming raised amounts... (Ctrl+C to stop)\n\n")
			}

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						if !jsonOut {
							fmt.Fprintf(os.Stderr, "\nDisconnected\n")
						}
						return nil
					}
					return fmt.Errorf("error reading websocket: %w", err)
				}

				if jsonOut {
					fmt.Println(string(data))
					continue
				}

				var frame raisedFrame
				if err := json.Unmarshal(data, &frame); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing message: %v\n", err)
					continue
				}
				printRaisedFrame(&frame)
			}
		},
	}
}

func printRaisedFrame(frame *raisedFrame) {
	env := "mainnet"
	if frame.Testnet {
		env = "testnet"
	}
	fmt.Printf("Raised (%s) at %s\n", env, frame.PolledAt.Format(time.RFC3339))
	for _, b := range frame.Balances {
		display := b.Display
		if b.Balance == nil {
			display = "(failed)"
		}
		fmt.Printf("  %-4s %-10s %s\n", b.Asset, b.Network, display)
	}
	fmt.Printf("\n")
}
