package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/presale/service/balance"
	natspkg "github.com/brojonat/presale/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to presale events on JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to purchase or raised-amount events",
		ArgsUsage: "<purchases|raised>",
		Description: `Subscribe to real-time presale events published to NATS JetStream.

Purchases are published to presale.purchases.{network} and balance polls to
presale.raised. Use --match to only print events a jq expression accepts.

Example:
  presale nats subscribe --network eth purchases
  presale --json nats subscribe --match '.token_amount > 10000' purchases
  presale nats subscribe --durable raised`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "network",
				Usage: "Only purchases on this network (purchases only)",
			},
			&cli.StringFlag{
				Name:  "match",
				Usage: "jq expression an event must satisfy to be printed",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "presale-cli",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: purchases or raised")
			}

			var subject string
			switch kind := c.Args().First(); kind {
			case "purchases":
				subject = natspkg.PurchaseSubject("*")
				if n := c.String("network"); n != "" {
					subject = natspkg.PurchaseSubject(n)
				}
			case "raised":
				subject = natspkg.RaisedSubject
			default:
				return fmt.Errorf("unknown event kind %q: want purchases or raised", kind)
			}

			var match *gojq.Code
			if expr := c.String("match"); expr != "" {
				code, err := compileJQ(expr)
				if err != nil {
					return err
				}
				match = code
			}

			return streamEvents(streamOptions{
				natsURL:      c.String("nats-url"),
				subject:      subject,
				durable:      c.Bool("durable"),
				consumerName: c.String("consumer-name"),
				match:        match,
				jsonOutput:   jsonOutput(c),
			})
		},
	}
}

type streamOptions struct {
	natsURL      string
	subject      string
	durable      bool
	consumerName string
	match        *gojq.Code
	jsonOutput   bool
}

func streamEvents(opts streamOptions) error {
	// Connect to NATS
	nc, err := nats.Connect(opts.natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !opts.jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", opts.subject)
		fmt.Printf("   NATS: %s\n", opts.natsURL)
		if opts.durable {
			fmt.Printf("   Consumer: %s (durable)\n", opts.consumerName)
		}
		fmt.Printf("\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	// Create consumer config
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: opts.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}

	if opts.durable {
		consumerConfig.Durable = opts.consumerName
		consumerConfig.Name = opts.consumerName
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}

	// Create or update consumer
	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Receive messages
	msgChan := make(chan jetstream.Msg, 10)

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			if opts.match != nil {
				ok, err := matchesJQ(opts.match, msg.Data())
				if err != nil && !opts.jsonOutput {
					fmt.Fprintf(os.Stderr, "Error matching event: %v\n", err)
				}
				if !ok {
					msg.Ack()
					continue
				}
			}

			count++
			if err := printEvent(msg.Subject(), msg.Data(), count, opts.jsonOutput); err != nil && !opts.jsonOutput {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
			}
			msg.Ack()

		case <-sigChan:
			if !opts.jsonOutput {
				fmt.Printf("\n\n✅ Received %d events\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

// printEvent prints one event from subject, raw in JSON mode.
func printEvent(subject string, data []byte, n int, jsonOut bool) error {
	if jsonOut {
		fmt.Println(string(data))
		return nil
	}

	if subject == natspkg.RaisedSubject {
		var event natspkg.RaisedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		printRaised(&event)
		return nil
	}

	var event natspkg.PurchaseEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	printPurchase(&event, n)
	return nil
}

func printPurchase(event *natspkg.PurchaseEvent, n int) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Purchase #%d\n", n)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Tx Hash:      %s\n", event.TxHash)
	fmt.Printf("Network:      %s (chain %s)\n", event.Network, event.ChainID)
	fmt.Printf("From:         %s\n", event.FromAddress)
	fmt.Printf("Amount:       %s\n", event.NativeAmount)
	fmt.Printf("Tokens:       %d\n", event.TokenAmount)
	if event.Inviter != "" {
		fmt.Printf("Inviter:      %s\n", event.Inviter)
	}
	if event.ExplorerURL != "" {
		fmt.Printf("Explorer:     %s\n", event.ExplorerURL)
	}
	fmt.Printf("Created:      %s\n", event.CreatedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

func printRaised(event *natspkg.RaisedEvent) {
	env := "mainnet"
	if event.Testnet {
		env = "testnet"
	}
	fmt.Printf("Raised (%s) at %s\n", env, event.PolledAt.Format(time.RFC3339))
	for _, b := range event.Balances {
		display := "(failed)"
		if b.Balance != nil {
			if d, err := decimal.NewFromString(*b.Balance); err == nil {
				display = balance.FormatDisplay(d)
			}
		}
		fmt.Printf("  %-4s %-10s %s\n", b.Asset, b.Network, display)
	}
	fmt.Printf("\n")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the " + natspkg.StreamName + " JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  presale nats inspect-stream`,
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			// Get stream info
			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput(c) {
				return outputJSON(c, info)
			}

			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("─────────────────────────────────────────────────────\n")
			fmt.Printf("Description:  %s\n", info.Config.Description)
			fmt.Printf("Subjects:     %s\n", strings.Join(info.Config.Subjects, ", "))
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			fmt.Printf("Storage:      %s\n", info.Config.Storage)
			fmt.Printf("\n")

			return nil
		},
	}
}
