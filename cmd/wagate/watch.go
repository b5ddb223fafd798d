package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alfredjeanlab/wagate/internal/client"
	"github.com/alfredjeanlab/wagate/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch <tenant>",
	Short:   "Follow a tenant's lifecycle events (qr, ready, disconnected, ...)",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useNATS, _ := cmd.Flags().GetBool("nats")
		natsURL, _ := cmd.Flags().GetString("nats-url")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if useNATS {
			if natsURL == "" {
				return fmt.Errorf("--nats requires --nats-url, WAGATE_NATS_URL or a remote with nats_url")
			}
			return watchNATS(ctx, natsURL, args[0], cmd.OutOrStdout())
		}
		return gatewayClient.StreamEvents(ctx, args[0], func(evt client.StreamEvent) error {
			return writeWatchEvent(cmd.OutOrStdout(), evt)
		})
	},
}

// watchNATS follows the tenant's lifecycle mirror on the event bus.
func watchNATS(ctx context.Context, natsURL, tenantID string, w io.Writer) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TenantTopic(tenantID))
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var l events.Lifecycle
			if err := json.Unmarshal(data, &l); err != nil {
				slog.Warn("skipping malformed event", "error", err)
				continue
			}
			if err := writeWatchEvent(w, client.StreamEvent{Name: l.Event, Data: l.Data}); err != nil {
				return err
			}
		}
	}
}

func writeWatchEvent(w io.Writer, evt client.StreamEvent) error {
	if jsonOutput {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	printStreamEvent(w, evt)
	return nil
}

func defaultNATSURL() string {
	if s := os.Getenv("WAGATE_NATS_URL"); s != "" {
		return s
	}
	return activeRemoteNATSURL()
}

func init() {
	watchCmd.Flags().Bool("nats", false, "follow the NATS event mirror instead of the server's SSE stream")
	watchCmd.Flags().String("nats-url", defaultNATSURL(), "NATS URL for --nats")
}
