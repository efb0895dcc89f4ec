package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"brkdash/internal/events"

	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Stream configuration change events from NATS",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			natsURL, _ := cmd.Flags().GetString("nats-url")
			topic, _ := cmd.Flags().GetString("topic")
			if natsURL == "" {
				return fmt.Errorf("no NATS server configured (set --nats-url or BRK_NATS_URL)")
			}

			sub, err := events.NewNATSSubscriber(natsURL)
			if err != nil {
				return err
			}
			defer sub.Close()

			ch, cancel, err := sub.Subscribe(topic)
			if err != nil {
				return err
			}
			defer cancel()

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s on %s (Ctrl+C to stop)\n", topic, natsURL)
			return a.printEvents(cmd.Context(), cmd.OutOrStdout(), ch)
		},
	}
	cmd.Flags().String("nats-url", os.Getenv("BRK_NATS_URL"), "NATS server URL")
	cmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
	return cmd
}

// printEvents writes one line per event until ctx ends or ch closes.
func (a *app) printEvents(ctx context.Context, w io.Writer, ch <-chan events.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if a.jsonOutput {
				fmt.Fprintf(w, "{\"topic\":%q,\"event\":%s}\n", msg.Topic, compactOrQuote(msg.Data))
				continue
			}
			fmt.Fprintf(w, "%s %s %s\n",
				paint(w, ansiDim, time.Now().Format("15:04:05")),
				paint(w, ansiGreen, msg.Topic),
				string(msg.Data))
		}
	}
}

func compactOrQuote(data []byte) string {
	if json.Valid(data) {
		return string(data)
	}
	quoted, _ := json.Marshal(string(data))
	return string(quoted)
}
