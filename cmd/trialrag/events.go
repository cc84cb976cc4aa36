package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/trialmatch/trialrag/internal/bus"
)

var allTopics = []string{
	bus.TopicCorpusProgress,
	bus.TopicCorpusComplete,
	bus.TopicEvaluationGroup,
	bus.TopicEvaluationReport,
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect, replay or follow pipeline events",
		Long: `Without flags, print the events recorded in the JSONL event log.
--replay publishes the recorded events to the configured bus, and --follow
prints events from the configured bus as they arrive until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			replay, _ := cmd.Flags().GetBool("replay")
			follow, _ := cmd.Flags().GetBool("follow")
			limit, _ := cmd.Flags().GetInt("limit")
			topics, _ := cmd.Flags().GetStringSlice("topic")
			asJSON := a.format == "json"
			out := cmd.OutOrStdout()

			ctx, stop := signalContext(cmd)
			defer stop()

			if follow {
				if replay {
					return fmt.Errorf("--replay and --follow are exclusive")
				}
				if t := strings.ToLower(a.cfg.Bus.Type); t == "" || t == "memory" {
					a.log.Warn("Following the in-process bus only shows events published by this command")
				}
				b, err := a.bus()
				if err != nil {
					return err
				}
				if len(topics) == 0 {
					topics = allTopics
				}
				if err := subscribeEvents(ctx, b, topics, out, asJSON); err != nil {
					return err
				}
				a.log.Info("Following events", "topics", topics)
				<-ctx.Done()
				return nil
			}

			logPath := stringFlag(cmd, "log", a.cfg.Bus.EventLog)
			if logPath == "" {
				return fmt.Errorf("--log is required")
			}

			if replay {
				// Publishing must not append the replayed events to the log being read.
				target := a.cfg.Bus
				target.EventLog = ""
				b, err := a.busFor(target)
				if err != nil {
					return err
				}
				n, err := bus.Replay(ctx, logPath, b, topics...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, map[string]int{"replayed": n})
				}
				fmt.Fprintf(out, "Replayed %d events\n", n)
				return nil
			}

			events, err := bus.ReadEvents(logPath, 0)
			if err != nil {
				return err
			}
			events = bus.FilterTopics(events, topics)
			if limit > 0 && len(events) > limit {
				events = events[:limit]
			}
			for _, le := range events {
				if err := writeEvent(out, le, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().String("log", "", "event log path (default from config)")
	cmd.Flags().StringSlice("topic", nil, "topics to show, empty for all")
	cmd.Flags().Int("limit", 0, "print at most this many logged events")
	cmd.Flags().Bool("replay", false, "publish the logged events to the configured bus")
	cmd.Flags().Bool("follow", false, "print events from the configured bus as they arrive")

	return cmd
}

// subscribeEvents prints every event published on topics to w. Handlers may
// run concurrently, so writes are serialized.
func subscribeEvents(ctx context.Context, b bus.Bus, topics []string, w io.Writer, asJSON bool) error {
	var mu sync.Mutex
	for _, topic := range topics {
		handler := func(ctx context.Context, event bus.Event) error {
			mu.Lock()
			defer mu.Unlock()
			return writeEvent(w, bus.LoggedEvent{
				Event:     event,
				Topic:     topic,
				Timestamp: time.UnixMilli(event.Timestamp).UTC(),
			}, asJSON)
		}
		if err := b.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}

// writeEvent prints one event: a JSON line, or a single text line with the
// compact payload.
func writeEvent(w io.Writer, le bus.LoggedEvent, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(le)
	}
	payload, err := json.Marshal(le.Event.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s %s run=%s id=%s %s\n",
		le.Timestamp.UTC().Format(time.RFC3339), le.Topic, le.Event.CorrelationID, le.Event.ID, payload)
	return err
}
