package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trialmatch/trialrag/internal/bus"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

func writeEventLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el, err := bus.NewEventLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer el.Close()

	for _, e := range []struct {
		topic string
		event bus.Event
	}{
		{bus.TopicCorpusProgress, bus.NewEvent(bus.TopicCorpusProgress, "corpus", "run-1", map[string]int{"current": 1})},
		{bus.TopicCorpusProgress, bus.NewEvent(bus.TopicCorpusProgress, "corpus", "run-1", map[string]int{"current": 2})},
		{bus.TopicCorpusComplete, bus.NewEvent(bus.TopicCorpusComplete, "corpus", "run-1", map[string]int{"inserted": 2})},
	} {
		if err := el.Log(e.topic, e.event); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestEvents_List(t *testing.T) {
	path := writeEventLog(t)

	out, err := run(t, "events", "--log", path)
	if err != nil {
		t.Fatalf("events error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[2], " corpus.complete run=run-1 ") || !strings.HasSuffix(lines[2], `{"inserted":2}`) {
		t.Errorf("last line = %q", lines[2])
	}
}

func TestEvents_TopicAndLimit(t *testing.T) {
	path := writeEventLog(t)

	out, err := run(t, "events", "--log", path, "--topic", bus.TopicCorpusProgress, "--limit", "1", "--format", "json")
	if err != nil {
		t.Fatalf("events error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var le bus.LoggedEvent
	if err := json.Unmarshal([]byte(lines[0]), &le); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if le.Topic != bus.TopicCorpusProgress || le.Event.CorrelationID != "run-1" {
		t.Errorf("event = %+v", le)
	}
}

func TestEvents_Replay(t *testing.T) {
	path := writeEventLog(t)

	out, err := run(t, "events", "--replay", "--log", path, "--topic", bus.TopicCorpusComplete)
	if err != nil {
		t.Fatalf("events --replay error = %v", err)
	}
	if out != "Replayed 1 events\n" {
		t.Errorf("output = %q", out)
	}
}

func TestEvents_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no log", []string{"events"}, "--log is required"},
		{"exclusive modes", []string{"events", "--replay", "--follow"}, "exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSubscribeEvents(t *testing.T) {
	b := bus.NewMemoryBus(logger.Discard())
	var out bytes.Buffer

	if err := subscribeEvents(context.Background(), b, []string{bus.TopicEvaluationReport}, &out, false); err != nil {
		t.Fatalf("subscribeEvents() error = %v", err)
	}

	ctx := context.Background()
	_ = b.Publish(ctx, bus.TopicEvaluationReport, bus.NewEvent(bus.TopicEvaluationReport, "evaluation", "run-2", map[string]float64{"macro_f1": 0.5}))
	_ = b.Publish(ctx, bus.TopicEvaluationGroup, bus.NewEvent(bus.TopicEvaluationGroup, "evaluation", "run-2", nil))

	// Close waits for in-flight handlers.
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("output = %q", got)
	}
	if !strings.Contains(got, " evaluation.report run=run-2 ") || !strings.Contains(got, `{"macro_f1":0.5}`) {
		t.Errorf("output = %q", got)
	}
}
