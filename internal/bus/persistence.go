package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// LoggedEvent represents an event that has been logged to disk.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger appends events to a JSON lines file so a run can be audited
// or replayed after the fact.
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewEventLogger opens (or creates) the log at logPath in append mode.
func NewEventLogger(logPath string) (*EventLogger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLogger{
		logPath: logPath,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *EventLogger) Log(topic string, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeInternal, "event logger closed")
	}

	if err := l.encoder.Encode(LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// ReadEvents reads the logged events in file order. If limit > 0, at most
// that many are returned.
func ReadEvents(logPath string, limit int) ([]LoggedEvent, error) {
	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var events []LoggedEvent
	scanner := bufio.NewScanner(file)

	// Report payloads carry every group, so lines can be large
	const maxScanTokenSize = 16 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		var loggedEvent LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &loggedEvent); err != nil {
			// Skip malformed lines
			continue
		}
		events = append(events, loggedEvent)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	return events, nil
}

// FilterTopics keeps the events logged on one of topics, preserving order.
// An empty topic list keeps everything.
func FilterTopics(events []LoggedEvent, topics []string) []LoggedEvent {
	if len(topics) == 0 {
		return events
	}
	want := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		want[t] = struct{}{}
	}
	out := make([]LoggedEvent, 0, len(events))
	for _, le := range events {
		if _, ok := want[le.Topic]; ok {
			out = append(out, le)
		}
	}
	return out
}

// Replay publishes the events logged at logPath to b in order, restricted to
// topics when any are given. It returns the number of events published.
func Replay(ctx context.Context, logPath string, b Bus, topics ...string) (int, error) {
	events, err := ReadEvents(logPath, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, le := range FilterTopics(events, topics) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := b.Publish(ctx, le.Topic, le.Event); err != nil {
			return n, fmt.Errorf("failed to replay event %s: %w", le.Event.ID, err)
		}
		n++
	}
	return n, nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.encoder = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// LoggedBus wraps another Bus and logs every published event to disk.
type LoggedBus struct {
	inner       Bus
	eventLogger *EventLogger
	log         *logger.Logger
}

// NewLoggedBus creates a bus that logs events before publishing them to inner.
func NewLoggedBus(inner Bus, eventLogger *EventLogger, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{
		inner:       inner,
		eventLogger: eventLogger,
		log:         log,
	}
}

// Publish logs the event and then delegates to the inner bus.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.eventLogger.Log(topic, event); err != nil {
		b.log.Warn("Failed to log event to disk",
			"topic", topic,
			"error", err.Error(),
		)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus, then the event log.
func (b *LoggedBus) Close() error {
	err := b.inner.Close()
	if logErr := b.eventLogger.Close(); logErr != nil {
		b.log.Warn("Failed to close event logger", "error", logErr.Error())
	}
	return err
}
