// Package bus publishes pipeline progress and report events.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "corpus.progress").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links events of the same run.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh ID and the current time. The event
// type is the topic it will be published on.
func NewEvent(topic, source, runID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          topic,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: runID,
		Payload:       payload,
	}
}

// NewRunID returns an identifier shared by all events of one run.
func NewRunID() string {
	return uuid.NewString()
}

// Topics for pipeline events.
const (
	// Corpus build topics.
	TopicCorpusProgress = "corpus.progress"
	TopicCorpusComplete = "corpus.complete"

	// Evaluation topics.
	TopicEvaluationGroup  = "evaluation.group"
	TopicEvaluationReport = "evaluation.report"
)

// Nop is a bus that drops every event.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(ctx context.Context, topic string, event Event) error { return nil }

// Subscribe registers nothing.
func (Nop) Subscribe(ctx context.Context, topic string, handler Handler) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
