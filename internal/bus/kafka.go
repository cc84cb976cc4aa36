package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

const correlationHeader = "correlation_id"

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string // empty makes the bus publish-only
	ClientID      string
	Version       string // e.g. "2.8.0"
	Timeout       time.Duration
	TopicPrefix   string // prepended to every topic name
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = "trialrag"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// saramaConfig builds the client configuration: synchronous, fully acked
// publishes and consumers that start from the newest offset.
func (c KafkaConfig) saramaConfig() (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.ClientID = c.ClientID
	sc.Net.DialTimeout = c.Timeout
	sc.Net.ReadTimeout = c.Timeout
	sc.Net.WriteTimeout = c.Timeout

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	return sc, nil
}

// KafkaBus publishes events to Kafka and, when a consumer group is
// configured, delivers subscribed topics to local handlers.
type KafkaBus struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	client   sarama.Client
	log      *logger.Logger

	retryDelay time.Duration

	mu     sync.RWMutex
	routes map[string][]Handler
	closed bool

	done     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// NewKafkaBus connects to the brokers in cfg.
func NewKafkaBus(cfg KafkaConfig, log *logger.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}
	cfg = cfg.withDefaults()

	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	var group sarama.ConsumerGroup
	if cfg.ConsumerGroup != "" {
		if group, err = sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client); err != nil {
			_ = producer.Close()
			_ = client.Close()
			return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
		}
	}

	b := newKafkaBus(cfg, producer, group, log)
	b.client = client
	return b, nil
}

func newKafkaBus(cfg KafkaConfig, producer sarama.SyncProducer, group sarama.ConsumerGroup, log *logger.Logger) *KafkaBus {
	if log == nil {
		log = logger.Default()
	}
	done, shutdown := context.WithCancel(context.Background())
	return &KafkaBus{
		config:     cfg,
		producer:   producer,
		group:      group,
		log:        log.WithComponent("kafka"),
		retryDelay: time.Second,
		routes:     make(map[string][]Handler),
		done:       done,
		shutdown:   shutdown,
	}
}

// Topic returns the broker-side name of topic.
func (b *KafkaBus) Topic(topic string) string {
	return b.config.TopicPrefix + topic
}

// Publish sends event to topic, keyed by event ID. The run ID also travels
// as a record header.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.Topic(topic),
		Key:   sarama.StringEncoder(event.ID),
		Value: sarama.ByteEncoder(data),
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(correlationHeader),
			Value: []byte(event.CorrelationID),
		})
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}
	return nil
}

// Subscribe adds handler for topic. The first handler of a topic starts a
// consumer that runs until ctx is cancelled or the bus is closed.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	if b.group == nil {
		return errors.New(errors.CodeValidation, "kafka bus is publish-only: no consumer group configured")
	}

	first := len(b.routes[topic]) == 0
	b.routes[topic] = append(b.routes[topic], handler)
	if first {
		b.wg.Go(func() { b.consume(ctx, topic) })
	}
	return nil
}

func (b *KafkaBus) consume(ctx context.Context, topic string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.done, cancel)
	defer stop()

	claims := claimHandler{bus: b, topic: topic}
	for ctx.Err() == nil {
		err := b.group.Consume(ctx, []string{b.Topic(topic)}, claims)
		if stderrors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil && ctx.Err() == nil {
			b.log.Warn("Kafka consumer error", "topic", topic, "error", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(b.retryDelay):
		}
	}
}

// dispatch decodes msg and hands it to every handler of topic. Handler
// failures are logged and never block the partition.
func (b *KafkaBus) dispatch(ctx context.Context, topic string, msg *sarama.ConsumerMessage) {
	event, err := decodeMessage(msg)
	if err != nil {
		b.log.Warn("Dropping undecodable kafka message", "topic", topic, "offset", msg.Offset, "error", err)
		return
	}

	b.mu.RLock()
	handlers := b.routes[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.log.Warn("Event handler failed", "topic", topic, "event_id", event.ID, "error", err)
		}
	}
}

// Close stops the consumers, then releases the producer and client.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.shutdown()

	var errs []error
	if b.group != nil {
		errs = append(errs, b.group.Close())
	}
	b.wg.Wait()

	if b.producer != nil {
		errs = append(errs, b.producer.Close())
	}
	if b.client != nil && !b.client.Closed() {
		errs = append(errs, b.client.Close())
	}

	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrap(errors.CodeInternal, "closing kafka bus", err)
	}
	return nil
}

// claimHandler adapts a KafkaBus topic to sarama.ConsumerGroupHandler.
type claimHandler struct {
	bus   *KafkaBus
	topic string
}

func (claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim delivers one partition's messages until the session ends.
func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.bus.dispatch(sess.Context(), h.topic, msg)
			sess.MarkMessage(msg, "")
		}
	}
}

// decodeMessage rebuilds an event from a consumed message. The header fills
// in a correlation ID missing from the body.
func decodeMessage(msg *sarama.ConsumerMessage) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Event{}, err
	}
	if event.CorrelationID != "" {
		return event, nil
	}
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == correlationHeader {
			event.CorrelationID = string(h.Value)
			break
		}
	}
	return event, nil
}

// ParseKafkaBrokers splits a comma-separated broker list, dropping blanks.
func ParseKafkaBrokers(brokersStr string) []string {
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
