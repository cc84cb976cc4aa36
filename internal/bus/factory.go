package bus

import (
	"fmt"
	"strings"

	"github.com/trialmatch/trialrag/internal/config"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// NewBus creates a Bus from configuration. When an event log is configured
// every published event is also appended to it.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var b Bus

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "none":
		b = Nop{}

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: cfg.KafkaGroup,
			ClientID:      "trialrag",
			TopicPrefix:   cfg.TopicPrefix,
		}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog != "" {
		el, err := NewEventLogger(cfg.EventLog)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b = NewLoggedBus(b, el, log)
	}

	return b, nil
}
