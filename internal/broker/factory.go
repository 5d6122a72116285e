package broker

import (
	"log/slog"

	"github.com/darkden-lab/eventbus/internal/config"
)

// Backend bundles the publishing and polling sides of one broker.
type Backend struct {
	Connector Connector
	Pollers   PollerFactory

	// Memory is set when the in-memory broker was selected.
	Memory *InMemoryBroker
}

// Close releases the in-memory broker, if any. Kafka connections are owned
// by the publishers and pollers handed out.
func (b *Backend) Close() error {
	if b.Memory != nil {
		return b.Memory.Close()
	}
	return nil
}

// NewBackend selects a broker from the configuration. If Kafka addresses are
// configured it returns Kafka-backed connectors and pollers; otherwise it
// falls back to an in-memory broker suitable for single-node deployments.
func NewBackend(cfg *config.Config, topic string, logger *slog.Logger) (*Backend, error) {
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		logger.Info("using Kafka broker",
			"event", "broker_selected",
			"module", "internal/broker",
			"brokers", brokers,
			"topic", topic,
		)
		connector, err := NewKafkaConnector(brokers)
		if err != nil {
			return nil, err
		}
		pollers := func(groupID string) (Poller, error) {
			return NewKafkaPoller(KafkaPollerConfig{
				Brokers:        brokers,
				Topic:          topic,
				GroupID:        groupID,
				CommitInterval: cfg.AutoCommitInterval,
				MaxBatch:       cfg.MaxPollRecords,
				Linger:         cfg.PollLinger,
			})
		}
		return &Backend{Connector: connector, Pollers: pollers}, nil
	}

	logger.Info("using in-memory broker (KAFKA_HOST and KAFKA_BROKERS not set)",
		"event", "broker_selected",
		"module", "internal/broker",
		"topic", topic,
	)
	mem := NewInMemoryBroker()
	pollers := func(groupID string) (Poller, error) {
		return mem.Poller(topic, groupID, cfg.MaxPollRecords), nil
	}
	return &Backend{Connector: mem, Pollers: pollers, Memory: mem}, nil
}
