package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkden-lab/eventbus/internal/config"
	"github.com/darkden-lab/eventbus/internal/logging"
)

func testConfig() *config.Config {
	return &config.Config{
		KafkaPort:          "9092",
		AutoCommitInterval: time.Second,
		PollTimeout:        time.Second,
		MaxPollRecords:     100,
	}
}

func TestNewBackend_InMemoryFallback(t *testing.T) {
	backend, err := NewBackend(testConfig(), "events", logging.Discard())
	require.NoError(t, err)
	defer backend.Close()

	require.NotNil(t, backend.Memory)
	assert.Same(t, backend.Memory, backend.Connector)

	p, err := backend.Pollers("group")
	require.NoError(t, err)
	assert.IsType(t, &memoryPoller{}, p)
}

func TestNewBackend_Kafka(t *testing.T) {
	cfg := testConfig()
	cfg.KafkaHost = "localhost"

	backend, err := NewBackend(cfg, "events", logging.Discard())
	require.NoError(t, err)
	defer backend.Close()

	assert.Nil(t, backend.Memory)
	assert.IsType(t, &KafkaConnector{}, backend.Connector)

	p, err := backend.Pollers("orders.subscriptions")
	require.NoError(t, err)
	defer p.Close()

	kp, ok := p.(*KafkaPoller)
	require.True(t, ok)
	assert.Equal(t, "orders.subscriptions", kp.config.GroupID)
	assert.Equal(t, "events", kp.config.Topic)
	assert.Equal(t, 100, kp.config.MaxBatch)
}
