package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 59*time.Second, cfg.PollTimeout)
	assert.Equal(t, time.Second, cfg.AutoCommitInterval)
	assert.Equal(t, 500, cfg.MaxPollRecords)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 1024, cfg.QueueSize)
	assert.Zero(t, cfg.HandlerTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.OTelEnabled)
}

func TestParseFromEnv(t *testing.T) {
	t.Setenv("KAFKA_HOST", "kafka.internal")
	t.Setenv("KAFKA_PORT", "19092")
	t.Setenv("EVENTBUS_POLL_TIMEOUT", "5s")
	t.Setenv("EVENTBUS_WORKERS", "4")
	t.Setenv("EVENTBUS_HANDLER_TIMEOUT", "30s")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollTimeout)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, []string{"kafka.internal:19092"}, cfg.Brokers())
}

func TestParseInvalid(t *testing.T) {
	t.Setenv("EVENTBUS_WORKERS", "0")
	t.Setenv("EVENTBUS_POLL_TIMEOUT", "-1s")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENTBUS_WORKERS")
	assert.Contains(t, err.Error(), "EVENTBUS_POLL_TIMEOUT")
}

func TestParseMalformedValue(t *testing.T) {
	t.Setenv("EVENTBUS_QUEUE_SIZE", "lots")

	_, err := Parse()
	assert.Error(t, err)
}

func TestBrokers(t *testing.T) {
	cfg := &Config{KafkaPort: "9092"}
	assert.Empty(t, cfg.Brokers(), "no host selects the in-memory broker")

	cfg.KafkaHost = "localhost"
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers())

	cfg.KafkaBrokers = []string{" k1:9092", "", "k2:9092 "}
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
}
