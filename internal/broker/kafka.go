package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	defaultMaxBatch       = 500
	defaultCommitInterval = time.Second
)

// KafkaConnector opens a fresh kafka.Writer for every connection. Writers are
// never shared between calls.
type KafkaConnector struct {
	brokers []string
}

// NewKafkaConnector creates a KafkaConnector for the given bootstrap addresses.
func NewKafkaConnector(brokers []string) (*KafkaConnector, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	return &KafkaConnector{brokers: brokers}, nil
}

// Open builds a writer that waits for all in-sync replicas to acknowledge
// each write.
func (c *KafkaConnector) Open(_ context.Context) (Publisher, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(c.brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
	return &kafkaPublisher{writer: writer}, nil
}

type kafkaPublisher struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(uuid.New().String()),
		Value: payload,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// KafkaPollerConfig configures a KafkaPoller.
type KafkaPollerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// CommitInterval is the period of the reader's automatic offset commit.
	CommitInterval time.Duration

	// MaxBatch caps the records returned by one Poll.
	MaxBatch int

	// Linger is how long Poll keeps collecting after the first record
	// arrived. Zero returns as soon as one record has been read.
	Linger time.Duration
}

// KafkaPoller implements Poller with a consumer-group kafka.Reader.
type KafkaPoller struct {
	config KafkaPollerConfig
	reader *kafka.Reader
	mu     sync.Mutex
	closed bool
}

// NewKafkaPoller creates the group reader. No connection is made until the
// first Poll.
func NewKafkaPoller(config KafkaPollerConfig) (*KafkaPoller, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("consumer group id is required")
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = defaultMaxBatch
	}
	if config.CommitInterval <= 0 {
		config.CommitInterval = defaultCommitInterval
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: config.CommitInterval,
		StartOffset:    kafka.FirstOffset,
	})

	return &KafkaPoller{config: config, reader: reader}, nil
}

// Poll reads up to MaxBatch records. It blocks for at most timeout waiting
// for the first one.
func (p *KafkaPoller) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	readCtx := pollCtx
	var records []Record
	for len(records) < p.config.MaxBatch {
		msg, err := p.reader.ReadMessage(readCtx)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return records, nil
			}
			return records, fmt.Errorf("read from kafka: %w", err)
		}

		records = append(records, recordFromMessage(msg))

		if len(records) == 1 {
			if p.config.Linger <= 0 {
				return records, nil
			}
			lingerCtx, lingerCancel := context.WithTimeout(pollCtx, p.config.Linger)
			defer lingerCancel()
			readCtx = lingerCtx
		}
	}
	return records, nil
}

// Close leaves the consumer group and releases the reader.
func (p *KafkaPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.reader.Close()
}

func recordFromMessage(msg kafka.Message) Record {
	var headers map[string]string
	if len(msg.Headers) > 0 {
		headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
	}
	return Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Time:      msg.Time,
	}
}
