package broker

import (
	"context"
	"sync"
	"time"
)

// InMemoryBroker is a single-process broker: one append-only log per topic
// and one committed offset per (group, topic). It is suitable for
// development, single-node deployments and tests.
type InMemoryBroker struct {
	mu      sync.Mutex
	logs    map[string][]Record
	offsets map[groupTopic]int
	notify  chan struct{} // closed and replaced on every append
	closed  bool
}

type groupTopic struct {
	group string
	topic string
}

// NewInMemoryBroker creates an empty InMemoryBroker.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		logs:    make(map[string][]Record),
		offsets: make(map[groupTopic]int),
		notify:  make(chan struct{}),
	}
}

// Open returns a connection that appends to the broker's logs.
func (b *InMemoryBroker) Open(_ context.Context) (Publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &memoryPublisher{broker: b}, nil
}

// Poller returns a Poller reading topic on behalf of groupID. Pollers of the
// same group share the committed offset.
func (b *InMemoryBroker) Poller(topic, groupID string, maxBatch int) Poller {
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &memoryPoller{broker: b, key: groupTopic{group: groupID, topic: topic}, maxBatch: maxBatch}
}

// Len returns the number of records appended to topic.
func (b *InMemoryBroker) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs[topic])
}

// Close wakes up blocked pollers and rejects further use.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.notify)
	return nil
}

func (b *InMemoryBroker) append(topic string, payload []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	var hdrs map[string]string
	if len(headers) > 0 {
		hdrs = make(map[string]string, len(headers))
		for k, v := range headers {
			hdrs[k] = v
		}
	}

	log := b.logs[topic]
	b.logs[topic] = append(log, Record{
		Topic:   topic,
		Offset:  int64(len(log)),
		Value:   append([]byte(nil), payload...),
		Headers: hdrs,
		Time:    time.Now().UTC(),
	})

	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// take returns up to max uncommitted records and commits them. It returns the
// current notify channel so callers can wait for the next append.
func (b *InMemoryBroker) take(key groupTopic, max int) ([]Record, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	log := b.logs[key.topic]
	start := b.offsets[key]
	if start >= len(log) {
		return nil, b.notify, nil
	}
	end := min(start+max, len(log))

	out := make([]Record, end-start)
	copy(out, log[start:end])
	b.offsets[key] = end
	return out, b.notify, nil
}

type memoryPublisher struct {
	broker *InMemoryBroker
	mu     sync.Mutex
	closed bool
}

func (p *memoryPublisher) Publish(_ context.Context, topic string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return p.broker.append(topic, payload, headers)
}

func (p *memoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type memoryPoller struct {
	broker   *InMemoryBroker
	key      groupTopic
	maxBatch int
}

func (p *memoryPoller) Poll(ctx context.Context, timeout time.Duration) ([]Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		records, wait, err := p.broker.take(p.key, p.maxBatch)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}

		select {
		case <-wait:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close is a no-op; the broker owns the logs.
func (p *memoryPoller) Close() error { return nil }
