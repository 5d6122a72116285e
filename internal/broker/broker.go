package broker

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed broker, connection or poller.
var ErrClosed = errors.New("broker is closed")

// Record is one message read from a topic.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// Publisher is a single-use connection to the broker. Callers must Close it
// once they are done publishing.
type Publisher interface {
	// Publish appends payload to topic. Delivery is at-least-once; retries,
	// if any, are the implementation's business.
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error

	Close() error
}

// Connector opens publisher connections.
type Connector interface {
	Open(ctx context.Context) (Publisher, error)
}

// Poller reads records for one consumer group. Offsets are committed by the
// implementation without involvement from the caller.
type Poller interface {
	// Poll blocks until at least one record is available or timeout
	// elapses. A timeout is not an error: it yields an empty slice.
	Poll(ctx context.Context, timeout time.Duration) ([]Record, error)

	Close() error
}

// PollerFactory creates a Poller bound to the given consumer group.
type PollerFactory func(groupID string) (Poller, error)
