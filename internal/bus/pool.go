package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/darkden-lab/eventbus/internal/logging"
	"github.com/darkden-lab/eventbus/internal/telemetry"
)

const (
	DefaultWorkers   = 16
	DefaultQueueSize = 1024
)

var (
	ErrPoolClosed    = errors.New("worker pool is closed")
	ErrPoolSaturated = errors.New("worker pool queue is full")
)

// Executor runs invocations without blocking the caller.
type Executor interface {
	Submit(inv *Invocation) error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int

	// HandlerTimeout bounds the context given to each subscriber. Zero
	// means no deadline.
	HandlerTimeout time.Duration

	Logger *slog.Logger

	// OnError, if set, is called from the worker after a subscriber failed.
	OnError func(inv *Invocation, err error)
}

// Pool is a fixed set of workers consuming a bounded invocation queue.
// Subscriber failures, panics included, are contained in the worker that
// ran them.
type Pool struct {
	config PoolConfig
	logger *slog.Logger
	tracer trace.Tracer

	mu     sync.RWMutex
	closed bool
	queue  chan *Invocation
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates and starts a Pool. Call Close to stop it.
func NewPool(config PoolConfig) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: config,
		logger: logging.OrDefault(config.Logger),
		tracer: otel.Tracer(tracerName),
		queue:  make(chan *Invocation, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues inv. It never blocks: a full queue yields ErrPoolSaturated.
func (p *Pool) Submit(inv *Invocation) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- inv:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting invocations and lets the workers drain the queue
// until ctx is done. Running subscribers then see their context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	defer p.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for inv := range p.queue {
		p.run(inv)
	}
}

func (p *Pool) run(inv *Invocation) {
	ctx := telemetry.Extract(p.ctx, inv.Headers)
	if p.config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.HandlerTimeout)
		defer cancel()
	}

	name := inv.SubscriberName()
	ctx, span := p.tracer.Start(ctx, "eventbus.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("eventbus.code", inv.Code),
			attribute.String("eventbus.sender", inv.Sender),
			attribute.String("eventbus.subscriber", name),
		),
	)
	defer span.End()

	p.logger.Info("executing subscriber",
		"event", "handler_started",
		"module", "internal/bus",
		"code", inv.Code,
		"sender", inv.Sender,
		"subscriber", name,
	)

	start := time.Now()
	if err := inv.Run(ctx); err != nil {
		err = fmt.Errorf("%w: %s on %s: %w", ErrHandlerRuntime, name, inv.Code, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscriber failed")
		p.logger.Error("subscriber failed",
			"event", "handler_failed",
			"module", "internal/bus",
			"code", inv.Code,
			"sender", inv.Sender,
			"subscriber", name,
			"error", err.Error(),
		)
		p.notifyError(inv, err)
		return
	}

	p.logger.Debug("subscriber finished",
		"event", "handler_finished",
		"module", "internal/bus",
		"code", inv.Code,
		"subscriber", name,
		"duration", time.Since(start),
	)
}

// notifyError hands err to the OnError hook. A panicking hook is logged and
// does not take the worker down.
func (p *Pool) notifyError(inv *Invocation, err error) {
	if p.config.OnError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("error hook panicked",
				"event", "handler_error_hook_panic",
				"module", "internal/bus",
				"code", inv.Code,
				"subscriber", inv.SubscriberName(),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	p.config.OnError(inv, err)
}
