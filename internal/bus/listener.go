package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/darkden-lab/eventbus/internal/broker"
	"github.com/darkden-lab/eventbus/internal/event"
	"github.com/darkden-lab/eventbus/internal/logging"
	"github.com/darkden-lab/eventbus/internal/telemetry"
)

// DefaultPollTimeout is how long a single StartJob waits for records.
const DefaultPollTimeout = 59 * time.Second

// JobState is the polling state of a ListenerJob.
type JobState int32

const (
	StateIdle JobState = iota
	StatePolling
)

func (s JobState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return fmt.Sprintf("JobState(%d)", int32(s))
	}
}

// ListenerConfig configures a ListenerJob.
type ListenerConfig struct {
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// ListenerJob polls the events topic and hands every matching subscription
// to an Executor. It is meant to be triggered periodically; overlapping
// triggers are ignored while a poll is in flight.
type ListenerJob struct {
	registry    *Registry
	groupID     string
	poller      broker.Poller
	executor    Executor
	pollTimeout time.Duration
	state       atomic.Int32
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewListenerJob resolves the provider's subscriptions once. When provider is
// nil or has no subscriptions no poller is created and StartJob does nothing
// for the lifetime of the job.
func NewListenerJob(provider Provider, pollers broker.PollerFactory, executor Executor, config ListenerConfig) (*ListenerJob, error) {
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}
	j := &ListenerJob{
		executor:    executor,
		pollTimeout: config.PollTimeout,
		logger:      logging.OrDefault(config.Logger),
		tracer:      otel.Tracer(tracerName),
	}

	if provider == nil {
		j.logger.Warn("no subscriptions provider configured; no events will be listened to",
			"event", "listener_disabled",
			"module", "internal/bus",
		)
		return j, nil
	}

	groupID := provider.ProviderID()
	subs := provider.Subscriptions()
	if len(subs) == 0 {
		j.logger.Warn("subscriptions provider doesn't provide any event subscription; no events will be listened to",
			"event", "listener_disabled",
			"module", "internal/bus",
			"group", groupID,
		)
		return j, nil
	}

	if groupID == "" {
		return nil, errors.New("subscriptions provider has an empty id")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if pollers == nil {
		return nil, errors.New("poller factory is required")
	}

	poller, err := pollers(groupID)
	if err != nil {
		return nil, fmt.Errorf("create poller for group %s: %w", groupID, err)
	}

	j.registry = NewRegistry(subs)
	j.groupID = groupID
	j.poller = poller

	j.logger.Info("listening for events",
		"event", "listener_enabled",
		"module", "internal/bus",
		"group", groupID,
		"subscriptions", j.registry.Len(),
		"codes", j.registry.Codes(),
	)
	return j, nil
}

// Enabled reports whether the job has a poller.
func (j *ListenerJob) Enabled() bool { return j.poller != nil }

// GroupID returns the consumer group the job polls with.
func (j *ListenerJob) GroupID() string { return j.groupID }

// State returns the current polling state.
func (j *ListenerJob) State() JobState { return JobState(j.state.Load()) }

// StartJob runs one poll cycle. The job returns to Idle as soon as the poll
// returns, before records are dispatched, and never waits for subscribers.
//
// The returned error joins the poll failure, if any, with invocation setup
// failures; a failed event never stops the rest of the batch.
func (j *ListenerJob) StartJob(ctx context.Context) error {
	if j.poller == nil {
		return nil
	}
	if !j.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		j.logger.Debug("poll already in progress, skipping trigger",
			"event", "listener_busy",
			"module", "internal/bus",
			"group", j.groupID,
		)
		return nil
	}

	j.logger.Debug("polling for events",
		"event", "listener_poll",
		"module", "internal/bus",
		"group", j.groupID,
	)
	records, pollErr := j.poller.Poll(ctx, j.pollTimeout)
	j.state.Store(int32(StateIdle))

	var errs []error
	if pollErr != nil {
		j.logger.Error("polling events failed",
			"event", "listener_poll_failed",
			"module", "internal/bus",
			"group", j.groupID,
			"error", pollErr.Error(),
		)
		errs = append(errs, fmt.Errorf("poll events: %w", pollErr))
	}

	for _, rec := range records {
		errs = append(errs, j.dispatch(ctx, rec)...)
	}

	if len(records) > 0 {
		j.logger.Debug("finished polling",
			"event", "listener_batch_done",
			"module", "internal/bus",
			"group", j.groupID,
			"records", len(records),
		)
	}
	return errors.Join(errs...)
}

func (j *ListenerJob) dispatch(ctx context.Context, rec broker.Record) []error {
	payload := string(rec.Value)

	code, err := event.ParseEventCode(payload)
	if err != nil {
		j.logger.Warn("skipping malformed event record",
			"event", "listener_malformed_record",
			"module", "internal/bus",
			"group", j.groupID,
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err.Error(),
		)
		return nil
	}
	sender := event.ParseSender(payload)

	j.logger.Info("read event",
		"event", "listener_record",
		"module", "internal/bus",
		"code", code,
		"sender", sender,
		"offset", rec.Offset,
	)

	ctx, span := j.tracer.Start(telemetry.Extract(ctx, rec.Headers), "eventbus.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("eventbus.code", code),
			attribute.String("eventbus.sender", sender),
			attribute.String("messaging.consumer.group.name", j.groupID),
		),
	)
	defer span.End()

	var errs []error
	for _, sub := range j.registry.Match(code) {
		name := SubscriberName(sub.Subscriber())

		inv, err := NewInvocation(sub, payload, telemetry.Inject(ctx, nil))
		if err == nil {
			if submitErr := j.executor.Submit(inv); submitErr != nil {
				err = fmt.Errorf("%w: %s for %s: %w", ErrHandlerInvocationSetup, name, code, submitErr)
			}
		}
		if err != nil {
			span.RecordError(err)
			j.logger.Error("could not start subscriber",
				"event", "handler_setup_failed",
				"module", "internal/bus",
				"code", code,
				"sender", sender,
				"subscriber", name,
				"error", err.Error(),
			)
			errs = append(errs, err)
			continue
		}

		j.logger.Info("subscription is interested in event, handler scheduled",
			"event", "handler_scheduled",
			"module", "internal/bus",
			"group", j.groupID,
			"code", code,
			"subscriber", name,
		)
	}
	return errs
}

// Close releases the poller.
func (j *ListenerJob) Close() error {
	if j.poller == nil {
		return nil
	}
	return j.poller.Close()
}
