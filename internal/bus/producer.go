package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/darkden-lab/eventbus/internal/broker"
	"github.com/darkden-lab/eventbus/internal/event"
	"github.com/darkden-lab/eventbus/internal/logging"
	"github.com/darkden-lab/eventbus/internal/telemetry"
)

// EventsTopic is the topic shared by every producer and listener of the bus.
const EventsTopic = "eventbus.events"

const tracerName = "github.com/darkden-lab/eventbus/internal/bus"

// ErrPublish is returned when the broker rejects or fails a publish.
var ErrPublish = errors.New("publish event")

// Producer publishes events to EventsTopic.
type Producer struct {
	connector broker.Connector
	topic     string
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewProducer creates a Producer that opens one broker connection per
// published event.
func NewProducer(connector broker.Connector, logger *slog.Logger) *Producer {
	return &Producer{
		connector: connector,
		topic:     EventsTopic,
		tracer:    otel.Tracer(tracerName),
		logger:    logging.OrDefault(logger),
	}
}

// PublishEvent serializes e and appends it to the events topic. Failures are
// returned as-is; there is no retry at this layer.
func (p *Producer) PublishEvent(ctx context.Context, e event.Event) error {
	payload, err := event.Serialize(e)
	if err != nil {
		return err
	}
	code := e.EventCode()
	sender := e.EventSender().SenderID()

	ctx, span := p.tracer.Start(ctx, "eventbus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("eventbus.code", code),
			attribute.String("eventbus.sender", sender),
		),
	)
	defer span.End()

	if err := p.publish(ctx, code, []byte(payload)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.logger.Error("event publish failed",
			"event", "event_publish_failed",
			"module", "internal/bus",
			"code", code,
			"sender", sender,
			"error", err.Error(),
		)
		return err
	}

	p.logger.Info("event published",
		"event", "event_published",
		"module", "internal/bus",
		"topic", p.topic,
		"code", code,
		"sender", sender,
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, code string, payload []byte) error {
	conn, err := p.connector.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w %s: open connection: %w", ErrPublish, code, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Warn("closing broker connection failed",
				"event", "broker_close_failed",
				"module", "internal/bus",
				"code", code,
				"error", err.Error(),
			)
		}
	}()

	headers := telemetry.Inject(ctx, nil)
	if err := conn.Publish(ctx, p.topic, payload, headers); err != nil {
		return fmt.Errorf("%w %s: %w", ErrPublish, code, err)
	}
	return nil
}
