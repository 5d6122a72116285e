package subscribers

import (
	"context"
	"log/slog"

	"github.com/darkden-lab/eventbus/internal/event"
	"github.com/darkden-lab/eventbus/internal/logging"
)

// Log is a subscriber that writes every event it receives to a logger.
type Log struct {
	name   string
	logger *slog.Logger
}

func NewLog(name string, logger *slog.Logger) *Log {
	return &Log{name: name, logger: logging.OrDefault(logger)}
}

func (l *Log) Name() string { return l.name }

func (l *Log) HandleEvent(_ context.Context, raw string) error {
	code, err := event.ParseEventCode(raw)
	if err != nil {
		return err
	}
	l.logger.Info("event received",
		"event", "subscriber_log",
		"module", "internal/subscribers",
		"subscriber", l.name,
		"code", code,
		"sender", event.ParseSender(raw),
		"bytes", len(raw),
	)
	return nil
}
