package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darkden-lab/eventbus/internal/broker"
	"github.com/darkden-lab/eventbus/internal/bus"
	"github.com/darkden-lab/eventbus/internal/event"
)

type publishOptions struct {
	code   string
	sender string
	body   string
}

func newPublishCmd() *cobra.Command {
	opts := &publishOptions{}

	cmd := &cobra.Command{
		Use:     "publish",
		Short:   "Publish a single event to the events topic",
		Example: `  eventbus publish --code UserRegistered --sender SignupService --body '{"userId":"42"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.code, "code", "", "Event code")
	cmd.Flags().StringVar(&opts.sender, "sender", "", "Sender id")
	cmd.Flags().StringVar(&opts.body, "body", "", "JSON object body")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func runPublish(ctx context.Context, opts *publishOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := setup(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(deps)

	ev := &event.Raw{Code: opts.code, Sender: opts.sender}
	if opts.body != "" {
		ev.Body = json.RawMessage(opts.body)
	}

	backend, err := broker.NewBackend(deps.cfg, bus.EventsTopic, deps.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := bus.NewProducer(backend.Connector, deps.logger).PublishEvent(ctx, ev); err != nil {
		return err
	}

	if backend.Memory != nil {
		deps.logger.Warn("no Kafka broker configured, event stays in this process",
			"event", "publish_in_memory",
			"module", "cmd/eventbus",
			"buffered", backend.Memory.Len(bus.EventsTopic),
		)
	}
	fmt.Printf("published %s from %s\n", opts.code, opts.sender)
	return nil
}
