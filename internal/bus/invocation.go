package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/darkden-lab/eventbus/internal/event"
)

var (
	// ErrHandlerInvocationSetup is returned when an invocation cannot be
	// prepared or handed to a worker.
	ErrHandlerInvocationSetup = errors.New("handler invocation setup")

	// ErrHandlerRuntime wraps failures raised by a subscriber while handling
	// an event. These never reach the listener job.
	ErrHandlerRuntime = errors.New("handler invocation failed")
)

// Invocation is one call of a subscriber for one event.
type Invocation struct {
	Subscription Subscription
	Payload      string
	Code         string
	Sender       string
	Headers      map[string]string
}

// NewInvocation prepares the call of sub for the raw envelope payload.
func NewInvocation(sub Subscription, payload string, headers map[string]string) (*Invocation, error) {
	s := sub.Subscriber()
	if s == nil {
		return nil, fmt.Errorf("%w: subscription for %s has no subscriber", ErrHandlerInvocationSetup, sub.Code())
	}
	if f, ok := s.(SubscriberFunc); ok && f == nil {
		return nil, fmt.Errorf("%w: subscription for %s has a nil handler func", ErrHandlerInvocationSetup, sub.Code())
	}
	return &Invocation{
		Subscription: sub,
		Payload:      payload,
		Code:         sub.Code(),
		Sender:       event.ParseSender(payload),
		Headers:      headers,
	}, nil
}

// SubscriberName returns the name of the invoked subscriber.
func (inv *Invocation) SubscriberName() string {
	return SubscriberName(inv.Subscription.Subscriber())
}

// Run calls the subscriber. A panic is returned as an error.
func (inv *Invocation) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return inv.Subscription.Subscriber().HandleEvent(ctx, inv.Payload)
}
