package bus

import (
	"context"
	"fmt"

	"github.com/darkden-lab/eventbus/internal/event"
)

// Subscriber handles events it has been subscribed to. The event is passed as
// the raw envelope; deserializing it into a concrete type is the
// subscriber's job. HandleEvent may be called concurrently with itself for
// different events.
type Subscriber interface {
	HandleEvent(ctx context.Context, event string) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event string) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event string) error {
	return f(ctx, event)
}

type namedSubscriber struct {
	name string
	Subscriber
}

func (n namedSubscriber) Name() string { return n.name }

// Named attaches a name to s. The name is used in logs and traces instead of
// the Go type.
func Named(name string, s Subscriber) Subscriber {
	return namedSubscriber{name: name, Subscriber: s}
}

// Typed returns a Subscriber that deserializes each envelope into a fresh
// event from newEvent before calling handle.
func Typed[E event.Event](newEvent func() E, handle func(ctx context.Context, ev E, env event.Envelope) error) Subscriber {
	return SubscriberFunc(func(ctx context.Context, raw string) error {
		ev := newEvent()
		env, err := event.Deserialize(raw, ev)
		if err != nil {
			return err
		}
		return handle(ctx, ev, env)
	})
}

// SubscriberName returns the name used for s in logs.
func SubscriberName(s Subscriber) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Subscription binds one event code to one subscriber.
type Subscription struct {
	code       string
	subscriber Subscriber
}

func NewSubscription(code string, subscriber Subscriber) Subscription {
	return Subscription{code: code, subscriber: subscriber}
}

func (s Subscription) Code() string { return s.code }

func (s Subscription) Subscriber() Subscriber { return s.subscriber }

// IsInterestedIn reports whether code is exactly the subscription's code.
func (s Subscription) IsInterestedIn(code string) bool {
	return code == s.code
}
