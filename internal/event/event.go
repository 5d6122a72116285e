package event

import "encoding/json"

// Sender identifies the entity that publishes an event. The identifier is
// carried in the envelope for observability only.
type Sender interface {
	SenderID() string
}

// StaticSender is a Sender backed by a fixed identifier.
type StaticSender string

func (s StaticSender) SenderID() string { return string(s) }

// Event is implemented by every concrete event type published on the bus.
//
// EventCode must return a stable identifier that is unique across all
// producers of the bus; subscribers match on it with exact string equality.
// MarshalBody and UnmarshalBody convert the event's contextual data to and
// from the "body" document of the envelope. MarshalBody may return nil for
// events that carry no context.
type Event interface {
	EventCode() string
	EventSender() Sender
	MarshalBody() (json.RawMessage, error)
	UnmarshalBody(body json.RawMessage) error
}

// Raw is an Event whose fields are plain values. It is useful for tooling
// that forwards envelopes without knowing the concrete event type.
type Raw struct {
	Code   string
	Sender string
	Body   json.RawMessage
}

func (r *Raw) EventCode() string { return r.Code }

func (r *Raw) EventSender() Sender {
	if r.Sender == "" {
		return nil
	}
	return StaticSender(r.Sender)
}

func (r *Raw) MarshalBody() (json.RawMessage, error) { return r.Body, nil }

func (r *Raw) UnmarshalBody(body json.RawMessage) error {
	r.Body = append(json.RawMessage(nil), body...)
	return nil
}
