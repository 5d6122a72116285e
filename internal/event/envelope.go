package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedEnvelope is returned when a payload is not a JSON object
	// or has no usable "code" field.
	ErrMalformedEnvelope = errors.New("malformed event envelope")

	// ErrSerialization is returned when an event body cannot be converted
	// to or from JSON.
	ErrSerialization = errors.New("event serialization failed")

	// ErrCodeMismatch is returned by Deserialize when the envelope carries a
	// different code than the target event type.
	ErrCodeMismatch = errors.New("event code mismatch")
)

// Envelope is the wire representation of an Event.
type Envelope struct {
	Code   string          `json:"code"`
	Sender string          `json:"sender"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Serialize builds the JSON envelope for the given event.
func Serialize(e Event) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: nil event", ErrSerialization)
	}

	code := e.EventCode()
	if code == "" {
		return "", fmt.Errorf("%w: event has no code", ErrSerialization)
	}

	sender := e.EventSender()
	if sender == nil || sender.SenderID() == "" {
		return "", fmt.Errorf("%w: event %s has no sender", ErrSerialization, code)
	}

	body, err := e.MarshalBody()
	if err != nil {
		return "", fmt.Errorf("%w: body of %s: %v", ErrSerialization, code, err)
	}
	body, err = normalizeBody(body)
	if err != nil {
		return "", fmt.Errorf("%w: body of %s: %v", ErrSerialization, code, err)
	}

	data, err := json.Marshal(Envelope{
		Code:   code,
		Sender: sender.SenderID(),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSerialization, code, err)
	}
	return string(data), nil
}

// ParseEventCode extracts the "code" field of an envelope without decoding
// the body.
func ParseEventCode(raw string) (string, error) {
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("%w: not valid JSON", ErrMalformedEnvelope)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return "", fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}
	if key, dup := duplicateKey(doc); dup {
		return "", fmt.Errorf("%w: duplicate key %q", ErrMalformedEnvelope, key)
	}
	code := doc.Get("code")
	if code.Type != gjson.String || code.Str == "" {
		return "", fmt.Errorf("%w: missing code", ErrMalformedEnvelope)
	}
	return code.Str, nil
}

// ParseSender returns the "sender" field of an envelope, or an empty string
// when it cannot be read.
func ParseSender(raw string) string {
	return gjson.Get(raw, "sender").String()
}

// Deserialize decodes the envelope into target. When the envelope carries no
// body the target is left in its current state.
func Deserialize(raw string, target Event) (Envelope, error) {
	if _, err := ParseEventCode(raw); err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Code == "" {
		return Envelope{}, fmt.Errorf("%w: missing code", ErrMalformedEnvelope)
	}
	if target == nil {
		return env, nil
	}
	if code := target.EventCode(); code != env.Code {
		return env, fmt.Errorf("%w: envelope is %s, target is %s", ErrCodeMismatch, env.Code, code)
	}

	body, err := normalizeBody(env.Body)
	if err != nil {
		return env, fmt.Errorf("%w: body of %s: %v", ErrSerialization, env.Code, err)
	}
	env.Body = body
	if body == nil {
		return env, nil
	}

	if err := target.UnmarshalBody(body); err != nil {
		return env, fmt.Errorf("%w: body of %s: %v", ErrSerialization, env.Code, err)
	}
	return env, nil
}

// duplicateKey reports the first top-level key that appears twice. gjson
// resolves the first occurrence and encoding/json the last, so envelopes with
// repeated keys are ambiguous.
func duplicateKey(doc gjson.Result) (string, bool) {
	seen := make(map[string]struct{}, 3)
	var dup string
	doc.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := seen[key.Str]; ok {
			dup = key.Str
			return false
		}
		seen[key.Str] = struct{}{}
		return true
	})
	return dup, dup != ""
}

// normalizeBody maps JSON null to nil and rejects anything but an object.
func normalizeBody(body json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !gjson.ValidBytes(trimmed) || !gjson.ParseBytes(trimmed).IsObject() {
		return nil, errors.New("body must be a JSON object")
	}
	return trimmed, nil
}
