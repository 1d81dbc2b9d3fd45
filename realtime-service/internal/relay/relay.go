// Package relay turns inbound domain events into the frames collaborators
// receive. Handlers are pure: they see the sender and the raw payload and
// return the messages to fan out, without touching the room table.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Sender is the connection an event came from.
type Sender struct {
	ConnectionID string
	Identity     *domain.Identity
}

// Outbound is one event to deliver to a project room, sender excluded.
type Outbound struct {
	ProjectID string
	Event     string
	Payload   json.RawMessage
}

// HandlerFunc handles one event kind.
type HandlerFunc func(sender Sender, payload json.RawMessage) ([]Outbound, error)

// Options tune the table.
type Options struct {
	// ValidatePayloads rejects payloads that do not have the fields their
	// event kind declares instead of forwarding them as-is.
	ValidatePayloads bool
}

// Table maps event kinds to handlers.
type Table struct {
	handlers  map[string]HandlerFunc
	validator *payloadValidator
}

// NewTable builds the dispatch table for every relayed event.
func NewTable(opts Options) *Table {
	t := &Table{handlers: make(map[string]HandlerFunc)}

	for event, field := range domain.SenderFields {
		t.handlers[event] = relayWithSender(event, field)
	}
	t.handlers[domain.EventTypingStart] = typingStart
	t.handlers[domain.EventTypingStop] = typingStop

	if opts.ValidatePayloads {
		t.validator = newPayloadValidator()
	}
	return t
}

// Handles reports whether event is relayed by the table.
func (t *Table) Handles(event string) bool {
	_, ok := t.handlers[event]
	return ok
}

// Dispatch runs the handler for event.
func (t *Table) Dispatch(sender Sender, event string, payload json.RawMessage) ([]Outbound, error) {
	h, ok := t.handlers[event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if t.validator != nil {
		if err := t.validator.check(event, payload); err != nil {
			return nil, err
		}
	}
	return h(sender, payload)
}

// relayWithSender forwards the payload object unchanged with the sender's
// identity added under field. A payload that is not an object or names no
// project has no room to go to and is dropped.
func relayWithSender(event, field string) HandlerFunc {
	return func(sender Sender, payload json.RawMessage) ([]Outbound, error) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
			return nil, nil
		}

		projectID := stringField(fields, "projectId")
		if projectID == "" {
			return nil, nil
		}

		identity, err := json.Marshal(sender.Identity)
		if err != nil {
			return nil, err
		}
		fields[field] = identity

		out, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		return []Outbound{{ProjectID: projectID, Event: event, Payload: out}}, nil
	}
}

type typingIn struct {
	ProjectID string          `json:"projectId"`
	TaskID    json.RawMessage `json:"taskId,omitempty"`
}

type typingOut struct {
	UserID   string          `json:"userId"`
	UserName string          `json:"userName,omitempty"`
	TaskID   json.RawMessage `json:"taskId,omitempty"`
}

func typingStart(sender Sender, payload json.RawMessage) ([]Outbound, error) {
	return typing(sender, payload, domain.EventUserTyping, true)
}

func typingStop(sender Sender, payload json.RawMessage) ([]Outbound, error) {
	return typing(sender, payload, domain.EventUserStoppedTyping, false)
}

func typing(sender Sender, payload json.RawMessage, event string, withName bool) ([]Outbound, error) {
	var in typingIn
	if err := json.Unmarshal(payload, &in); err != nil || in.ProjectID == "" {
		return nil, nil
	}

	out := typingOut{TaskID: nullToEmpty(in.TaskID)}
	if sender.Identity != nil {
		out.UserID = sender.Identity.ID
		if withName {
			out.UserName = sender.Identity.DisplayName()
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return []Outbound{{ProjectID: in.ProjectID, Event: event, Payload: b}}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
