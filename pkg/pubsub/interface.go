package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event is what travels between nodes: an opaque payload addressed to one
// project room, stamped with the node that produced it.
type Event struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	SentAt    time.Time       `json:"sent_at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(eventType, projectID, origin string, payload json.RawMessage) *Event {
	return &Event{
		Type:      eventType,
		ProjectID: projectID,
		Origin:    origin,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	}
}

// PubSub is a fire-and-forget bus. Subscription channels close when the
// subscription ends or its context is cancelled.
type PubSub interface {
	Publish(ctx context.Context, channel string, event *Event) error
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}
