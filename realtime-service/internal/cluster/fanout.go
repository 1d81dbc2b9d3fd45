// Package cluster carries room frames between realtime nodes so that
// collaborators connected to different nodes see each other's events.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	pkglog "github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/pkg/pubsub"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
)

// Fanout publishes a frame already delivered locally to the other nodes.
type Fanout interface {
	Publish(ctx context.Context, projectID string, frame []byte) error
}

// Noop is the single-node Fanout.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

const (
	initialRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 30 * time.Second
)

// LocalBroadcaster delivers a frame to this node's room members.
type LocalBroadcaster interface {
	Broadcast(msg *hub.RoomMessage)
}

// Bus is a Fanout over pkg/pubsub. Frames this node published are
// ignored when they come back.
type Bus struct {
	ps     pubsub.PubSub
	local  LocalBroadcaster
	nodeID string
	retry  time.Duration
	doneCh chan struct{}
}

// NewBus creates a bus. An empty nodeID gets a random one.
func NewBus(ps pubsub.PubSub, local LocalBroadcaster, nodeID string) *Bus {
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	return &Bus{
		ps:     ps,
		local:  local,
		nodeID: nodeID,
		retry:  initialRetryInterval,
		doneCh: make(chan struct{}),
	}
}

// NodeID identifies this node on the bus.
func (b *Bus) NodeID() string { return b.nodeID }

// Done returns a channel that is closed when Run exits.
func (b *Bus) Done() <-chan struct{} { return b.doneCh }

func (b *Bus) Publish(ctx context.Context, projectID string, frame []byte) error {
	event := pubsub.NewEvent(pubsub.EventRoomFrame, projectID, b.nodeID, json.RawMessage(frame))
	return b.ps.Publish(ctx, pubsub.ProjectChannel(projectID), event)
}

var errSubscriptionClosed = errors.New("cluster subscription closed")

// Run delivers frames from other nodes to local rooms until ctx is done.
// A dropped subscription is re-established with exponential backoff.
func (b *Bus) Run(ctx context.Context) error {
	defer close(b.doneCh)
	l := pkglog.L().With().Str(pkglog.FieldNodeID, b.nodeID).Logger()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = b.retry
	retry.MaxInterval = maxRetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, b.runSubscription(ctx, retry.Reset)
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.Warn().Err(err).Dur("retry_in", next).Msg("cluster subscription lost, resubscribing")
		}),
	)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runSubscription returns nil only when ctx ends.
func (b *Bus) runSubscription(ctx context.Context, subscribed func()) error {
	events, err := b.ps.SubscribePattern(ctx, pubsub.ChannelProjectPattern)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	subscribed()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errSubscriptionClosed
			}
			b.handle(ev)
		}
	}
}

func (b *Bus) handle(ev *pubsub.Event) {
	if ev.Origin == b.nodeID || ev.Type != pubsub.EventRoomFrame || ev.ProjectID == "" {
		return
	}
	b.local.Broadcast(&hub.RoomMessage{
		RoomID:  ev.ProjectID,
		Message: []byte(ev.Payload),
	})
}
