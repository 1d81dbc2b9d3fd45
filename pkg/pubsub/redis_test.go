package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)
	ps := NewRedisPubSubFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { ps.Close() })
	return ps
}

func TestRedisPubSub_PatternDelivery(t *testing.T) {
	ps := newTestRedisPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ps.SubscribePattern(ctx, ChannelProjectPattern)
	require.NoError(t, err)

	frame := json.RawMessage(`{"event":"task-moved","data":{}}`)
	require.NoError(t, ps.Publish(ctx, ProjectChannel("proj-1"), NewEvent(EventRoomFrame, "proj-1", "node-a", frame)))

	select {
	case ev := <-events:
		require.Equal(t, EventRoomFrame, ev.Type)
		require.Equal(t, "proj-1", ev.ProjectID)
		require.Equal(t, "node-a", ev.Origin)
		require.JSONEq(t, string(frame), string(ev.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestRedisPubSub_UnsubscribeClosesStream(t *testing.T) {
	ps := newTestRedisPubSub(t)
	ctx := context.Background()

	events, err := ps.Subscribe(ctx, ProjectChannel("proj-1"))
	require.NoError(t, err)
	require.NoError(t, ps.Unsubscribe(ctx, ProjectChannel("proj-1")))

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestProjectChannel(t *testing.T) {
	ch := ProjectChannel("abc")
	require.Equal(t, "board:project:abc", ch)

	id, ok := ProjectFromChannel(ch)
	require.True(t, ok)
	require.Equal(t, "abc", id)

	_, ok = ProjectFromChannel("board:project:")
	require.False(t, ok)
	_, ok = ProjectFromChannel("media:room:x:to_signal")
	require.False(t, ok)
}

func TestRedisPubSub_ContextEndReleasesSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	ps := NewRedisPubSubFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := ps.SubscribePattern(ctx, ChannelProjectPattern)
	require.NoError(t, err)
	require.Equal(t, 1, mr.PubSubNumPat())

	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 0 }, 2*time.Second, 10*time.Millisecond)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.Empty(t, ps.subs)
}
