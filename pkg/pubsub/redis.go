package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-board/pkg/log"
)

const redisSubscriberBuffer = 256

// RedisPubSub is the PUBLISH/PSUBSCRIBE driver.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub // keyed by channel or pattern
}

// NewRedisPubSub dials Redis and fails fast if it is unreachable.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis pubsub: ping %s: %w", cfg.Address, err)
	}
	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient takes ownership of client; Close closes it.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client, subs: make(map[string]*redis.PubSub)}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis pubsub: encode event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.attach(ctx, channel, r.client.Subscribe(ctx, channel))
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.attach(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

// attach waits for the server to confirm the subscription, so anything
// published after it returns is delivered. A second subscription under the
// same key replaces the first.
func (r *RedisPubSub) attach(ctx context.Context, key string, sub *redis.PubSub) (<-chan *Event, error) {
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis pubsub: subscribe %s: %w", key, err)
	}

	r.mu.Lock()
	if old := r.subs[key]; old != nil {
		_ = old.Close()
	}
	r.subs[key] = sub
	r.mu.Unlock()

	out := make(chan *Event, redisSubscriberBuffer)
	go r.pump(ctx, key, sub, out)
	return out, nil
}

func (r *RedisPubSub) Unsubscribe(_ context.Context, key string) error {
	r.mu.Lock()
	sub := r.subs[key]
	delete(r.subs, key)
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redis.PubSub)
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return r.client.Close()
}

// release forgets sub if it is still registered under key and closes it.
// Closing an already closed subscription is harmless.
func (r *RedisPubSub) release(key string, sub *redis.PubSub) {
	r.mu.Lock()
	if r.subs[key] == sub {
		delete(r.subs, key)
	}
	r.mu.Unlock()
	_ = sub.Close()
}

// pump decodes messages until the subscription closes or ctx ends, then
// releases the subscription. A full out channel drops the message rather
// than stalling the Redis reader.
func (r *RedisPubSub) pump(ctx context.Context, key string, sub *redis.PubSub, out chan<- *Event) {
	defer close(out)
	defer r.release(key, sub)
	l := log.L()

	msgs := sub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			msg = m
		}

		ev := new(Event)
		if err := json.Unmarshal([]byte(msg.Payload), ev); err != nil {
			l.Warn().Err(err).Str("channel", msg.Channel).Msg("undecodable pubsub event dropped")
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		default:
			l.Warn().Str("channel", msg.Channel).Msg("pubsub subscriber full, event dropped")
		}
	}
}
