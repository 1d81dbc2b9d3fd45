package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-board/pkg/log"
)

const (
	defaultKafkaGroupID    = "board-realtime"
	defaultKafkaPartitions = 4
	kafkaPollInterval      = 500 * time.Millisecond
	kafkaFlushTimeoutMs    = 5000
)

// projectKey maps a project channel to its message key on the shared
// project topic: "board:project:P1" is keyed "P1".
func projectKey(channel string) (string, error) {
	projectID, ok := ProjectFromChannel(channel)
	if !ok {
		return "", fmt.Errorf("not a project channel: %s", channel)
	}
	return projectID, nil
}

type kafkaConsumer struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// stop ends the read loop before closing the consumer it reads from.
func (c *kafkaConsumer) stop() error {
	c.cancel()
	<-c.done
	return c.consumer.Close()
}

// KafkaPubSub implements PubSub on one Kafka topic shared by all projects,
// keyed by project id so a project's frames stay ordered on one partition.
type KafkaPubSub struct {
	producer  *kafka.Producer
	cfg       KafkaConfig
	mu        sync.Mutex
	consumers map[string]*kafkaConsumer
	reports   chan struct{}
}

// NewKafkaPubSub creates the producer and makes sure the project topic
// exists. A topic that cannot be created is logged, not fatal; brokers
// with auto-create still work.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.GroupID == "" {
		cfg.GroupID = defaultKafkaGroupID
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaultKafkaPartitions
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:  p,
		cfg:       cfg,
		consumers: make(map[string]*kafkaConsumer),
		reports:   make(chan struct{}),
	}
	go k.watchDeliveries()

	if err := k.createProjectTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", KafkaProjectTopic).Msg("could not create project topic")
	}
	return k, nil
}

func (k *KafkaPubSub) createProjectTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             KafkaProjectTopic,
		NumPartitions:     k.cfg.Partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

// watchDeliveries logs failed deliveries until the producer is closed.
func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reports)
	l := log.L()

	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l.Error().Err(m.TopicPartition.Error).Bytes("key", m.Key).Msg("kafka delivery failed")
		}
	}
}

// Publish enqueues the event on the project topic. Delivery is
// asynchronous; failures show up in the log.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	key, err := projectKey(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := KafkaProjectTopic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Subscribe consumes a single project's frames in a group of its own.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	key, err := projectKey(channel)
	if err != nil {
		return nil, err
	}
	group := k.cfg.GroupID + "-" + sanitizeGroupID(key)
	return k.consume(ctx, channel, group, key)
}

// SubscribePattern consumes every project's frames. Only the project
// pattern is meaningful on Kafka.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if pattern != ChannelProjectPattern {
		return nil, fmt.Errorf("unsupported pattern: %s", pattern)
	}
	return k.consume(ctx, pattern, k.cfg.GroupID, "")
}

func (k *KafkaPubSub) consume(ctx context.Context, subKey, group, onlyKey string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.consumers[subKey]; ok {
		existing.stop()
		delete(k.consumers, subKey)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.cfg.Brokers,
		"group.id":                group,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(KafkaProjectTopic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", KafkaProjectTopic, err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaConsumer{consumer: c, cancel: cancel, done: make(chan struct{})}
	k.consumers[subKey] = sub

	events := make(chan *Event, 100)
	go k.read(readCtx, sub, events, onlyKey)
	return events, nil
}

func (k *KafkaPubSub) read(ctx context.Context, sub *kafkaConsumer, events chan<- *Event, onlyKey string) {
	defer close(sub.done)
	defer close(events)
	l := log.L()

	for ctx.Err() == nil {
		msg, err := sub.consumer.ReadMessage(kafkaPollInterval)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.IsTimeout() {
					continue
				}
				if kerr.IsFatal() {
					l.Error().Err(err).Msg("kafka consumer failed")
					return
				}
			}
			l.Warn().Err(err).Msg("kafka read error")
			continue
		}

		if onlyKey != "" && string(msg.Key) != onlyKey {
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.Warn().Err(err).Msg("dropping undecodable kafka event")
			continue
		}

		select {
		case events <- &event:
		case <-ctx.Done():
			return
		default:
			l.Warn().Bytes("key", msg.Key).Msg("kafka subscriber full, event dropped")
		}
	}
}

// Unsubscribe stops a channel or pattern subscription.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	sub, ok := k.consumers[channel]
	if !ok {
		return nil
	}
	delete(k.consumers, channel)
	if err := sub.stop(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}

// Close stops every consumer, flushes pending frames and closes the
// producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for key, sub := range k.consumers {
		sub.stop()
		delete(k.consumers, key)
	}
	k.mu.Unlock()

	k.producer.Flush(kafkaFlushTimeoutMs)
	k.producer.Close()
	<-k.reports
	return nil
}

// sanitizeGroupID replaces characters Kafka rejects in group ids.
func sanitizeGroupID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}
