package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"redis", Config{Driver: DriverRedis, Redis: RedisConfig{Address: "localhost:6379"}}, false},
		{"default driver", Config{Redis: RedisConfig{Address: "localhost:6379"}}, false},
		{"redis without address", Config{Driver: DriverRedis}, true},
		{"kafka", Config{Driver: DriverKafka, Kafka: KafkaConfig{Brokers: "localhost:9092"}}, false},
		{"kafka without brokers", Config{Driver: DriverKafka}, true},
		{"unknown", Config{Driver: "nats", Redis: RedisConfig{Address: "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewPubSub_RejectsUnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "nats"})
	require.Error(t, err)
}
