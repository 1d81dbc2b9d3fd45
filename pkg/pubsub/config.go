package pubsub

import (
	"errors"
	"fmt"
	"time"
)

// Drivers.
const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// Config selects and configures the bus between realtime nodes.
type Config struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig configures the Redis driver.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the Kafka driver. GroupID must be unique per node
// for every node to see every frame.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Partitions int    `mapstructure:"partitions"`
}

// Validate checks that the selected driver has somewhere to connect to.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverRedis, "":
		if c.Redis.Address == "" {
			return errors.New("pubsub: redis driver needs an address")
		}
	case DriverKafka:
		if c.Kafka.Brokers == "" {
			return errors.New("pubsub: kafka driver needs brokers")
		}
	default:
		return fmt.Errorf("pubsub: unsupported driver %q", c.Driver)
	}
	return nil
}

// NewPubSub connects the configured driver. An empty driver means Redis.
func NewPubSub(cfg Config) (PubSub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverKafka {
		return NewKafkaPubSub(cfg.Kafka)
	}
	return NewRedisPubSub(cfg.Redis)
}
