package config

import (
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-board/pkg/config"
	"github.com/weiawesome/wes-board/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Rooms     RoomsConfig
	Relay     RelayConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	PubSub    PubSubConfig `mapstructure:"pubsub"`
	Log       LogConfig

	v *viper.Viper
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
}

// RoomsConfig controls who may join a project room. With AuthorizeJoin off
// any authenticated connection can join any project.
type RoomsConfig struct {
	AuthorizeJoin bool `mapstructure:"authorize_join"`
}

// RelayConfig controls inbound payload checks. With ValidatePayloads off
// payloads are forwarded untouched.
type RelayConfig struct {
	ValidatePayloads bool `mapstructure:"validate_payloads"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	CachePrefix string        `mapstructure:"cache_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type PubSubConfig struct {
	Enabled bool
	Driver  string
	Kafka   pubsub.KafkaConfig
}

type LogConfig struct {
	Level  string
	Pretty bool
}

var ErrMissingSecret = errors.New("auth.jwt_secret (JWT_SECRET) is required")

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("auth.issuer", "")
	v.SetDefault("rooms.authorize_join", false)
	v.SetDefault("relay.validate_payloads", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "board")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/board.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "board:user")
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "board-realtime")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.issuer", "JWT_ISSUER")
	v.BindEnv("rooms.authorize_join", "ROOMS_AUTHORIZE_JOIN")
	v.BindEnv("relay.validate_payloads", "RELAY_VALIDATE_PAYLOADS")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.enabled", "PUBSUB_ENABLED")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 15*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Redis.CacheTTL = pkgconfig.Duration(v, "redis.cache_ttl", 5*time.Minute)

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	cfg.v = v
	return &cfg, nil
}

// WatchLogLevel calls fn with log.level whenever the config file changes.
// Nothing else is reloaded at runtime. It reports false when there is no
// file to watch.
func (c *Config) WatchLogLevel(fn func(level string)) bool {
	if c.v == nil {
		return false
	}
	return pkgconfig.Watch(c.v, func(v *viper.Viper, _ fsnotify.Event) {
		fn(v.GetString("log.level"))
	})
}

// PubSubSettings converts the service settings into the shared pubsub config.
func (c *Config) PubSubSettings() pubsub.Config {
	return pubsub.Config{
		Driver: c.PubSub.Driver,
		Redis: pubsub.RedisConfig{
			Address:  c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Kafka: c.PubSub.Kafka,
	}
}
