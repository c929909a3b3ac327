package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/zach-short/ceros/pkg/config"
	"github.com/zach-short/ceros/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Chat      ChatConfig
	Auth      AuthConfig
	Store     StoreConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendQueueSize  int           `mapstructure:"send_queue_size"`
}

type ChatConfig struct {
	EditWindow        time.Duration `mapstructure:"edit_window"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
	DMHistoryLimit    int64         `mapstructure:"dm_history_limit"`
	GroupHistoryLimit int64         `mapstructure:"group_history_limit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
}

type StoreConfig struct {
	Backend string // "memory" or "redis"
}

type RedisConfig struct {
	Address           string
	Password          string
	DB                int
	RegistryPrefix    string        `mapstructure:"registry_prefix"`
	AdvertiseAddress  string        `mapstructure:"advertise_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_queue_size", 256)
	v.SetDefault("chat.edit_window", "15m")
	v.SetDefault("chat.store_timeout", "5s")
	v.SetDefault("chat.dm_history_limit", 100)
	v.SetDefault("chat.group_history_limit", 200)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "ceros")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.registry_prefix", "chat:registry")
	v.SetDefault("redis.advertise_address", "localhost:8080")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-events")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-server")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("store.backend", "STORE_BACKEND")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 54*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Chat.EditWindow = parseDuration(v, "chat.edit_window", 15*time.Minute)
	cfg.Chat.StoreTimeout = parseDuration(v, "chat.store_timeout", 5*time.Second)
	cfg.Redis.HeartbeatInterval = parseDuration(v, "redis.heartbeat_interval", 10*time.Second)
	cfg.Redis.KeyTTL = parseDuration(v, "redis.key_ttl", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
