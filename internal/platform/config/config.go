package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// PostgresConfig captures the event log database connection.
// An empty URL selects the in-memory store (development and tests).
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig captures the projection cache connection.
// An empty URL disables the cache entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TTL          time.Duration
}

// KafkaConfig captures the outbox relay target.
// Empty brokers disable the relay.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// Engine captures command processor and dispatcher tuning.
type Engine struct {
	// SubscriberBuffer is the per-subscriber watermark; a session whose
	// buffer is full is dropped and must resynchronize on reconnect.
	SubscriberBuffer int
	// AppendRetries bounds transparent retries of transient persistence
	// failures before they surface to the caller.
	AppendRetries  int
	RetryBaseDelay time.Duration
}

// Auth captures identity collaborator settings. The engine only extracts
// the actor claim; it performs no identity management of its own.
type Auth struct {
	JWTSigningKey string
}

// Config aggregates everything main needs to wire the engine.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   Engine
	Auth     Auth
	LogLevel string
	LogFile  string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envString("TASKSTREAM_ADDR", ":8080"),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("TASKSTREAM_POSTGRES_URL"),
			MaxOpenConns: envInt("TASKSTREAM_POSTGRES_MAX_OPEN", 10),
			MaxIdleConns: envInt("TASKSTREAM_POSTGRES_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TASKSTREAM_REDIS_URL"),
			PoolSize:     envInt("TASKSTREAM_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TASKSTREAM_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("TASKSTREAM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("TASKSTREAM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("TASKSTREAM_REDIS_WRITE_TIMEOUT", 3*time.Second),
			TTL:          envDuration("TASKSTREAM_PROJECTION_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      envList("TASKSTREAM_KAFKA_BROKERS"),
			Topic:        envString("TASKSTREAM_KAFKA_TOPIC", "taskstream.events"),
			PollInterval: envDuration("TASKSTREAM_RELAY_POLL_INTERVAL", time.Second),
		},
		Engine: Engine{
			SubscriberBuffer: envInt("TASKSTREAM_SUBSCRIBER_BUFFER", 64),
			AppendRetries:    envInt("TASKSTREAM_APPEND_RETRIES", 3),
			RetryBaseDelay:   envDuration("TASKSTREAM_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Auth: Auth{
			JWTSigningKey: envString("TASKSTREAM_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		LogLevel: envString("TASKSTREAM_LOG_LEVEL", "info"),
		LogFile:  os.Getenv("TASKSTREAM_LOG_FILE"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
