package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"connectai/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Gemini        GeminiConfig
	Gateway       GatewayConfig
	Session       SessionConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"connectai"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"connectai"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"connectai"`
}

type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	Model   string `envconfig:"GEMINI_LIVE_MODEL" default:"gemini-2.0-flash-live-001"`
	Voice   string `envconfig:"GEMINI_DEFAULT_VOICE" default:"Sulafat"`
	Backend string `envconfig:"GEMINI_BACKEND" default:"api"` // api | vertex
}

// GatewayConfig covers the inbound telephony WebSocket listener.
type GatewayConfig struct {
	Host            string        `envconfig:"GATEWAY_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"GATEWAY_PORT" default:"8080"`
	ReadBufferSize  int           `envconfig:"GATEWAY_READ_BUFFER_SIZE" default:"4096"`
	WriteBufferSize int           `envconfig:"GATEWAY_WRITE_BUFFER_SIZE" default:"4096"`
	WriteTimeout    time.Duration `envconfig:"GATEWAY_WRITE_TIMEOUT" default:"5s"`
	IdleTimeout     time.Duration `envconfig:"GATEWAY_IDLE_TIMEOUT" default:"60s"`
	// Inbound media rate limits; roughly 50 frames/s of 20ms telephony audio
	// with headroom for jitter.
	MaxFramesPerSecond int `envconfig:"GATEWAY_MAX_FRAMES_PER_SECOND" default:"100"`
	FrameBurst         int `envconfig:"GATEWAY_FRAME_BURST" default:"200"`
}

func (c GatewayConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig tunes the per-call orchestrator.
type SessionConfig struct {
	ConnectTimeout time.Duration `envconfig:"SESSION_CONNECT_TIMEOUT" default:"10s"`
	DrainTimeout   time.Duration `envconfig:"SESSION_DRAIN_TIMEOUT" default:"5s"`
	ToolTimeout    time.Duration `envconfig:"SESSION_TOOL_TIMEOUT" default:"15s"`
	// Consecutive malformed inbound frames tolerated before the session errors out.
	TranscodeFailureThreshold int `envconfig:"SESSION_TRANSCODE_FAILURE_THRESHOLD" default:"100"`
	// Bounded channel sizes for the directional audio pumps.
	InboundQueueSize  int `envconfig:"SESSION_INBOUND_QUEUE_SIZE" default:"64"`
	OutboundQueueSize int `envconfig:"SESSION_OUTBOUND_QUEUE_SIZE" default:"64"`
	// Per-subscriber transcript queue capacity; overflow drops oldest.
	TranscriptQueueSize int `envconfig:"SESSION_TRANSCRIPT_QUEUE_SIZE" default:"256"`
	// How long a registry ownership claim lives in Redis before expiring.
	OwnershipTTL time.Duration `envconfig:"SESSION_OWNERSHIP_TTL" default:"4h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
