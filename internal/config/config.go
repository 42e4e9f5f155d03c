package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Events       EventsConfig
	Support      SupportConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig describes how tokens minted by the identity service are verified.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Event relay backends.
const (
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
	BrokerNone  = "none"
)

// EventsConfig selects where committed ticket events are relayed. Redis
// appends to Stream; Kafka writes to KafkaTopic.
type EventsConfig struct {
	Broker       string
	Stream       string
	MaxLength    int64
	KafkaBrokers []string
	KafkaTopic   string
}

// SupportConfig names the sender of system-generated messages.
type SupportConfig struct {
	SystemName  string
	SystemEmail string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// NotificationConfig holds notification endpoints. Mail is delivered only
// when SMTPHost is set.
type NotificationConfig struct {
	EmailFrom         string
	EmailFromName     string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	MailWorkers       int
	MailQueueSize     int
	WebhookURL        string
	WebhookTimeoutSec int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", defaultJWTSecret),
			JWTIssuer: os.Getenv("AUTH_JWT_ISSUER"),
		},
		Events: EventsConfig{
			Broker:       strings.ToLower(getEnv("EVENTS_BROKER", BrokerRedis)),
			Stream:       getEnv("EVENTS_STREAM", "support:ticket-events"),
			MaxLength:    int64(getEnvAsInt("EVENTS_STREAM_MAX_LEN", 10000)),
			KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "support.ticket-events"),
		},
		Support: SupportConfig{
			SystemName:  getEnv("SUPPORT_SYSTEM_NAME", "Support Team"),
			SystemEmail: getEnv("SUPPORT_SYSTEM_EMAIL", "support@example.com"),
		},
		Notification: NotificationConfig{
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			EmailFromName:     getEnv("NOTIFY_EMAIL_FROM_NAME", "Support Team"),
			SMTPHost:          os.Getenv("SMTP_HOST"),
			SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:      os.Getenv("SMTP_USERNAME"),
			SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
			MailWorkers:       getEnvAsInt("NOTIFY_MAIL_WORKERS", 2),
			MailQueueSize:     getEnvAsInt("NOTIFY_MAIL_QUEUE_SIZE", 256),
			WebhookURL:        getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutSec: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", 2),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.App.Env == "production" && cfg.Auth.JWTSecret == defaultJWTSecret {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	switch cfg.Events.Broker {
	case BrokerRedis, BrokerNone:
	case BrokerKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS required when EVENTS_BROKER=kafka")
		}
	default:
		return nil, fmt.Errorf("unknown EVENTS_BROKER %q", cfg.Events.Broker)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// WebhookTimeout bounds a single webhook POST.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	return time.Duration(n.WebhookTimeoutSec) * time.Second
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
