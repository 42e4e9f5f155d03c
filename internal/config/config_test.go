package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("EVENTS_STREAM", "")
	t.Setenv("EVENTS_STREAM_MAX_LEN", "")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "")
	t.Setenv("EVENTS_BROKER", "")
	t.Setenv("SMTP_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, defaultJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "support:ticket-events", cfg.Events.Stream)
	assert.Equal(t, int64(10000), cfg.Events.MaxLength)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, BrokerRedis, cfg.Events.Broker)
	assert.Empty(t, cfg.Notification.SMTPHost)
	assert.Equal(t, 587, cfg.Notification.SMTPPort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SUPPORT_SYSTEM_NAME", "Billing Bot")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("POSTGRES_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "Billing Bot", cfg.Support.SystemName)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
}

func TestLoad_RejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_KafkaBroker(t *testing.T) {
	t.Setenv("EVENTS_BROKER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("KAFKA_TOPIC", "tickets")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BrokerKafka, cfg.Events.Broker)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "tickets", cfg.Events.KafkaTopic)
}

func TestLoad_BrokerValidation(t *testing.T) {
	t.Run("kafka without brokers", func(t *testing.T) {
		t.Setenv("EVENTS_BROKER", "kafka")
		t.Setenv("KAFKA_BROKERS", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown broker", func(t *testing.T) {
		t.Setenv("EVENTS_BROKER", "nats")

		_, err := Load()
		assert.Error(t, err)
	})
}
