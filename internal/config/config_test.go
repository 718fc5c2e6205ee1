package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (Config, error) {
	t.Helper()
	return LoadWith(context.Background(), envconfig.MapLookuper(env))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"DB_HOST": "db",
		"DB_USER": "alerts",
		"DB_NAME": "alerts",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1m", cfg.FeedURL)
	assert.Equal(t, "BTCUSDT", cfg.FeedInstrument)
	assert.Equal(t, BackendKafka, cfg.PublisherBackend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alert_queue", cfg.KafkaTopic)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 15*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 168*time.Hour, cfg.DedupeTTL)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, FeedModeStream, cfg.FeedMode)
	assert.Equal(t, 5*time.Second, cfg.FeedPollInterval)
	assert.Equal(t, 60, cfg.TelegramPollTimeout)
	assert.Empty(t, cfg.TelegramBotToken)
}

func TestLoadPollFeedAndTelegram(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"DB_DRIVER":            "sqlite",
		"FEED_MODE":            " Poll ",
		"FEED_POLL_INTERVAL":   "2s",
		"TELEGRAM_BOT_TOKEN":   "123:abc",
		"OPS_TELEGRAM_CHAT_ID": "-1001",
	})
	require.NoError(t, err)
	assert.Equal(t, FeedModePoll, cfg.FeedMode)
	assert.Equal(t, 2*time.Second, cfg.FeedPollInterval)
	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	assert.Equal(t, int64(-1001), cfg.OpsTelegramChatID)
}

func TestLoadSQLiteAndRedis(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"DB_DRIVER":         "SQLite",
		"DB_SQLITE_PATH":    "/tmp/alerts.db",
		"PUBLISHER_BACKEND": "redis",
		"REDIS_STREAM":      "alerts",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"WORKERS":           "4",
	})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, BackendRedis, cfg.PublisherBackend)
	assert.Equal(t, "alerts", cfg.RedisStream)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "pricealert-mailer", cfg.RedisGroup)
	assert.Equal(t, "mailer-1", cfg.RedisConsumer)
	assert.Equal(t, 5*time.Minute, cfg.DedupePendingTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without host", map[string]string{}, "DB_HOST"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"unknown backend", map[string]string{"DB_DRIVER": "sqlite", "PUBLISHER_BACKEND": "nats"}, "PUBLISHER_BACKEND"},
		{"zero workers", map[string]string{"DB_DRIVER": "sqlite", "WORKERS": "0"}, "WORKERS"},
		{"inverted retry delays", map[string]string{"DB_DRIVER": "sqlite", "RETRY_BASE_DELAY": "10s", "RETRY_MAX_DELAY": "1s"}, "RETRY_MAX_DELAY"},
		{"ops chat without bot token", map[string]string{"DB_DRIVER": "sqlite", "OPS_TELEGRAM_CHAT_ID": "-100"}, "TELEGRAM_BOT_TOKEN"},
		{"unknown feed mode", map[string]string{"DB_DRIVER": "sqlite", "FEED_MODE": "carrier-pigeon"}, "FEED_MODE"},
		{"poll without interval", map[string]string{"DB_DRIVER": "sqlite", "FEED_MODE": "poll", "FEED_POLL_INTERVAL": "0s"}, "FEED_POLL_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateMailer(t *testing.T) {
	cfg, err := load(t, map[string]string{"DB_DRIVER": "sqlite"})
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateMailer())

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPFrom = "alerts@example.com"
	assert.NoError(t, cfg.ValidateMailer())
}
