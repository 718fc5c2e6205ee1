package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendKafka = "kafka"
	BackendRedis = "redis"

	FeedModeStream = "stream"
	FeedModePoll   = "poll"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DBDriver          string        `env:"DB_DRIVER,default=postgres"`
	DBHost            string        `env:"DB_HOST"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBSQLitePath      string        `env:"DB_SQLITE_PATH,default=pricealert.db"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	FeedURL            string        `env:"FEED_URL,default=wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1m"`
	FeedInstrument     string        `env:"FEED_INSTRUMENT,default=BTCUSDT"`
	FeedReadTimeout    time.Duration `env:"FEED_READ_TIMEOUT,default=60s"`
	FeedReconnectDelay time.Duration `env:"FEED_RECONNECT_DELAY,default=5s"`
	FeedMode           string        `env:"FEED_MODE,default=stream"`
	FeedRESTURL        string        `env:"FEED_REST_URL,default=https://api.binance.com"`
	FeedPollInterval   time.Duration `env:"FEED_POLL_INTERVAL,default=5s"`
	FeedHTTPTimeout    time.Duration `env:"FEED_HTTP_TIMEOUT,default=10s"`

	PublisherBackend string   `env:"PUBLISHER_BACKEND,default=kafka"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS,default=localhost:9092"`
	KafkaTopic       string   `env:"KAFKA_TOPIC,default=alert_queue"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID,default=pricealert-mailer"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	RedisStream   string `env:"REDIS_STREAM,default=alert_queue"`
	RedisGroup    string `env:"REDIS_GROUP,default=pricealert-mailer"`
	RedisConsumer string `env:"REDIS_CONSUMER,default=mailer-1"`

	DedupeTTL        time.Duration `env:"DEDUPE_TTL,default=168h"`
	DedupePendingTTL time.Duration `env:"DEDUPE_PENDING_TTL,default=5m"`

	Workers          int           `env:"WORKERS,default=1"`
	ShutdownGrace    time.Duration `env:"SHUTDOWN_GRACE,default=15s"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS,default=5"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY,default=100ms"`
	RetryMaxDelay    time.Duration `env:"RETRY_MAX_DELAY,default=5s"`

	MetricsAddr string `env:"METRICS_ADDR,default=:9102"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	OpsTelegramChatID   int64  `env:"OPS_TELEGRAM_CHAT_ID"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
}

func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.PublisherBackend = strings.ToLower(strings.TrimSpace(cfg.PublisherBackend))
	cfg.FeedMode = strings.ToLower(strings.TrimSpace(cfg.FeedMode))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the rules that span more than one key.
func (c Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for postgres"))
		}
	case DriverSQLite:
		if c.DBSQLitePath == "" {
			errs = append(errs, errors.New("DB_SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	switch c.PublisherBackend {
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for kafka"))
		}
	case BackendRedis:
		if c.RedisAddr == "" || c.RedisStream == "" {
			errs = append(errs, errors.New("REDIS_ADDR and REDIS_STREAM are required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PUBLISHER_BACKEND %q", c.PublisherBackend))
	}

	switch c.FeedMode {
	case FeedModeStream:
		if c.FeedURL == "" {
			errs = append(errs, errors.New("FEED_URL is required for the stream feed"))
		}
	case FeedModePoll:
		if c.FeedRESTURL == "" || c.FeedPollInterval <= 0 {
			errs = append(errs, errors.New("FEED_REST_URL and a positive FEED_POLL_INTERVAL are required for the poll feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FEED_MODE %q", c.FeedMode))
	}

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts))
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, errors.New("RETRY_MAX_DELAY must not be below RETRY_BASE_DELAY"))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, errors.New("SHUTDOWN_GRACE must not be negative"))
	}
	if c.OpsTelegramChatID != 0 && c.TelegramBotToken == "" {
		errs = append(errs, errors.New("OPS_TELEGRAM_CHAT_ID requires TELEGRAM_BOT_TOKEN"))
	}

	return errors.Join(errs...)
}

// ValidateMailer checks the keys only the mailer binary needs.
func (c Config) ValidateMailer() error {
	if c.SMTPHost == "" || c.SMTPFrom == "" {
		return errors.New("SMTP_HOST and SMTP_FROM are required for the mailer")
	}
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the delivery ledger")
	}
	if c.DedupePendingTTL <= 0 || c.DedupeTTL < c.DedupePendingTTL {
		return errors.New("DEDUPE_PENDING_TTL must be positive and not above DEDUPE_TTL")
	}
	return nil
}
