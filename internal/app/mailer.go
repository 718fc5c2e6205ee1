package app

import (
	"context"
	"fmt"

	"github.com/NasaVasa/pricealert/internal/config"
	"github.com/NasaVasa/pricealert/internal/delivery/notify"
	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/infra/kafka"
	"github.com/NasaVasa/pricealert/internal/infra/log"
	"github.com/NasaVasa/pricealert/internal/infra/mail"
	"github.com/NasaVasa/pricealert/internal/infra/metrics"
	"github.com/NasaVasa/pricealert/internal/infra/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type eventSource interface {
	Run(ctx context.Context, handler domain.NotificationHandler) error
}

// Mailer consumes notification events and sends one email per alert.
type Mailer struct {
	cfg       config.Config
	source    eventSource
	handler   domain.NotificationHandler
	metrics   *metrics.Recorder
	logger    *zap.Logger
	cleanupFn []func() error
}

func NewMailer(ctx context.Context, cfg config.Config) (*Mailer, error) {
	if err := cfg.ValidateMailer(); err != nil {
		return nil, err
	}
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	m := &Mailer{cfg: cfg, logger: logger, metrics: metrics.NewRecorder()}

	client, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	m.cleanupFn = append(m.cleanupFn, client.Close)

	retry := reconnectBackoff(cfg.RetryBaseDelay)
	switch cfg.PublisherBackend {
	case config.BackendKafka:
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, retry, logger)
		m.cleanupFn = append(m.cleanupFn, consumer.Close)
		m.source = consumer
	case config.BackendRedis:
		m.source = redis.NewStreamReader(client, redis.StreamReaderConfig{
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: cfg.RedisConsumer,
			Backoff:  retry,
		}, logger)
	default:
		m.cleanup()
		return nil, fmt.Errorf("unknown publisher backend %q", cfg.PublisherBackend)
	}

	ledger := redis.NewDeliveryLedger(client, "", cfg.DedupePendingTTL, cfg.DedupeTTL)
	mailer := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)
	m.handler = countingHandler{next: notify.NewConsumer(ledger, mailer, logger), metrics: m.metrics}
	return m, nil
}

func (m *Mailer) Run(ctx context.Context) error {
	m.logger.Info("pricealert mailer starting", zap.String("backend", m.cfg.PublisherBackend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.source.Run(gctx, m.handler)
	})
	if m.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return m.metrics.Serve(gctx, m.cfg.MetricsAddr, m.logger)
		})
	}
	return g.Wait()
}

func (m *Mailer) Shutdown() {
	m.logger.Info("pricealert mailer shutting down")
	m.cleanup()
	_ = m.logger.Sync()
}

func (m *Mailer) cleanup() {
	for i := len(m.cleanupFn) - 1; i >= 0; i-- {
		if err := m.cleanupFn[i](); err != nil {
			m.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	m.cleanupFn = nil
}

type countingHandler struct {
	next    domain.NotificationHandler
	metrics *metrics.Recorder
}

func (h countingHandler) Handle(ctx context.Context, event domain.NotificationEvent) error {
	err := h.next.Handle(ctx, event)
	h.metrics.NotificationHandled(err)
	return err
}
