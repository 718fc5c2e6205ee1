package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NasaVasa/pricealert/internal/config"
	"github.com/NasaVasa/pricealert/internal/delivery/telegram"
	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/infra/binance"
	"github.com/NasaVasa/pricealert/internal/infra/db"
	"github.com/NasaVasa/pricealert/internal/infra/kafka"
	"github.com/NasaVasa/pricealert/internal/infra/log"
	"github.com/NasaVasa/pricealert/internal/infra/metrics"
	"github.com/NasaVasa/pricealert/internal/infra/redis"
	"github.com/NasaVasa/pricealert/internal/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxReconnectDelay = 2 * time.Minute

// App is the matching engine: feed, coordinator, publisher, metrics and
// the optional Telegram alert surface.
type App struct {
	cfg       config.Config
	alerting  *usecase.AlertingManager
	bot       *telegram.Bot
	metrics   *metrics.Recorder
	logger    *zap.Logger
	cleanupFn []func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, metrics: metrics.NewRecorder()}
	if err := a.build(ctx); err != nil {
		a.cleanup()
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	dbConn, err := db.Open(cfg, a.logger)
	if err != nil {
		return err
	}
	a.cleanupFn = append(a.cleanupFn, func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	alertRepo := db.NewAlertRepository(dbConn, a.logger)

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		return err
	}

	source, err := a.newTickSource()
	if err != nil {
		return err
	}

	incidents := usecase.MultiIncidentReporter{usecase.NewLogIncidentReporter(a.logger), a.metrics}
	if cfg.TelegramBotToken != "" {
		api, err := telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		if cfg.OpsTelegramChatID != 0 {
			incidents = append(incidents, telegram.NewIncidentNotifier(api, cfg.OpsTelegramChatID, a.logger))
		}
		handlers := telegram.NewHandlers(usecase.NewAlertUsecase(alertRepo), a.logger.Named("telegram"))
		a.bot = telegram.NewBot(api, handlers, cfg.TelegramPollTimeout)
	}

	retry := usecase.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.BaseDelay = cfg.RetryBaseDelay
	retry.MaxDelay = cfg.RetryMaxDelay

	coordinator := usecase.NewTriggerCoordinator(alertRepo, publisher, incidents, retry, a.logger, usecase.WithRecorder(a.metrics))
	a.alerting = usecase.NewAlertingManager(source, coordinator, a.metrics, usecase.AlertingConfig{
		Workers:       cfg.Workers,
		ShutdownGrace: cfg.ShutdownGrace,
	}, a.logger)
	return nil
}

func (a *App) newPublisher(ctx context.Context) (domain.Publisher, error) {
	switch a.cfg.PublisherBackend {
	case config.BackendKafka:
		publisher := kafka.NewPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.logger)
		a.cleanupFn = append(a.cleanupFn, publisher.Close)
		return publisher, nil
	case config.BackendRedis:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.cleanupFn = append(a.cleanupFn, client.Close)
		return redis.NewStreamPublisher(client, a.cfg.RedisStream, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown publisher backend %q", a.cfg.PublisherBackend)
	}
}

func (a *App) newTickSource() (domain.TickSource, error) {
	switch a.cfg.FeedMode {
	case config.FeedModeStream:
		return binance.NewWSSource(binance.WSConfig{
			URL:         a.cfg.FeedURL,
			Instrument:  a.cfg.FeedInstrument,
			ReadTimeout: a.cfg.FeedReadTimeout,
			Backoff:     reconnectBackoff(a.cfg.FeedReconnectDelay),
		}, a.logger), nil
	case config.FeedModePoll:
		return binance.NewRESTSource(a.cfg.FeedRESTURL, a.cfg.FeedInstrument, a.cfg.FeedPollInterval, a.cfg.FeedHTTPTimeout, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown feed mode %q", a.cfg.FeedMode)
	}
}

// reconnectBackoff doubles base per attempt up to maxReconnectDelay.
func reconnectBackoff(base time.Duration) func(int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return func(attempt int) time.Duration {
		delay := base
		for i := 1; i < attempt && delay < maxReconnectDelay; i++ {
			delay *= 2
		}
		return min(delay, maxReconnectDelay)
	}
}

// Run blocks until ctx is done or a component fails. The alerting
// pipeline is always given the chance to drain before Run returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("pricealert engine starting",
		zap.String("feed_mode", a.cfg.FeedMode),
		zap.String("publisher", a.cfg.PublisherBackend),
		zap.Int("workers", a.cfg.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.alerting.Run(gctx); err != nil {
			return fmt.Errorf("alerting: %w", err)
		}
		if ctx.Err() == nil {
			return errors.New("alerting: tick source closed")
		}
		return nil
	})
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.cfg.MetricsAddr, a.logger)
		})
	}
	if a.bot != nil {
		g.Go(func() error {
			return a.bot.Start(gctx)
		})
	}

	a.logger.Info("pricealert engine started")
	return g.Wait()
}

func (a *App) Shutdown() {
	a.logger.Info("pricealert engine shutting down")
	if a.alerting != nil {
		a.alerting.Stop()
	}
	a.cleanup()
	_ = a.logger.Sync()
}

func (a *App) cleanup() {
	for i := len(a.cleanupFn) - 1; i >= 0; i-- {
		if err := a.cleanupFn[i](); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	a.cleanupFn = nil
}
