package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the notification topic as part of a consumer group. A
// message is committed only after the handler accepted it; until then the
// handler is retried in place so later offsets cannot overtake it.
type Consumer struct {
	reader  messageReader
	backoff func(attempt int) time.Duration
	logger  *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, backoff func(int) time.Duration, logger *zap.Logger) *Consumer {
	named := logger.Named("kafka_consumer")
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 1 << 20,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			named.Sugar().Errorf(msg, args...)
		}),
	})
	return newConsumer(reader, backoff, named)
}

func newConsumer(reader messageReader, backoff func(int) time.Duration, logger *zap.Logger) *Consumer {
	if backoff == nil {
		backoff = func(int) time.Duration { return time.Second }
	}
	return &Consumer{reader: reader, backoff: backoff, logger: logger}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context, handler domain.NotificationHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		log := c.logger.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

		var event domain.NotificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("dropping undecodable message", zap.Error(err))
		} else if !c.handle(ctx, log, handler, event) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warn("commit failed, message may be redelivered", zap.Error(err))
		}
	}
}

// handle reports false only when ctx ended before the handler succeeded.
func (c *Consumer) handle(ctx context.Context, log *zap.Logger, handler domain.NotificationHandler, event domain.NotificationEvent) bool {
	for attempt := 1; ; attempt++ {
		err := handler.Handle(ctx, event)
		if err == nil {
			return true
		}
		delay := c.backoff(attempt)
		log.Warn("notification handling failed, retrying",
			zap.Uint("alert_id", event.AlertID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
