package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type StreamReaderConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Backoff  func(attempt int) time.Duration
}

// StreamReader consumes a stream through a consumer group. Entries left
// pending by an earlier run of the same consumer are replayed first.
type StreamReader struct {
	client *redis.Client
	cfg    StreamReaderConfig
	logger *zap.Logger
}

func NewStreamReader(client *redis.Client, cfg StreamReaderConfig, logger *zap.Logger) *StreamReader {
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(int) time.Duration { return time.Second }
	}
	return &StreamReader{client: client, cfg: cfg, logger: logger.Named("redis_reader")}
}

func (r *StreamReader) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", r.cfg.Group, r.cfg.Stream, err)
	}
	return nil
}

// Run blocks until ctx is done.
func (r *StreamReader) Run(ctx context.Context, handler domain.NotificationHandler) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}

	cursor := "0"
	failures := 0
	for ctx.Err() == nil {
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			Streams:  []string{r.cfg.Stream, cursor},
			Count:    16,
			Block:    r.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			cursor = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			r.logger.Warn("xreadgroup failed", zap.Int("attempt", failures), zap.Error(err))
			if !sleep(ctx, r.cfg.Backoff(failures)) {
				break
			}
			continue
		}
		failures = 0

		delivered := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				delivered++
				if !r.process(ctx, handler, msg) {
					return nil
				}
			}
		}
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
	return nil
}

// process reports false only when ctx ended before the entry was handled.
func (r *StreamReader) process(ctx context.Context, handler domain.NotificationHandler, msg redis.XMessage) bool {
	log := r.logger.With(zap.String("entry_id", msg.ID))

	event, err := decodeEntry(msg)
	if err != nil {
		log.Error("dropping undecodable entry", zap.Error(err))
	} else {
		for attempt := 1; ; attempt++ {
			err := handler.Handle(ctx, event)
			if err == nil {
				break
			}
			delay := r.cfg.Backoff(attempt)
			log.Warn("notification handling failed, retrying",
				zap.Uint("alert_id", event.AlertID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if !sleep(ctx, delay) {
				return false
			}
		}
	}

	if err := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err(); err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn("xack failed, entry may be redelivered", zap.Error(err))
	}
	return true
}

func decodeEntry(msg redis.XMessage) (domain.NotificationEvent, error) {
	raw, ok := msg.Values[fieldData].(string)
	if !ok {
		return domain.NotificationEvent{}, fmt.Errorf("entry has no %q field", fieldData)
	}
	var event domain.NotificationEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return domain.NotificationEvent{}, fmt.Errorf("decode entry: %w", err)
	}
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
