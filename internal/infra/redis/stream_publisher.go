package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fieldEventID = "event_id"
	fieldAlertID = "alert_id"
	fieldData    = "data"
)

// StreamPublisher appends events to a Redis stream. The entry id in the
// XADD reply is the acknowledgement.
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, logger: logger.Named("redis_publisher")}
}

func (p *StreamPublisher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		ID:     "*",
		Values: map[string]interface{}{
			fieldEventID: event.EventID,
			fieldAlertID: event.AlertID,
			fieldData:    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	p.logger.Debug("event appended to stream",
		zap.String("stream", p.stream),
		zap.String("entry_id", id),
		zap.String("event_id", event.EventID),
	)
	return nil
}
