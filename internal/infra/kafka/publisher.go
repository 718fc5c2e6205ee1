package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const eventTypeAlertTriggered = "alert.triggered"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes notification events synchronously. WriteMessages only
// returns once every in-sync replica has the message.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		BatchSize:    1,
		WriteTimeout: 10 * time.Second,
	}
	return newPublisher(writer, topic, logger)
}

func newPublisher(writer messageWriter, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{writer: writer, topic: topic, logger: logger.Named("kafka_publisher")}
}

func (p *Publisher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	p.logger.Debug("publishing event to kafka",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.Int("event_size", len(msg.Value)),
	)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// buildMessage keys by alert id so all events for one alert share a
// partition.
func buildMessage(event domain.NotificationEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.AlertID), 10)),
		Value: value,
		Time:  event.TriggeredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventTypeAlertTriggered)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}, nil
}
