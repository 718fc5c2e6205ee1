package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	ledgerPending   = "pending"
	ledgerDelivered = "delivered"
)

// DeliveryLedger records which alerts have been mailed. A claim is held
// with a short TTL while delivery is in progress so a crashed consumer
// does not block redelivery forever.
type DeliveryLedger struct {
	client     *redis.Client
	prefix     string
	pendingTTL time.Duration
	ttl        time.Duration
}

func NewDeliveryLedger(client *redis.Client, prefix string, pendingTTL, ttl time.Duration) *DeliveryLedger {
	if prefix == "" {
		prefix = "pricealert:delivery:"
	}
	return &DeliveryLedger{client: client, prefix: prefix, pendingTTL: pendingTTL, ttl: ttl}
}

func (l *DeliveryLedger) key(alertID uint) string {
	return fmt.Sprintf("%s%d", l.prefix, alertID)
}

func (l *DeliveryLedger) Claim(ctx context.Context, alertID uint) (domain.ClaimResult, error) {
	key := l.key(alertID)
	acquired, err := l.client.SetNX(ctx, key, ledgerPending, l.pendingTTL).Result()
	if err != nil {
		return domain.ClaimFailed, fmt.Errorf("claim %s: %w", key, err)
	}
	if acquired {
		return domain.ClaimAcquired, nil
	}

	state, err := l.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between the two calls; let the caller try again.
		return domain.ClaimBusy, nil
	case err != nil:
		return domain.ClaimFailed, fmt.Errorf("read %s: %w", key, err)
	case state == ledgerDelivered:
		return domain.ClaimDelivered, nil
	default:
		return domain.ClaimBusy, nil
	}
}

func (l *DeliveryLedger) MarkDelivered(ctx context.Context, alertID uint) error {
	key := l.key(alertID)
	if err := l.client.Set(ctx, key, ledgerDelivered, l.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s delivered: %w", key, err)
	}
	return nil
}

func (l *DeliveryLedger) Release(ctx context.Context, alertID uint) error {
	key := l.key(alertID)
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
