package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriggerCoordinator turns crossings into retired alerts and published
// events. The conditional transition is the only guard against duplicate
// notifications: whoever loses it publishes nothing.
type TriggerCoordinator struct {
	store     domain.AlertStore
	publisher domain.Publisher
	incidents domain.IncidentReporter
	retry     RetryPolicy
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type CoordinatorOption func(*TriggerCoordinator)

func WithRecorder(recorder Recorder) CoordinatorOption {
	return func(c *TriggerCoordinator) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *TriggerCoordinator) { c.now = now }
}

func WithEventIDs(newID func() string) CoordinatorOption {
	return func(c *TriggerCoordinator) { c.newID = newID }
}

func NewTriggerCoordinator(store domain.AlertStore, publisher domain.Publisher, incidents domain.IncidentReporter, retry RetryPolicy, logger *zap.Logger, opts ...CoordinatorOption) *TriggerCoordinator {
	if incidents == nil {
		incidents = nopIncidentReporter{}
	}
	c := &TriggerCoordinator{
		store:     store,
		publisher: publisher,
		incidents: incidents,
		retry:     retry,
		recorder:  nopRecorder{},
		logger:    logger.Named("coordinator"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTick scans the active alerts once for tick and settles every
// crossing. It returns how many alerts this call retired as triggered.
// A scan broken by a transient store error is restarted; alerts already
// retired are no longer CREATED and cannot be matched again. Only rows
// marked domain.ErrInvalidAlert are skipped; any other scan error fails
// the tick.
func (c *TriggerCoordinator) HandleTick(ctx context.Context, tick domain.Tick) (int, error) {
	log := c.logger.With(zap.String("instrument", tick.Instrument), zap.String("price", tick.Price.String()))

	triggered := 0
	scan := func(ctx context.Context) error {
		for crossing, err := range Match(tick.Price, c.store.StreamActive(ctx)) {
			if err != nil {
				if errors.Is(err, domain.ErrInvalidAlert) {
					log.Warn("skipping unreadable alert row", zap.Error(err))
					continue
				}
				return err
			}
			c.recorder.AlertCrossed()
			if c.settle(ctx, tick, crossing) {
				triggered++
			}
		}
		return nil
	}

	err := c.retry.Do(ctx, scan, func(attempt int, err error) {
		log.Warn("alert scan interrupted, restarting", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		log.Error("alert scan failed, tick dropped", zap.Error(err))
		c.incidents.Report(context.WithoutCancel(ctx), domain.Incident{
			Kind:       domain.IncidentScanExhausted,
			Err:        err,
			OccurredAt: c.now(),
		})
		return triggered, fmt.Errorf("scan active alerts: %w", err)
	}
	return triggered, nil
}

// settle reports whether this call won the transition for the alert.
func (c *TriggerCoordinator) settle(ctx context.Context, tick domain.Tick, crossing Crossing) bool {
	alert := crossing.Alert
	log := c.logger.With(
		zap.Uint("alert_id", alert.ID),
		zap.String("condition", string(alert.Condition)),
		zap.String("target_price", alert.TargetPrice.String()),
		zap.String("price", crossing.ObservedPrice.String()),
	)

	won := false
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		ok, err := c.store.TryTransition(ctx, alert.ID, domain.AlertStateCreated, domain.AlertStateTriggered)
		if err != nil {
			return err
		}
		won = ok
		return nil
	}, func(attempt int, err error) {
		log.Warn("alert transition failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		log.Error("alert transition failed", zap.Error(err))
		c.incidents.Report(context.WithoutCancel(ctx), domain.Incident{
			Kind:       domain.IncidentTransitionFailed,
			AlertID:    alert.ID,
			Err:        err,
			OccurredAt: c.now(),
		})
		return false
	}
	if !won {
		c.recorder.TransitionConflict()
		log.Debug("alert already retired by another actor")
		return false
	}
	c.recorder.AlertTriggered()

	event := c.buildEvent(tick, crossing)
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
		}
		return nil
	}, func(attempt int, err error) {
		c.recorder.PublishRetried()
		log.Warn("notification publish failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		c.recorder.PublishFailed()
		log.Error("alert triggered but notification not published, reconciliation required",
			zap.String("event_id", event.EventID), zap.Error(err))
		c.incidents.Report(context.WithoutCancel(ctx), domain.Incident{
			Kind:       domain.IncidentPublishExhausted,
			AlertID:    alert.ID,
			Event:      &event,
			Err:        err,
			OccurredAt: c.now(),
		})
		return true
	}

	log.Info("alert triggered", zap.String("event_id", event.EventID))
	return true
}

func (c *TriggerCoordinator) buildEvent(tick domain.Tick, crossing Crossing) domain.NotificationEvent {
	alert := crossing.Alert
	return domain.NotificationEvent{
		EventID:          c.newID(),
		AlertID:          alert.ID,
		OwnerID:          alert.OwnerID,
		Instrument:       tick.Instrument,
		TargetPrice:      alert.TargetPrice,
		TriggerCondition: alert.Condition,
		ObservedPrice:    crossing.ObservedPrice,
		ContactAddress:   alert.ContactAddress,
		PreviousState:    alert.State,
		TriggeredAt:      c.now(),
	}
}
