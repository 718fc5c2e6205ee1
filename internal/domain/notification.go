package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// NotificationEvent is emitted once per successful trigger. Field names on
// the wire match the alert_queue payload consumed by the mailer.
type NotificationEvent struct {
	EventID          string           `json:"event_id"`
	AlertID          uint             `json:"alert_id"`
	OwnerID          uint             `json:"owner_id"`
	Instrument       string           `json:"instrument,omitempty"`
	TargetPrice      decimal.Decimal  `json:"target_price"`
	TriggerCondition TriggerCondition `json:"trigger_condition"`
	ObservedPrice    decimal.Decimal  `json:"price"`
	ContactAddress   string           `json:"email"`
	PreviousState    AlertState       `json:"state"`
	TriggeredAt      time.Time        `json:"triggered_at"`
}

type Publisher interface {
	// Publish returns nil only after the broker has durably accepted the
	// event.
	Publish(ctx context.Context, event NotificationEvent) error
}

type IncidentKind string

const (
	// IncidentPublishExhausted: the alert is TRIGGERED but its event was
	// never accepted by the publisher. Needs reconciliation.
	IncidentPublishExhausted IncidentKind = "publish_exhausted"
	IncidentScanExhausted    IncidentKind = "scan_exhausted"
	IncidentTransitionFailed IncidentKind = "transition_failed"
)

type Incident struct {
	Kind       IncidentKind
	AlertID    uint
	Event      *NotificationEvent
	Err        error
	OccurredAt time.Time
}

type IncidentReporter interface {
	Report(ctx context.Context, incident Incident)
}

// NotificationHandler consumes published events. A nil return acknowledges
// the event; an error asks the transport to deliver it again.
type NotificationHandler interface {
	Handle(ctx context.Context, event NotificationEvent) error
}
