package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

// ErrDeliveryInProgress is returned while another consumer holds the claim
// for the same alert; the transport retries later.
var ErrDeliveryInProgress = errors.New("delivery in progress elsewhere")

// Consumer mails the owner of each triggered alert. Delivery is
// at-least-once from the transport and deduplicated here on alert id.
type Consumer struct {
	ledger domain.DeliveryLedger
	mailer domain.Mailer
	logger *zap.Logger
}

func NewConsumer(ledger domain.DeliveryLedger, mailer domain.Mailer, logger *zap.Logger) *Consumer {
	return &Consumer{ledger: ledger, mailer: mailer, logger: logger.Named("notify")}
}

func (c *Consumer) Handle(ctx context.Context, event domain.NotificationEvent) error {
	log := c.logger.With(zap.Uint("alert_id", event.AlertID), zap.String("event_id", event.EventID))

	claim, err := c.ledger.Claim(ctx, event.AlertID)
	if err != nil {
		return err
	}
	switch claim {
	case domain.ClaimDelivered:
		log.Info("duplicate notification skipped")
		return nil
	case domain.ClaimBusy:
		return ErrDeliveryInProgress
	case domain.ClaimAcquired:
	default:
		return fmt.Errorf("unexpected claim result %d", claim)
	}

	if err := c.mailer.Send(ctx, Compose(event)); err != nil {
		if releaseErr := c.ledger.Release(context.WithoutCancel(ctx), event.AlertID); releaseErr != nil {
			log.Warn("claim release failed", zap.Error(releaseErr))
		}
		return fmt.Errorf("send mail: %w", err)
	}

	if err := c.ledger.MarkDelivered(context.WithoutCancel(ctx), event.AlertID); err != nil {
		// The mail went out. A redelivery after the pending TTL may repeat it.
		log.Warn("mark delivered failed", zap.Error(err))
	}
	log.Info("notification delivered", zap.String("to", event.ContactAddress))
	return nil
}

// Compose renders the mail for event.
func Compose(event domain.NotificationEvent) domain.MailMessage {
	instrument := strings.ToUpper(strings.TrimSpace(event.Instrument))
	if instrument == "" {
		instrument = "BTC"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Your %s alert has triggered.\n\n", instrument)
	fmt.Fprintf(&body, "Condition: price %s %s\n", event.TriggerCondition, event.TargetPrice.String())
	fmt.Fprintf(&body, "Observed price: %s\n", event.ObservedPrice.String())
	if !event.TriggeredAt.IsZero() {
		fmt.Fprintf(&body, "Triggered at: %s\n", event.TriggeredAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&body, "\nAlert #%d is now closed and will not fire again.\n", event.AlertID)

	return domain.MailMessage{
		To:      event.ContactAddress,
		Subject: instrument + " price reached.",
		Body:    body.String(),
	}
}
