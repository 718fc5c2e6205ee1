package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, b.api, update)
		}
	}
}

// IncidentNotifier posts operational incidents to an ops chat. It
// satisfies domain.IncidentReporter.
type IncidentNotifier struct {
	api    Sender
	chatID int64
	logger *zap.Logger
}

func NewIncidentNotifier(api Sender, chatID int64, logger *zap.Logger) *IncidentNotifier {
	return &IncidentNotifier{api: api, chatID: chatID, logger: logger.Named("ops_telegram")}
}

func (n *IncidentNotifier) Report(_ context.Context, incident domain.Incident) {
	msg := tgbotapi.NewMessage(n.chatID, FormatIncident(incident))
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("failed to notify", zap.String("kind", string(incident.Kind)), zap.Error(err))
	}
}

func FormatIncident(incident domain.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[pricealert] %s", incident.Kind)
	if incident.AlertID != 0 {
		fmt.Fprintf(&b, " alert #%d", incident.AlertID)
	}
	if !incident.OccurredAt.IsZero() {
		fmt.Fprintf(&b, " at %s", incident.OccurredAt.UTC().Format("2006-01-02 15:04:05Z"))
	}
	if incident.Event != nil {
		fmt.Fprintf(&b, "\nevent %s: %s %s observed %s, mail %s",
			incident.Event.EventID,
			incident.Event.TriggerCondition,
			incident.Event.TargetPrice.String(),
			incident.Event.ObservedPrice.String(),
			incident.Event.ContactAddress,
		)
	}
	if incident.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", incident.Err)
	}
	if incident.Kind == domain.IncidentPublishExhausted {
		b.WriteString("\nAlert is TRIGGERED but no notification was published; reconcile manually.")
	}
	return b.String()
}
