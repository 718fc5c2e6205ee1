package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handlers struct {
	alertUC *usecase.AlertUsecase
	logger  *zap.Logger
}

func NewHandlers(alertUC *usecase.AlertUsecase, logger *zap.Logger) *Handlers {
	return &Handlers{alertUC: alertUC, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
		return
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	ownerID := uint(userID)

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("telegram_user_id", userID),
		zap.String("command", command),
	)

	switch command {
	case "start", "help":
		h.reply(api, chatID, HelpText)
	case "add_alert":
		target, condition, email, err := ParseAddAlertArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /add_alert <target_price> <above|below> <email>")
			return
		}
		alert, err := h.alertUC.AddAlert(ctx, ownerID, target, condition, email)
		if err != nil {
			h.logger.Warn("add_alert failed", zap.Int64("telegram_user_id", userID), zap.Error(err))
			h.reply(api, chatID, h.alertErrorMessage(err))
			return
		}
		h.logger.Info("add_alert complete", zap.Int64("telegram_user_id", userID), zap.Uint("alert_id", alert.ID))
		h.reply(api, chatID, fmt.Sprintf("Alert created: #%d %s %s, mail to %s", alert.ID, alert.Condition, alert.TargetPrice.String(), alert.ContactAddress))
	case "alerts":
		alerts, err := h.alertUC.ListAlerts(ctx, ownerID, ParseStateFilter(args))
		if err != nil {
			h.logger.Warn("alerts list failed", zap.Int64("telegram_user_id", userID), zap.Error(err))
			h.reply(api, chatID, h.alertErrorMessage(err))
			return
		}
		if len(alerts) == 0 {
			h.reply(api, chatID, "No alerts. Use /add_alert to create one.")
			return
		}
		h.reply(api, chatID, formatAlertList(alerts))
	case "delete":
		alertID, err := ParseAlertID(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /delete <alert_id>")
			return
		}
		if err := h.alertUC.DeleteAlert(ctx, ownerID, alertID); err != nil {
			h.logger.Warn("delete failed", zap.Int64("telegram_user_id", userID), zap.Uint("alert_id", alertID), zap.Error(err))
			h.reply(api, chatID, h.alertErrorMessage(err))
			return
		}
		h.logger.Info("delete complete", zap.Int64("telegram_user_id", userID), zap.Uint("alert_id", alertID))
		h.reply(api, chatID, fmt.Sprintf("Alert #%d deleted.", alertID))
	default:
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

func (h *Handlers) alertErrorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrMissingFields):
		return "Target price, condition and email are all required."
	case errors.Is(err, usecase.ErrInvalidTarget):
		return "Invalid target price. Use a positive decimal like 50000.5."
	case errors.Is(err, usecase.ErrInvalidCondition):
		return "Invalid condition. Use above or below."
	case errors.Is(err, usecase.ErrInvalidEmail):
		return "Invalid email address."
	case errors.Is(err, usecase.ErrInvalidStateQuery):
		return "Unknown state. Use created, triggered or deleted."
	case errors.Is(err, usecase.ErrAlertNotFound):
		return "Alert not found."
	case errors.Is(err, usecase.ErrAlertNotActive):
		return "Alert already triggered or deleted."
	}

	h.logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func formatAlertList(alerts []domain.Alert) string {
	const maxMessageLen = 3800

	var builder strings.Builder
	builder.WriteString("Your alerts:\n")
	for i, alert := range alerts {
		line := fmt.Sprintf("#%d [%s] %s %s -> %s\n", alert.ID, alert.State, alert.Condition, alert.TargetPrice.String(), alert.ContactAddress)
		if builder.Len()+len(line) > maxMessageLen {
			builder.WriteString(fmt.Sprintf("...and %d more", len(alerts)-i))
			break
		}
		builder.WriteString(line)
	}
	return builder.String()
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
