package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrInvalidTarget     = errors.New("invalid target price")
	ErrInvalidCondition  = errors.New("invalid trigger condition")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidStateQuery = errors.New("invalid state")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrAlertNotActive    = errors.New("alert already triggered or deleted")
)

// AlertUsecase is the write/read contract the alert CRUD surface uses.
// Owners are already authenticated by the time they get here.
type AlertUsecase struct {
	alerts domain.AlertStore
}

func NewAlertUsecase(alerts domain.AlertStore) *AlertUsecase {
	return &AlertUsecase{alerts: alerts}
}

func (u *AlertUsecase) AddAlert(ctx context.Context, ownerID uint, targetPrice, condition, email string) (*domain.Alert, error) {
	if strings.TrimSpace(targetPrice) == "" || strings.TrimSpace(condition) == "" || strings.TrimSpace(email) == "" {
		return nil, ErrMissingFields
	}

	target, err := decimal.NewFromString(strings.TrimSpace(targetPrice))
	if err != nil || !target.IsPositive() {
		return nil, ErrInvalidTarget
	}

	normalized, err := domain.ParseTriggerCondition(condition)
	if err != nil {
		return nil, ErrInvalidCondition
	}

	address := strings.TrimSpace(email)
	if err := domain.ValidateContactAddress(address); err != nil {
		return nil, ErrInvalidEmail
	}

	alert := &domain.Alert{
		OwnerID:        ownerID,
		TargetPrice:    target,
		Condition:      normalized,
		ContactAddress: address,
		State:          domain.AlertStateCreated,
	}
	if err := u.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns the owner's alerts, optionally filtered by state.
func (u *AlertUsecase) ListAlerts(ctx context.Context, ownerID uint, state string) ([]domain.Alert, error) {
	var filter *domain.AlertState
	if strings.TrimSpace(state) != "" {
		parsed, err := domain.ParseAlertState(state)
		if err != nil {
			return nil, ErrInvalidStateQuery
		}
		filter = &parsed
	}
	return u.alerts.ListByOwner(ctx, ownerID, filter)
}

// DeleteAlert soft-deletes a CREATED alert. It races the coordinator on the
// same conditional transition, so exactly one of them wins.
func (u *AlertUsecase) DeleteAlert(ctx context.Context, ownerID uint, alertID uint) error {
	alert, err := u.alerts.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	if alert.OwnerID != ownerID {
		return ErrAlertNotFound
	}

	ok, err := u.alerts.TryTransition(ctx, alertID, domain.AlertStateCreated, domain.AlertStateDeleted)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlertNotActive
	}
	return nil
}
