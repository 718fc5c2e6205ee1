package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type AlertState string

const (
	AlertStateCreated   AlertState = "created"
	AlertStateTriggered AlertState = "triggered"
	AlertStateDeleted   AlertState = "deleted"
)

// CanTransitionTo reports whether the state machine allows s -> next.
// Only CREATED has outgoing edges; TRIGGERED and DELETED are terminal.
func (s AlertState) CanTransitionTo(next AlertState) bool {
	if s != AlertStateCreated {
		return false
	}
	return next == AlertStateTriggered || next == AlertStateDeleted
}

func (s AlertState) Terminal() bool {
	return s == AlertStateTriggered || s == AlertStateDeleted
}

func ParseAlertState(input string) (AlertState, error) {
	state := AlertState(strings.ToLower(strings.TrimSpace(input)))
	switch state {
	case AlertStateCreated, AlertStateTriggered, AlertStateDeleted:
		return state, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, input)
	}
}

type TriggerCondition string

const (
	ConditionAbove TriggerCondition = "above"
	ConditionBelow TriggerCondition = "below"
)

func ParseTriggerCondition(input string) (TriggerCondition, error) {
	condition := TriggerCondition(strings.ToLower(strings.TrimSpace(input)))
	switch condition {
	case ConditionAbove, ConditionBelow:
		return condition, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCondition, input)
	}
}

type Alert struct {
	ID             uint
	OwnerID        uint
	TargetPrice    decimal.Decimal
	Condition      TriggerCondition
	ContactAddress string
	State          AlertState
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the record invariants a scan relies on. A record that
// fails here is skipped by the store rather than matched.
func (a Alert) Validate() error {
	if !a.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: target price %s must be positive", ErrInvalidAlert, a.TargetPrice.String())
	}
	if _, err := ParseTriggerCondition(string(a.Condition)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	if err := ValidateContactAddress(a.ContactAddress); err != nil {
		return err
	}
	return nil
}

func ValidateContactAddress(address string) error {
	if err := validate.Var(address, "required,email"); err != nil {
		return fmt.Errorf("%w: contact address %q", ErrInvalidAlert, address)
	}
	return nil
}
