package domain

import (
	"context"
	"iter"
)

type AlertStore interface {
	// StreamActive lazily yields every CREATED alert in ascending id order.
	// Each call opens a fresh scan; nothing is shared between calls.
	StreamActive(ctx context.Context) iter.Seq2[Alert, error]
	// TryTransition sets the state to `to` only if it currently equals
	// `from`. A failed precondition returns false and no error.
	TryTransition(ctx context.Context, alertID uint, from, to AlertState) (bool, error)
	GetByID(ctx context.Context, alertID uint) (*Alert, error)
	Create(ctx context.Context, alert *Alert) error
	ListByOwner(ctx context.Context, ownerID uint, state *AlertState) ([]Alert, error)
}
