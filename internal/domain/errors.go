package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid alert state")
	ErrInvalidCondition = errors.New("invalid trigger condition")
	ErrInvalidAlert     = errors.New("invalid alert record")
	ErrInvalidTick      = errors.New("invalid tick")

	// ErrStoreUnavailable marks store failures worth retrying.
	ErrStoreUnavailable = errors.New("alert store unavailable")
	ErrPublishFailed    = errors.New("notification publish failed")
)

// IsTransient reports whether err is an I/O failure that a bounded retry
// may recover from.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrPublishFailed)
}
