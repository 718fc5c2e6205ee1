package domain

import "context"

type ClaimResult int

const (
	ClaimFailed ClaimResult = iota
	// ClaimAcquired: the caller owns delivery for the alert.
	ClaimAcquired
	// ClaimDelivered: the alert was already delivered.
	ClaimDelivered
	// ClaimBusy: another consumer holds an unexpired claim.
	ClaimBusy
)

// DeliveryLedger makes delivery idempotent on alert id.
type DeliveryLedger interface {
	Claim(ctx context.Context, alertID uint) (ClaimResult, error)
	MarkDelivered(ctx context.Context, alertID uint) error
	Release(ctx context.Context, alertID uint) error
}

type MailMessage struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}
