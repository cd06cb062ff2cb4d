// Package payments turns at-least-once payment notifications into
// exactly-once credit grants. The idempotency registry and the credit ledger
// are the source of truth for "money is correct"; order materialization and
// notification are re-drivable side effects layered on top.
package payments

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Reconciliation states. A notification walks received -> claimed ->
// ledger_applied -> orders_materialized -> notified -> done; rejected and
// duplicate are terminal shortcuts.
const (
	StateReceived           = "received"
	StateClaimed            = "claimed"
	StateLedgerApplied      = "ledger_applied"
	StateOrdersMaterialized = "orders_materialized"
	StateNotified           = "notified"
	StateDone               = "done"
	StateRejected           = "rejected"
	StateDuplicate          = "duplicate"
)

// Result statuses reported to the gateway.
const (
	StatusApplied   = "applied"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
	StatusIgnored   = "ignored"
)

var (
	// ErrValidation marks a malformed notification; permanent, never retried.
	ErrValidation = errors.New("invalid payment notification")
	// ErrUnauthorized marks a cross-identity verification attempt.
	ErrUnauthorized = errors.New("payment session belongs to a different account")
)

// Notification is a validated payment confirmation handed to the engine by
// the gateway. Email is the customer identity embedded in the payment
// metadata and is what client-initiated verification is checked against.
type Notification struct {
	Provider    string `json:"provider" validate:"required"`
	ExternalKey string `json:"external_key" validate:"required,max=191"`
	EventType   string `json:"event_type" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Credits     int64  `json:"credits" validate:"required,gt=0"`
	PhotoCount  int    `json:"photo_count" validate:"gte=0"`
	RawPayload  []byte `json:"-"`
	// SignatureVerified records whether this notification arrived through the
	// webhook with a valid provider signature. Client-initiated verification
	// carries no signature and leaves it false.
	SignatureVerified bool `json:"-"`
}

var validate = validator.New()

// Validate checks the notification schema. Failures are permanent.
func (n *Notification) Validate() error {
	if err := validate.Struct(n); err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}

// Result is the reconciliation outcome for one notification.
type Result struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	UserID         uint   `json:"user_id,omitempty"`
	CreditsApplied int64  `json:"credits_applied,omitempty"`
	OrdersCreated  int    `json:"orders_created,omitempty"`
	Message        string `json:"message,omitempty"`
}
