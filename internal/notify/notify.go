// Package notify carries user-facing events out of the core services.
// Delivery (push, SMS) happens downstream of the dispatcher.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BookingRequest      Type = "booking_request"
	BookingAccepted     Type = "booking_accepted"
	BookingRejected     Type = "booking_rejected"
	BookingCancelled    Type = "booking_cancelled"
	PaymentReceived     Type = "payment_received"
	PaymentConfirmed    Type = "payment_confirmed"
	PayoutProcessed     Type = "payout_processed"
	WithdrawalCompleted Type = "withdrawal_completed"
)

type Event struct {
	Type       Type              `json:"type"`
	Recipient  uuid.UUID         `json:"recipient_id"`
	BookingID  *uuid.UUID        `json:"booking_id,omitempty"`
	PayoutID   *uuid.UUID        `json:"payout_id,omitempty"`
	Amount     int64             `json:"amount,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// LogDispatcher writes events to the structured log. Used when no broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, ev Event) error {
	slog.Info("notification",
		"type", ev.Type,
		"recipient", ev.Recipient,
		"booking_id", ev.BookingID,
		"payout_id", ev.PayoutID,
		"amount", ev.Amount,
	)

	return nil
}

// Send dispatches ev and logs failures. Notification loss never fails the operation that raised it.
func Send(ctx context.Context, d Dispatcher, ev Event) {
	if d == nil {
		return
	}

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if err := d.Dispatch(ctx, ev); err != nil {
		slog.Warn("failed to dispatch notification", "type", ev.Type, "recipient", ev.Recipient, "error", err)
	}
}
