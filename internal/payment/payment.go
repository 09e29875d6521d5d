package payment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

const MethodOrangeMoney = "orange_money"

// Failure reasons recorded by the service itself. Provider messages are stored verbatim.
const (
	ReasonTimeout          = "timeout"
	ReasonBookingCancelled = "booking_cancelled"
	ReasonDeclined         = "declined"
)

// InFlight reports whether the provider may still settle the payment.
func (s Status) InFlight() bool {
	return s == StatusInitiated || s == StatusPending
}

// Live reports whether the payment blocks a new payment for the same booking.
func (s Status) Live() bool {
	return s.InFlight() || s == StatusCompleted
}

// CanTransition encodes the forward-only lifecycle.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusInitiated:
		return to == StatusPending || to == StatusCompleted || to == StatusFailed
	case StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		// the provider captured the money after the payment was given up on
		return to == StatusCompleted
	case StatusCompleted:
		return to == StatusRefunded
	}

	return false
}

type Payment struct {
	ID                   uuid.UUID
	BookingID            uuid.UUID
	CustomerID           uuid.UUID
	CameramanID          uuid.UUID
	CustomerPhoneNumber  string
	CameramanPhoneNumber string
	Amount               int64
	PlatformFee          int64
	CameramanAmount      int64
	Currency             string
	Method               string
	ExternalID           string
	Status               Status
	FailureReason        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	RefundedAt           *time.Time
	// RefundRequestedAt is set once the provider has been asked to refund.
	RefundRequestedAt    *time.Time
}

// OrderID is the merchant reference sent to the provider. Re-initiating with the same
// order id lets the provider deduplicate.
func (p *Payment) OrderID() string {
	return p.ID.String()
}

// RefundReference is sent with every refund request of the payment so the provider
// can recognise a repeated request.
func (p *Payment) RefundReference() string {
	return "refund-" + p.ID.String()
}
