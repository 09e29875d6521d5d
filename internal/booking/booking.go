package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/profile"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusCancelling holds a cancelled booking whose refund has not been confirmed.
	StatusCancelling Status = "cancelling"
)

// Withdrawn reports whether the booking will not take place.
func (s Status) Withdrawn() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCancelling
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled, StatusCancelling:
		return true
	}

	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentReleased      PaymentStatus = "released"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
)

const ReasonTimeout = "timeout"

type Response string

const (
	Accept Response = "accept"
	Reject Response = "reject"
)

type Booking struct {
	ID                 uuid.UUID
	CustomerID         uuid.UUID
	CameramanID        uuid.UUID
	Package            profile.Package
	AddOns             []profile.AddOn
	ScheduledAt        time.Time
	Location           profile.Location
	TotalPrice         int64
	PlatformCommission int64
	CameramanEarnings  int64
	Status             Status
	PaymentStatus      PaymentStatus
	CancelReason       string
	CancelledBy        *uuid.UUID
	Version            int
	RequestExpiresAt   time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AcceptedAt         *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// Reported is the status pair shown to clients; cancelling is not visible outside the core.
func (b *Booking) Reported() (Status, PaymentStatus) {
	if b.Status == StatusCancelling {
		return StatusCancelled, PaymentRefundPending
	}

	return b.Status, b.PaymentStatus
}

// Participant reports whether id is the booking's customer or cameraman.
func (b *Booking) Participant(id uuid.UUID) bool {
	return id == b.CustomerID || id == b.CameramanID
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role profile.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == profile.RoleAdmin
}
