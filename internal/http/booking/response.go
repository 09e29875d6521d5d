package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type bookingResponse struct {
	ID                 uuid.UUID             `json:"id"`
	CustomerID         uuid.UUID             `json:"customer_id"`
	CameramanID        uuid.UUID             `json:"cameraman_id"`
	Package            profile.Package       `json:"package"`
	AddOns             []profile.AddOn       `json:"add_ons"`
	ScheduledAt        time.Time             `json:"scheduled_at"`
	Location           profile.Location      `json:"location"`
	TotalPrice         int64                 `json:"total_price"`
	PlatformCommission int64                 `json:"platform_commission"`
	CameramanEarnings  int64                 `json:"cameraman_earnings"`
	Status             booking.Status        `json:"status"`
	PaymentStatus      booking.PaymentStatus `json:"payment_status"`
	CancelReason       string                `json:"cancel_reason,omitempty"`
	CancelledBy        *uuid.UUID            `json:"cancelled_by,omitempty"`
	RequestExpiresAt   time.Time             `json:"request_expires_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	AcceptedAt         *time.Time            `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
}

func ToResponse(b *booking.Booking) bookingResponse {
	status, paymentStatus := b.Reported()

	addOns := b.AddOns
	if addOns == nil {
		addOns = []profile.AddOn{}
	}

	return bookingResponse{
		ID:                 b.ID,
		CustomerID:         b.CustomerID,
		CameramanID:        b.CameramanID,
		Package:            b.Package,
		AddOns:             addOns,
		ScheduledAt:        b.ScheduledAt,
		Location:           b.Location,
		TotalPrice:         b.TotalPrice,
		PlatformCommission: b.PlatformCommission,
		CameramanEarnings:  b.CameramanEarnings,
		Status:             status,
		PaymentStatus:      paymentStatus,
		CancelReason:       b.CancelReason,
		CancelledBy:        b.CancelledBy,
		RequestExpiresAt:   b.RequestExpiresAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		AcceptedAt:         b.AcceptedAt,
		CompletedAt:        b.CompletedAt,
		CancelledAt:        b.CancelledAt,
	}
}

func ToResponseList(bookings []*booking.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, ToResponse(b))
	}

	return out
}
