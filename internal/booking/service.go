package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/notify"
	"github.com/TECXBOY/SnapMe/internal/payment"
	"github.com/TECXBOY/SnapMe/internal/profile"
	"github.com/TECXBOY/SnapMe/internal/settlement"
	"github.com/TECXBOY/SnapMe/internal/wallet"
)

type Repository interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateBooking persists b only if the stored version equals expectedVersion.
	UpdateBooking(ctx context.Context, b *Booking, expectedVersion int) error
	ListBookings(ctx context.Context, filter ListFilter) ([]*Booking, error)
	// ListDueRequests returns pending bookings whose request deadline is at or before now.
	ListDueRequests(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
}

type Catalog interface {
	Cameraman(ctx context.Context, id uuid.UUID) (*profile.Cameraman, error)
}

type Payments interface {
	Initiate(ctx context.Context, params payment.InitiateParams) (*payment.InitiateResult, error)
	ForBooking(ctx context.Context, bookingID uuid.UUID) (*payment.Payment, error)
	Refund(ctx context.Context, bookingID uuid.UUID, reason string) (*payment.Payment, error)
	Abandon(ctx context.Context, bookingID uuid.UUID) (*payment.Payment, error)
}

type Ledger interface {
	SettleBooking(ctx context.Context, params wallet.SettleParams) error
}

type ListFilter struct {
	CustomerID    *uuid.UUID
	CameramanID   *uuid.UUID
	Status        *Status
	PaymentStatus *PaymentStatus
	Limit         int
}

const (
	sweepBatchSize     = 100
	reconcileBatchSize = 50
	listenerAttempts   = 3
)

type Config struct {
	CommissionRate decimal.Decimal // percent
	RequestTimeout time.Duration
}

type Service struct {
	repo       Repository
	catalog    Catalog
	payments   Payments
	ledger     Ledger
	cfg        Config
	dispatcher notify.Dispatcher
	now        func() time.Time
}

type Option func(*Service)

func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, catalog Catalog, payments Payments, ledger Ledger, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		catalog:  catalog,
		payments: payments,
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateParams struct {
	CustomerID  uuid.UUID
	CameramanID uuid.UUID
	PackageID   uuid.UUID
	AddOnIDs    []uuid.UUID
	ScheduledAt time.Time
	Location    profile.Location
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Booking, error) {
	now := s.now().UTC()

	if !params.Location.Valid() {
		return nil, apperr.Invalid("location", "coordinates out of range")
	}

	if !params.ScheduledAt.After(now) {
		return nil, apperr.Invalid("scheduled_at", "must be in the future")
	}

	cam, err := s.catalog.Cameraman(ctx, params.CameramanID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("cameraman_id", "unknown cameraman")
		}

		return nil, fmt.Errorf("loading cameraman: %w", err)
	}

	if !cam.Bookable() {
		return nil, apperr.Invalid("cameraman_id", "cameraman is not accepting bookings")
	}

	pkg, ok := cam.Package(params.PackageID)
	if !ok {
		return nil, apperr.Invalid("package_id", "not offered by this cameraman")
	}

	total := pkg.BasePrice
	seen := make(map[uuid.UUID]bool, len(params.AddOnIDs))

	var addOns []profile.AddOn

	for _, id := range params.AddOnIDs {
		if seen[id] {
			continue
		}

		seen[id] = true

		addOn, ok := pkg.AddOn(id)
		if !ok {
			return nil, apperr.Invalid("add_on_ids", fmt.Sprintf("add-on %s is not part of the package", id))
		}

		addOns = append(addOns, addOn)
		total += addOn.Price
	}

	split, err := settlement.Settle(total, s.cfg.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("settling price: %w", err)
	}

	pkg.AddOns = nil

	b := &Booking{
		ID:                 uuid.New(),
		CustomerID:         params.CustomerID,
		CameramanID:        params.CameramanID,
		Package:            pkg,
		AddOns:             addOns,
		ScheduledAt:        params.ScheduledAt.UTC(),
		Location:           params.Location,
		TotalPrice:         split.Total,
		PlatformCommission: split.Commission,
		CameramanEarnings:  split.Earnings,
		Status:             StatusPending,
		PaymentStatus:      PaymentUnpaid,
		Version:            1,
		RequestExpiresAt:   now.Add(s.cfg.RequestTimeout),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("creating booking: %w", err)
	}

	slog.Info("booking requested", "booking_id", b.ID, "cameraman_id", b.CameramanID, "total", b.TotalPrice)

	s.send(ctx, notify.BookingRequest, b, b.CameramanID)

	return b, nil
}

// update applies mutate to a copy of b and stores it with a compare-and-swap on the version.
// On success b holds the new state.
func (s *Service) update(ctx context.Context, b *Booking, mutate func(next *Booking, now time.Time)) error {
	now := s.now().UTC()

	next := *b
	mutate(&next, now)
	next.Version = b.Version + 1
	next.UpdatedAt = now

	if err := s.repo.UpdateBooking(ctx, &next, b.Version); err != nil {
		return err
	}

	*b = next

	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Booking, error) {
	return s.repo.ListBookings(ctx, filter)
}

// Respond records the cameraman's answer to a pending request.
func (s *Service) Respond(ctx context.Context, id, cameramanID uuid.UUID, resp Response) (*Booking, error) {
	if resp != Accept && resp != Reject {
		return nil, apperr.Invalid("response", "must be accept or reject")
	}

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if b.CameramanID != cameramanID {
		return nil, apperr.ErrForbidden
	}

	switch {
	case b.Status == StatusPending && !s.now().Before(b.RequestExpiresAt):
		return nil, fmt.Errorf("booking %s request expired at %s: %w", id, b.RequestExpiresAt.Format(time.RFC3339), apperr.ErrExpired)
	case b.Status == StatusCancelled && b.CancelReason == ReasonTimeout:
		return nil, fmt.Errorf("booking %s request expired: %w", id, apperr.ErrExpired)
	case b.Status != StatusPending:
		return nil, apperr.Conflictf("booking %s is %s", id, b.Status)
	}

	err = s.update(ctx, b, func(next *Booking, now time.Time) {
		if resp == Accept {
			next.Status = StatusAccepted
			next.AcceptedAt = &now
		} else {
			next.Status = StatusRejected
		}
	})
	if err != nil {
		return nil, fmt.Errorf("responding to booking %s: %w", id, err)
	}

	slog.Info("booking answered", "booking_id", id, "status", b.Status)

	if resp == Accept {
		s.send(ctx, notify.BookingAccepted, b, b.CustomerID)
		return b, nil
	}

	s.send(ctx, notify.BookingRejected, b, b.CustomerID)
	s.closePayment(ctx, b)

	return b, nil
}

// Expire cancels a pending booking whose request deadline has passed. It reports whether this
// call performed the expiry; losing a race to another actor is not an error.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}

	if b.Status != StatusPending || s.now().Before(b.RequestExpiresAt) {
		return false, nil
	}

	if err := s.cancel(ctx, b, ReasonTimeout, nil); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return false, nil
		}

		return false, err
	}

	slog.Info("booking request expired", "booking_id", id, "expired_at", b.RequestExpiresAt)

	return true, nil
}

// SweepExpired expires every due pending booking and returns how many this call expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueRequests(ctx, s.now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing due requests: %w", err)
	}

	expired := 0

	for _, b := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		ok, err := s.Expire(ctx, b.ID)
		if err != nil {
			slog.Warn("failed to expire booking", "booking_id", b.ID, "error", err)
			continue
		}

		if ok {
			expired++
		}
	}

	return expired, nil
}

func (s *Service) authorize(b *Booking, actor Actor) error {
	if actor.IsAdmin() || b.Participant(actor.ID) {
		return nil
	}

	return apperr.ErrForbidden
}

// Complete finishes an accepted, paid booking and settles the cameraman's earnings.
// The booking is completed even when settlement fails; it then stays paid until
// SettleCompleted or another Complete call releases it.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(b, actor); err != nil {
		return nil, err
	}

	switch b.Status {
	case StatusCompleted:
		s.release(ctx, b)
		return b, nil
	case StatusAccepted:
	default:
		return nil, apperr.Conflictf("booking %s is %s", id, b.Status)
	}

	p, err := s.payments.ForBooking(ctx, id)

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.Conflictf("booking %s has no payment", id)
	case err != nil:
		return nil, fmt.Errorf("loading payment: %w", err)
	case p.Status != payment.StatusCompleted:
		return nil, apperr.Conflictf("booking %s payment is %s", id, p.Status)
	}

	err = s.update(ctx, b, func(next *Booking, now time.Time) {
		next.Status = StatusCompleted
		next.PaymentStatus = PaymentPaid
		next.CompletedAt = &now
	})
	if err != nil {
		return nil, fmt.Errorf("completing booking %s: %w", id, err)
	}

	slog.Info("booking completed", "booking_id", id, "earnings", b.CameramanEarnings)

	s.release(ctx, b)

	return b, nil
}

// release settles a completed booking's earnings and marks its payment released.
// It reports whether the booking ended up released.
func (s *Service) release(ctx context.Context, b *Booking) bool {
	if b.PaymentStatus != PaymentPaid {
		return b.PaymentStatus == PaymentReleased
	}

	err := s.ledger.SettleBooking(ctx, wallet.SettleParams{
		CameramanID: b.CameramanID,
		BookingID:   b.ID,
		Total:       b.TotalPrice,
		Commission:  b.PlatformCommission,
	})
	if err != nil {
		slog.Warn("settlement failed, booking stays paid", "booking_id", b.ID, "error", err)
		return false
	}

	released, err := s.retryUpdate(ctx, b,
		func(cur *Booking) bool { return cur.Status == StatusCompleted && cur.PaymentStatus == PaymentPaid },
		func(next *Booking, _ time.Time) { next.PaymentStatus = PaymentReleased },
	)
	if err != nil {
		slog.Warn("failed to mark booking released", "booking_id", b.ID, "error", err)
		return false
	}

	if !released {
		return false
	}

	slog.Info("booking earnings released", "booking_id", b.ID, "earnings", b.CameramanEarnings)

	s.send(ctx, notify.PaymentReceived, b, b.CameramanID)

	return true
}

// SettleCompleted releases completed bookings whose settlement has not gone through
// and returns how many it released.
func (s *Service) SettleCompleted(ctx context.Context) (int, error) {
	completed, paid := StatusCompleted, PaymentPaid

	bookings, err := s.repo.ListBookings(ctx, ListFilter{Status: &completed, PaymentStatus: &paid, Limit: reconcileBatchSize})
	if err != nil {
		return 0, fmt.Errorf("listing unsettled bookings: %w", err)
	}

	released := 0

	for _, b := range bookings {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		if s.release(ctx, b) {
			released++
		}
	}

	return released, nil
}

// retryUpdate applies mutate while needed holds, reloading the booking after each
// version conflict. It reports whether this call wrote the change.
func (s *Service) retryUpdate(ctx context.Context, b *Booking, needed func(*Booking) bool, mutate func(next *Booking, now time.Time)) (bool, error) {
	for attempt := 1; ; attempt++ {
		if !needed(b) {
			return false, nil
		}

		err := s.update(ctx, b, mutate)
		if err == nil {
			return true, nil
		}

		if !errors.Is(err, apperr.ErrConflict) || attempt == listenerAttempts {
			return false, err
		}

		current, err := s.repo.GetBooking(ctx, b.ID)
		if err != nil {
			return false, fmt.Errorf("reloading booking %s: %w", b.ID, err)
		}

		*b = *current
	}
}

// Cancel withdraws a pending or accepted booking. A pending request can only be withdrawn
// by its customer or an admin; the cameraman rejects it instead. The booking is cancelled
// before its payment is touched. A paid booking is then refunded; if the refund cannot be
// confirmed the booking is left cancelling for ReconcileCancelling and the call still succeeds.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(b, actor); err != nil {
		return nil, err
	}

	if b.Status == StatusPending && !actor.IsAdmin() && actor.ID != b.CustomerID {
		return nil, fmt.Errorf("only the customer can withdraw a pending request: %w", apperr.ErrForbidden)
	}

	if reason == "" {
		reason = "cancelled by " + string(actor.Role)
	}

	if err := s.cancel(ctx, b, reason, &actor.ID); err != nil {
		return nil, err
	}

	return b, nil
}

func (s *Service) cancel(ctx context.Context, b *Booking, reason string, by *uuid.UUID) error {
	switch b.Status {
	case StatusCancelling:
		s.closePayment(ctx, b)
		return nil
	case StatusPending, StatusAccepted:
	default:
		return apperr.Conflictf("booking %s is %s", b.ID, b.Status)
	}

	p, err := s.payments.ForBooking(ctx, b.ID)

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		p = nil
	case err != nil:
		return fmt.Errorf("loading payment: %w", err)
	}

	live := p != nil && p.Status.Live()
	paid := p != nil && p.Status == payment.StatusCompleted

	err = s.update(ctx, b, func(next *Booking, now time.Time) {
		next.CancelReason = reason
		next.CancelledBy = by
		next.CancelledAt = &now

		switch {
		case paid:
			next.Status = StatusCancelling
			next.PaymentStatus = PaymentRefundPending
		case live:
			next.Status = StatusCancelling
		default:
			next.Status = StatusCancelled
			next.PaymentStatus = PaymentUnpaid
		}
	})
	if err != nil {
		return fmt.Errorf("cancelling booking %s: %w", b.ID, err)
	}

	slog.Info("booking cancelled", "booking_id", b.ID, "reason", reason, "refund", paid)

	s.send(ctx, notify.BookingCancelled, b, b.CustomerID)
	s.send(ctx, notify.BookingCancelled, b, b.CameramanID)

	if live {
		s.closePayment(ctx, b)
	}

	return nil
}

// closePayment stops or refunds the payment of a booking that will not take place and
// reports whether the booking's payment is final.
func (s *Service) closePayment(ctx context.Context, b *Booking) bool {
	p, err := s.payments.Abandon(ctx, b.ID)
	if err != nil {
		slog.Warn("failed to stop payment, booking stays cancelling", "booking_id", b.ID, "error", err)
		return false
	}

	final := PaymentUnpaid

	switch {
	case p == nil:
	case p.Status.InFlight():
		slog.Warn("payment still in flight, booking stays cancelling", "booking_id", b.ID, "payment_id", p.ID)
		return false
	case p.Status == payment.StatusCompleted:
		if err := s.markRefundPending(ctx, b); err != nil {
			slog.Warn("failed to mark refund pending", "booking_id", b.ID, "error", err)
			return false
		}

		reason := b.CancelReason
		if reason == "" {
			reason = "booking " + string(b.Status)
		}

		if _, err := s.payments.Refund(ctx, b.ID, reason); err != nil {
			slog.Warn("refund not confirmed, booking stays cancelling", "booking_id", b.ID, "error", err)
			return false
		}

		final = PaymentRefunded
	case p.Status == payment.StatusRefunded:
		final = PaymentRefunded
	}

	_, err = s.retryUpdate(ctx, b,
		func(cur *Booking) bool {
			return cur.Status == StatusCancelling || (cur.Status.Withdrawn() && cur.PaymentStatus != final)
		},
		func(next *Booking, _ time.Time) {
			next.PaymentStatus = final
			if next.Status == StatusCancelling {
				next.Status = StatusCancelled
			}
		},
	)
	if err != nil {
		slog.Warn("failed to finalize cancelled booking", "booking_id", b.ID, "error", err)
		return false
	}

	if final == PaymentRefunded {
		slog.Info("booking refunded", "booking_id", b.ID, "amount", b.TotalPrice)
	}

	return true
}

func (s *Service) markRefundPending(ctx context.Context, b *Booking) error {
	_, err := s.retryUpdate(ctx, b,
		func(cur *Booking) bool {
			return cur.Status.Withdrawn() && cur.PaymentStatus != PaymentRefundPending && cur.PaymentStatus != PaymentRefunded
		},
		func(next *Booking, _ time.Time) { next.PaymentStatus = PaymentRefundPending },
	)

	return err
}

// ReconcileCancelling retries the payment side of cancelling bookings and of withdrawn
// bookings with a refund pending, and returns how many finished.
func (s *Service) ReconcileCancelling(ctx context.Context) (int, error) {
	cancelling, refundPending := StatusCancelling, PaymentRefundPending

	byStatus, err := s.repo.ListBookings(ctx, ListFilter{Status: &cancelling, Limit: reconcileBatchSize})
	if err != nil {
		return 0, fmt.Errorf("listing cancelling bookings: %w", err)
	}

	byPayment, err := s.repo.ListBookings(ctx, ListFilter{PaymentStatus: &refundPending, Limit: reconcileBatchSize})
	if err != nil {
		return 0, fmt.Errorf("listing pending refunds: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(byStatus)+len(byPayment))
	done := 0

	for _, b := range append(byStatus, byPayment...) {
		if seen[b.ID] {
			continue
		}

		seen[b.ID] = true

		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		if s.closePayment(ctx, b) {
			done++
		}
	}

	return done, nil
}

type PayParams struct {
	BookingID   uuid.UUID
	CustomerID  uuid.UUID
	PhoneNumber string
}

// Pay starts the customer's payment for a pending or accepted booking.
func (s *Service) Pay(ctx context.Context, params PayParams) (*payment.InitiateResult, error) {
	b, err := s.repo.GetBooking(ctx, params.BookingID)
	if err != nil {
		return nil, err
	}

	if b.CustomerID != params.CustomerID {
		return nil, apperr.ErrForbidden
	}

	if b.Status != StatusPending && b.Status != StatusAccepted {
		return nil, apperr.Conflictf("booking %s is %s", b.ID, b.Status)
	}

	if b.PaymentStatus != PaymentUnpaid {
		return nil, apperr.Conflictf("booking %s is already %s", b.ID, b.PaymentStatus)
	}

	var cameramanPhone string
	if cam, err := s.catalog.Cameraman(ctx, b.CameramanID); err == nil {
		cameramanPhone = cam.PhoneNumber
	}

	return s.payments.Initiate(ctx, payment.InitiateParams{
		BookingID:            b.ID,
		CustomerID:           b.CustomerID,
		CameramanID:          b.CameramanID,
		CustomerPhoneNumber:  params.PhoneNumber,
		CameramanPhoneNumber: cameramanPhone,
		Amount:               b.TotalPrice,
		PlatformFee:          b.PlatformCommission,
		CameramanAmount:      b.CameramanEarnings,
		Description:          fmt.Sprintf("SnapMe %s booking", b.Package.Name),
	})
}

// PaymentStatusChanged mirrors a payment's status onto its booking.
func (s *Service) PaymentStatusChanged(ctx context.Context, p *payment.Payment) error {
	var target PaymentStatus

	switch p.Status {
	case payment.StatusCompleted:
		target = PaymentPaid
	case payment.StatusFailed:
		target = PaymentUnpaid
	case payment.StatusRefunded:
		target = PaymentRefunded
	default:
		return nil
	}

	for attempt := 1; ; attempt++ {
		b, err := s.repo.GetBooking(ctx, p.BookingID)
		if err != nil {
			return err
		}

		if target == PaymentPaid && b.Status.Withdrawn() && b.PaymentStatus != PaymentRefunded {
			slog.Error("payment completed on withdrawn booking, refunding",
				"booking_id", b.ID, "status", b.Status, "payment_id", p.ID, "amount", p.Amount)
			s.closePayment(ctx, b)

			return nil
		}

		if b.PaymentStatus == target || !mirrors(b, target) {
			return nil
		}

		err = s.update(ctx, b, func(next *Booking, _ time.Time) {
			next.PaymentStatus = target
			if target == PaymentRefunded && next.Status == StatusCancelling {
				next.Status = StatusCancelled
			}
		})
		if err == nil {
			if target == PaymentPaid {
				s.send(ctx, notify.PaymentConfirmed, b, b.CameramanID)
			}

			return nil
		}

		if !errors.Is(err, apperr.ErrConflict) || attempt == listenerAttempts {
			return fmt.Errorf("recording payment status on booking %s: %w", b.ID, err)
		}
	}
}

// mirrors reports whether a payment outcome should still be copied onto the booking.
func mirrors(b *Booking, target PaymentStatus) bool {
	switch target {
	case PaymentPaid, PaymentUnpaid:
		return (b.Status == StatusPending || b.Status == StatusAccepted) &&
			(b.PaymentStatus == PaymentUnpaid || b.PaymentStatus == PaymentPaid)
	case PaymentRefunded:
		return b.PaymentStatus != PaymentRefunded
	}

	return false
}

func (s *Service) send(ctx context.Context, t notify.Type, b *Booking, recipient uuid.UUID) {
	amount := b.TotalPrice
	if t == notify.PaymentReceived {
		amount = b.CameramanEarnings
	}

	status, _ := b.Reported()

	notify.Send(ctx, s.dispatcher, notify.Event{
		Type:      t,
		Recipient: recipient,
		BookingID: &b.ID,
		Amount:    amount,
		Data:      map[string]string{"status": string(status), "reason": b.CancelReason},
	})
}
