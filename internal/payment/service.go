package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/gateway"
	"github.com/TECXBOY/SnapMe/internal/notify"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=payment
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*Payment, error)
	// GetByBooking returns the most recent payment for the booking.
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error)
	// UpdateStatus persists p only if the stored status still equals from.
	UpdateStatus(ctx context.Context, p *Payment, from Status) error
	// MarkRefundRequested stamps a completed payment the first time its refund is requested.
	MarkRefundRequested(ctx context.Context, id uuid.UUID, at time.Time) error
	ListInFlight(ctx context.Context, limit int) ([]*Payment, error)
}

var ErrRefundDeclined = errors.New("refund declined by provider")

const pollBatchSize = 100

type Config struct {
	Timeout     time.Duration
	CallbackURL string
}

type Service struct {
	repo       Repository
	gw         gateway.Gateway
	cfg        Config
	dispatcher notify.Dispatcher
	replay     ReplayGuard
	listener   Listener
	payouts    PayoutResolver
	now        func() time.Time
}

type Option func(*Service)

func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithReplayGuard(g ReplayGuard) Option {
	return func(s *Service) { s.replay = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, gw gateway.Gateway, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		gw:   gw,
		cfg:  cfg,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetListener registers the consumer of status changes. Set once during wiring.
func (s *Service) SetListener(l Listener) {
	s.listener = l
}

func (s *Service) SetPayoutResolver(r PayoutResolver) {
	s.payouts = r
}

type InitiateParams struct {
	BookingID            uuid.UUID
	CustomerID           uuid.UUID
	CameramanID          uuid.UUID
	CustomerPhoneNumber  string
	CameramanPhoneNumber string
	Amount               int64
	PlatformFee          int64
	CameramanAmount      int64
	Description          string
}

type InitiateResult struct {
	Payment    *Payment
	PaymentURL string
}

// Initiate records the payment before calling the provider so a crash between the two
// leaves an initiated row that Refresh can pick up again.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*InitiateResult, error) {
	if params.Amount <= 0 {
		return nil, apperr.Invalid("amount", "must be positive")
	}

	phone, err := profile.NormalizePhone(params.CustomerPhoneNumber)
	if err != nil {
		return nil, apperr.Invalid("phone_number", "must be a Sierra Leone number")
	}

	latest, err := s.repo.GetByBooking(ctx, params.BookingID)

	switch {
	case err == nil && latest.Status != StatusFailed:
		return nil, apperr.Conflictf("booking already has a %s payment", latest.Status)
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("checking existing payment: %w", err)
	}

	now := s.now().UTC()
	p := &Payment{
		ID:                   uuid.New(),
		BookingID:            params.BookingID,
		CustomerID:           params.CustomerID,
		CameramanID:          params.CameramanID,
		CustomerPhoneNumber:  phone,
		CameramanPhoneNumber: params.CameramanPhoneNumber,
		Amount:               params.Amount,
		PlatformFee:          params.PlatformFee,
		CameramanAmount:      params.CameramanAmount,
		Currency:             gateway.Currency,
		Method:               MethodOrangeMoney,
		Status:               StatusInitiated,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("creating payment: %w", err)
	}

	h, err := s.gw.Initiate(ctx, s.initiateRequest(p, params.Description))
	if err != nil {
		return &InitiateResult{Payment: p}, s.gatewayFailure(ctx, p, err)
	}

	if err := s.apply(ctx, p, h.TransactionID, h.Status, h.Message); err != nil {
		return nil, err
	}

	return &InitiateResult{Payment: p, PaymentURL: h.PaymentURL}, nil
}

func (s *Service) initiateRequest(p *Payment, description string) gateway.InitiateRequest {
	if description == "" {
		description = "SnapMe booking " + p.BookingID.String()
	}

	return gateway.InitiateRequest{
		Amount:              p.Amount,
		Currency:            p.Currency,
		CustomerPhoneNumber: p.CustomerPhoneNumber,
		OrderID:             p.OrderID(),
		Description:         description,
		CallbackURL:         s.cfg.CallbackURL,
	}
}

// gatewayFailure fails the payment when the provider answered definitively.
// Retryable failures leave it initiated for the poller.
func (s *Service) gatewayFailure(ctx context.Context, p *Payment, gwErr error) error {
	if !gateway.IsDefinitive(gwErr) {
		slog.Warn("payment initiation deferred", "payment_id", p.ID, "error", gwErr)
		return fmt.Errorf("initiating payment: %w", gwErr)
	}

	if err := s.transition(ctx, p, StatusFailed, gwErr.Error()); err != nil {
		slog.Error("failed to record rejected payment", "payment_id", p.ID, "error", err)
	}

	return fmt.Errorf("initiating payment: %w", gwErr)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ForBooking returns the most recent payment of a booking.
func (s *Service) ForBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	return s.repo.GetByBooking(ctx, bookingID)
}

// Refresh polls the provider for an in-flight payment and persists the answer.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.refresh(ctx, p); err != nil {
		return p, err
	}

	return p, nil
}

func (s *Service) refresh(ctx context.Context, p *Payment) error {
	if !p.Status.InFlight() {
		return nil
	}

	var pollErr error

	if p.ExternalID == "" {
		h, err := s.gw.Initiate(ctx, s.initiateRequest(p, ""))
		if err != nil {
			pollErr = s.gatewayFailure(ctx, p, err)
		} else {
			pollErr = s.apply(ctx, p, h.TransactionID, h.Status, h.Message)
		}
	} else {
		h, err := s.gw.Status(ctx, p.ExternalID)
		if err != nil {
			pollErr = fmt.Errorf("polling payment %s: %w", p.ID, err)
		} else {
			pollErr = s.apply(ctx, p, h.TransactionID, h.Status, h.Message)
		}
	}

	if p.Status.InFlight() && s.now().Sub(p.CreatedAt) > s.cfg.Timeout {
		slog.Info("payment timed out", "payment_id", p.ID, "booking_id", p.BookingID, "age", s.now().Sub(p.CreatedAt))

		if err := s.transition(ctx, p, StatusFailed, ReasonTimeout); err != nil {
			return err
		}

		return nil
	}

	return pollErr
}

// apply maps a provider status onto the payment.
func (s *Service) apply(ctx context.Context, p *Payment, transactionID string, status gateway.Status, message string) error {
	if p.ExternalID == "" && transactionID != "" {
		p.ExternalID = transactionID
	}

	switch gateway.NormalizeStatus(status) {
	case gateway.StatusSuccess:
		return s.transition(ctx, p, StatusCompleted, "")
	case gateway.StatusFailed:
		if message == "" {
			message = ReasonDeclined
		}

		return s.transition(ctx, p, StatusFailed, message)
	}

	if p.Status == StatusInitiated && p.ExternalID != "" {
		return s.transition(ctx, p, StatusPending, "")
	}

	return nil
}

// transition persists a forward move and notifies listeners. Moving to the current
// status is a no-op.
func (s *Service) transition(ctx context.Context, p *Payment, to Status, reason string) error {
	if p.Status == to {
		return nil
	}

	if !CanTransition(p.Status, to) {
		return apperr.Conflictf("payment %s cannot move from %s to %s", p.ID, p.Status, to)
	}

	from := p.Status
	now := s.now().UTC()

	next := *p
	next.Status = to
	next.UpdatedAt = now

	switch to {
	case StatusCompleted:
		next.CompletedAt = &now
	case StatusFailed:
		next.FailureReason = reason
	case StatusRefunded:
		next.RefundedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, &next, from); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			if current, getErr := s.repo.GetPayment(ctx, p.ID); getErr == nil {
				*p = *current
			}
		}

		return fmt.Errorf("updating payment %s to %s: %w", p.ID, to, err)
	}

	*p = next

	slog.Info("payment status changed", "payment_id", p.ID, "booking_id", p.BookingID, "from", from, "to", to)

	s.changed(ctx, p)

	return nil
}

func (s *Service) changed(ctx context.Context, p *Payment) {
	if s.listener != nil {
		if err := s.listener.PaymentStatusChanged(ctx, p); err != nil {
			slog.Error("payment listener failed", "payment_id", p.ID, "status", p.Status, "error", err)
		}
	}

	if p.Status == StatusCompleted {
		notify.Send(ctx, s.dispatcher, notify.Event{
			Type:      notify.PaymentConfirmed,
			Recipient: p.CustomerID,
			BookingID: &p.BookingID,
			Amount:    p.Amount,
		})
	}
}

// HandleWebhook verifies and applies a provider callback. Unauthenticated payloads change nothing.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.gw.VerifyWebhookSignature(payload, signature) {
		slog.Warn("discarding unauthenticated webhook", "bytes", len(payload))
		return gateway.ErrUnauthenticatedWebhook
	}

	ev, err := gateway.ParseWebhook(payload)
	if err != nil {
		return apperr.Invalid("payload", err.Error())
	}

	key := ev.ReplayKey()

	if s.replay != nil {
		first, err := s.replay.First(ctx, key)

		switch {
		case err != nil:
			slog.Warn("replay guard unavailable", "key", key, "error", err)
		case !first:
			slog.Info("ignoring replayed webhook", "key", key)
			return nil
		}
	}

	if err := s.applyWebhook(ctx, ev); err != nil {
		if s.replay != nil {
			if ferr := s.replay.Forget(ctx, key); ferr != nil {
				slog.Warn("failed to release webhook key", "key", key, "error", ferr)
			}
		}

		return err
	}

	return nil
}

func (s *Service) applyWebhook(ctx context.Context, ev *gateway.WebhookEvent) error {
	if ev.Type == gateway.EventPayout {
		return s.applyPayoutWebhook(ctx, ev)
	}

	p, err := s.paymentForWebhook(ctx, ev)
	if err != nil {
		return err
	}

	switch {
	case p.Status.InFlight():
		return s.apply(ctx, p, ev.TransactionID, ev.Status, ev.Message)
	case p.Status == StatusFailed && ev.Status == gateway.StatusSuccess:
		return s.captureLate(ctx, p, ev.TransactionID)
	case p.Status == StatusCompleted && ev.Status == gateway.StatusRefunded:
		if p.RefundRequestedAt == nil {
			slog.Error("provider reversed a payment nobody refunded", "payment_id", p.ID, "booking_id", p.BookingID)
		}

		return s.transition(ctx, p, StatusRefunded, "")
	}

	slog.Info("webhook for settled payment", "payment_id", p.ID, "status", p.Status, "event_status", ev.Status)

	return nil
}

// captureLate records money the provider took after the payment was given up on.
// The listener decides whether the booking keeps it or gets it refunded.
func (s *Service) captureLate(ctx context.Context, p *Payment, transactionID string) error {
	slog.Error("provider captured a failed payment",
		"payment_id", p.ID, "booking_id", p.BookingID, "failure_reason", p.FailureReason, "transaction_id", transactionID)

	if p.ExternalID == "" {
		p.ExternalID = transactionID
	}

	return s.transition(ctx, p, StatusCompleted, "")
}

func (s *Service) paymentForWebhook(ctx context.Context, ev *gateway.WebhookEvent) (*Payment, error) {
	if id, err := uuid.Parse(ev.Reference); err == nil {
		return s.repo.GetPayment(ctx, id)
	}

	if ev.TransactionID == "" {
		return nil, apperr.Invalid("reference", "not a payment id")
	}

	return s.repo.GetByExternalID(ctx, ev.TransactionID)
}

func (s *Service) applyPayoutWebhook(ctx context.Context, ev *gateway.WebhookEvent) error {
	if s.payouts == nil {
		return fmt.Errorf("payout webhook received but no resolver is registered")
	}

	id, err := uuid.Parse(ev.Reference)
	if err != nil {
		return apperr.Invalid("reference", "not a payout id")
	}

	switch ev.Status {
	case gateway.StatusSuccess:
		return s.payouts.CompletePayout(ctx, id, ev.TransactionID)
	case gateway.StatusFailed:
		reason := ev.Message
		if reason == "" {
			reason = ReasonDeclined
		}

		return s.payouts.FailPayout(ctx, id, reason)
	}

	return nil
}

// Refund returns a completed payment to the customer. Refunding an already refunded
// payment succeeds without calling the provider. The request is recorded before the
// provider is called; a recorded request is checked with the provider before it is sent
// again, and every send carries the same refund reference.
func (s *Service) Refund(ctx context.Context, bookingID uuid.UUID, reason string) (*Payment, error) {
	p, err := s.repo.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case StatusRefunded:
		return p, nil
	case StatusCompleted:
	default:
		return nil, apperr.Conflictf("payment %s is %s, only completed payments can be refunded", p.ID, p.Status)
	}

	if p.RefundRequestedAt != nil {
		done, err := s.refundedAtProvider(ctx, p)
		if err != nil {
			return nil, err
		}

		if done {
			if err := s.transition(ctx, p, StatusRefunded, ""); err != nil {
				return nil, err
			}

			return p, nil
		}
	} else {
		now := s.now().UTC()
		if err := s.repo.MarkRefundRequested(ctx, p.ID, now); err != nil {
			return nil, fmt.Errorf("recording refund request for payment %s: %w", p.ID, err)
		}

		p.RefundRequestedAt = &now
	}

	h, err := s.gw.Refund(ctx, gateway.RefundRequest{
		TransactionID: p.ExternalID,
		Amount:        p.Amount,
		Reason:        reason,
		Reference:     p.RefundReference(),
	})
	if err != nil {
		return nil, fmt.Errorf("refunding payment %s: %w", p.ID, err)
	}

	if gateway.NormalizeStatus(h.Status) == gateway.StatusFailed {
		return nil, fmt.Errorf("payment %s: %w: %s", p.ID, ErrRefundDeclined, h.Message)
	}

	if err := s.transition(ctx, p, StatusRefunded, ""); err != nil {
		return nil, err
	}

	return p, nil
}

// refundedAtProvider asks the provider whether an earlier refund request went through.
func (s *Service) refundedAtProvider(ctx context.Context, p *Payment) (bool, error) {
	if p.ExternalID == "" {
		return false, nil
	}

	h, err := s.gw.Status(ctx, p.ExternalID)
	if err != nil {
		return false, fmt.Errorf("checking earlier refund of payment %s: %w", p.ID, err)
	}

	if gateway.NormalizeStatus(h.Status) == gateway.StatusRefunded {
		slog.Info("earlier refund confirmed by provider", "payment_id", p.ID, "booking_id", p.BookingID)
		return true, nil
	}

	return false, nil
}

// Abandon fails an in-flight payment of a cancelled booking and returns the payment as
// it now stands. A payment that settled first is returned unchanged.
func (s *Service) Abandon(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	if !p.Status.InFlight() {
		return p, nil
	}

	if err := s.transition(ctx, p, StatusFailed, ReasonBookingCancelled); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return p, nil
		}

		return nil, err
	}

	return p, nil
}

// PollInFlight refreshes every in-flight payment and returns how many settled.
func (s *Service) PollInFlight(ctx context.Context) (int, error) {
	payments, err := s.repo.ListInFlight(ctx, pollBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing in-flight payments: %w", err)
	}

	settled := 0

	for _, p := range payments {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		if err := s.refresh(ctx, p); err != nil {
			slog.Warn("payment poll failed", "payment_id", p.ID, "error", err)
		}

		if !p.Status.InFlight() {
			settled++
		}
	}

	return settled, nil
}
