package wallet

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
)

type Repository interface {
	// Begin opens a unit of work holding the cameraman's ledger lock until Commit or Rollback.
	Begin(ctx context.Context, cameramanID uuid.UUID) (LedgerTx, error)

	ListTransactions(ctx context.Context, cameramanID uuid.UUID) ([]*Transaction, error)
	GetPayout(ctx context.Context, id uuid.UUID) (*Payout, error)
	ListPayouts(ctx context.Context, filter PayoutFilter) ([]*Payout, error)
}

type LedgerTx interface {
	Balance(ctx context.Context) (int64, error)
	HasSettlement(ctx context.Context, bookingID uuid.UUID) (bool, error)
	Append(ctx context.Context, tx *Transaction) error
	CreatePayout(ctx context.Context, p *Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (*Payout, error)
	// UpdatePayout persists p only if the stored status still equals from.
	UpdatePayout(ctx context.Context, p *Payout, from PayoutStatus) error
	Commit() error
	Rollback() error
}

type PayoutNumbers interface {
	PayoutNumber(ctx context.Context, cameramanID uuid.UUID) (string, error)
}

type PayoutFilter struct {
	CameramanID *uuid.UUID
	Status      *PayoutStatus
	Limit       int
}

const (
	payoutBatchSize          = 50
	defaultProcessingTimeout = 10 * time.Minute
)

type Config struct {
	MinimumWithdrawal int64
	// ProcessingTimeout is how long a claimed payout may wait on the provider before
	// ReconcileProcessing asks about it again.
	ProcessingTimeout time.Duration
}

type Service struct {
	repo       Repository
	gw         gateway.Gateway
	numbers    PayoutNumbers
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

func NewService(repo Repository, gw gateway.Gateway, numbers PayoutNumbers, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		gw:      gw,
		numbers: numbers,
		cfg:     cfg,
		now:     time.Now,
	}

	if s.cfg.ProcessingTimeout <= 0 {
		s.cfg.ProcessingTimeout = defaultProcessingTimeout
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// withLedger runs fn under the cameraman's ledger lock and commits when fn succeeds.
func (s *Service) withLedger(ctx context.Context, cameramanID uuid.UUID, fn func(tx LedgerTx) error) error {
	tx, err := s.repo.Begin(ctx, cameramanID)
	if err != nil {
		return fmt.Errorf("begin ledger: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("failed to rollback ledger", "cameraman_id", cameramanID, "error", rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}

	return nil
}

type CreditParams struct {
	CameramanID uuid.UUID
	Type        TxType
	Amount      int64
	BookingID   *uuid.UUID
	PayoutID    *uuid.UUID
	ExternalID  string
	Description string
}

type DebitParams = CreditParams

func (s *Service) entry(p CreditParams) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		CameramanID: p.CameramanID,
		Type:        p.Type,
		Amount:      p.Amount,
		BookingID:   p.BookingID,
		PayoutID:    p.PayoutID,
		ExternalID:  p.ExternalID,
		Description: p.Description,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *Service) Credit(ctx context.Context, params CreditParams) (*Transaction, error) {
	if !params.Type.IsCredit() {
		return nil, apperr.Invalid("type", fmt.Sprintf("%s is not a credit", params.Type))
	}

	if params.Amount <= 0 {
		return nil, apperr.Invalid("amount", "must be positive")
	}

	entry := s.entry(params)

	err := s.withLedger(ctx, params.CameramanID, func(tx LedgerTx) error {
		return tx.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Debit appends a debit unless it would take the balance below zero.
func (s *Service) Debit(ctx context.Context, params DebitParams) (*Transaction, error) {
	if !params.Type.IsDebit() {
		return nil, apperr.Invalid("type", fmt.Sprintf("%s is not a debit", params.Type))
	}

	if params.Amount <= 0 {
		return nil, apperr.Invalid("amount", "must be positive")
	}

	entry := s.entry(params)

	err := s.withLedger(ctx, params.CameramanID, func(tx LedgerTx) error {
		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}

		if params.Amount > balance {
			return fmt.Errorf("debit %d against balance %d: %w", params.Amount, balance, apperr.ErrInsufficientBalance)
		}

		return tx.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

type SettleParams struct {
	CameramanID uuid.UUID
	BookingID   uuid.UUID
	Total       int64
	Commission  int64
}

// SettleBooking credits the booking total and debits the platform commission in one unit.
// A booking that already settled is left alone.
func (s *Service) SettleBooking(ctx context.Context, params SettleParams) error {
	if params.Total < 0 || params.Commission < 0 || params.Commission > params.Total {
		return apperr.Invalid("amount", "commission must be between 0 and the total")
	}

	return s.withLedger(ctx, params.CameramanID, func(tx LedgerTx) error {
		settled, err := tx.HasSettlement(ctx, params.BookingID)
		if err != nil {
			return err
		}

		if settled {
			slog.Info("booking already settled", "booking_id", params.BookingID)
			return nil
		}

		bookingID := params.BookingID

		if params.Total > 0 {
			if err := tx.Append(ctx, s.entry(CreditParams{
				CameramanID: params.CameramanID,
				Type:        TypeBookingPayment,
				Amount:      params.Total,
				BookingID:   &bookingID,
				Description: "Booking payment",
			})); err != nil {
				return err
			}
		}

		if params.Commission > 0 {
			if err := tx.Append(ctx, s.entry(CreditParams{
				CameramanID: params.CameramanID,
				Type:        TypeCommissionDeduction,
				Amount:      params.Commission,
				BookingID:   &bookingID,
				Description: "Platform commission",
			})); err != nil {
				return err
			}
		}

		slog.Info("booking settled", "booking_id", params.BookingID, "cameraman_id", params.CameramanID,
			"earnings", params.Total-params.Commission)

		return nil
	})
}

func (s *Service) Transactions(ctx context.Context, cameramanID uuid.UUID) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, cameramanID)
}

func (s *Service) Balance(ctx context.Context, cameramanID uuid.UUID) (int64, error) {
	txs, err := s.repo.ListTransactions(ctx, cameramanID)
	if err != nil {
		return 0, fmt.Errorf("listing transactions: %w", err)
	}

	return Fold(txs), nil
}

func (s *Service) Summary(ctx context.Context, cameramanID uuid.UUID) (*Summary, error) {
	txs, err := s.repo.ListTransactions(ctx, cameramanID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	payouts, err := s.repo.ListPayouts(ctx, PayoutFilter{CameramanID: &cameramanID})
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}

	sum := &Summary{Balance: Fold(txs)}

	for _, tx := range txs {
		switch tx.Type {
		case TypeBookingPayment:
			sum.TotalEarnings += tx.Amount
		case TypeCommissionDeduction:
			sum.TotalEarnings -= tx.Amount
		}
	}

	for _, p := range payouts {
		switch {
		case p.Status == PayoutCompleted:
			sum.TotalWithdrawn += p.Amount
		case p.Status.Open():
			sum.PendingPayouts += p.Amount
		}
	}

	return sum, nil
}

func (s *Service) Payouts(ctx context.Context, filter PayoutFilter) ([]*Payout, error) {
	return s.repo.ListPayouts(ctx, filter)
}

func (s *Service) Payout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	return s.repo.GetPayout(ctx, id)
}

// RequestWithdrawal debits the amount immediately and queues a payout for it.
func (s *Service) RequestWithdrawal(ctx context.Context, cameramanID uuid.UUID, amount int64) (*Payout, error) {
	if amount < s.cfg.MinimumWithdrawal {
		return nil, apperr.Invalid("amount", fmt.Sprintf("minimum withdrawal is %d", s.cfg.MinimumWithdrawal))
	}

	number, err := s.numbers.PayoutNumber(ctx, cameramanID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}

		return nil, apperr.Invalid("orange_money_number", err.Error())
	}

	payout := &Payout{
		ID:                uuid.New(),
		CameramanID:       cameramanID,
		Amount:            amount,
		OrangeMoneyNumber: number,
		Status:            PayoutPending,
		RequestedAt:       s.now().UTC(),
	}

	err = s.withLedger(ctx, cameramanID, func(tx LedgerTx) error {
		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}

		if amount > balance {
			return fmt.Errorf("withdrawal %d against balance %d: %w", amount, balance, apperr.ErrInsufficientBalance)
		}

		if err := tx.CreatePayout(ctx, payout); err != nil {
			return err
		}

		return tx.Append(ctx, s.entry(CreditParams{
			CameramanID: cameramanID,
			Type:        TypeWithdrawal,
			Amount:      amount,
			PayoutID:    &payout.ID,
			Description: "Withdrawal to Orange Money",
		}))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("withdrawal requested", "payout_id", payout.ID, "cameraman_id", cameramanID, "amount", amount)

	return payout, nil
}

// ProcessPayout sends a pending payout to the provider. A payout that is no longer pending is
// returned as is.
func (s *Service) ProcessPayout(ctx context.Context, id uuid.UUID) (*Payout, error) {
	current, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	var claimed bool

	err = s.withLedger(ctx, current.CameramanID, func(tx LedgerTx) error {
		p, err := tx.GetPayout(ctx, id)
		if err != nil {
			return err
		}

		current = p

		if p.Status != PayoutPending {
			return nil
		}

		now := s.now().UTC()
		next := *p
		next.Status = PayoutProcessing
		next.ProcessedAt = &now

		if err := tx.UpdatePayout(ctx, &next, PayoutPending); err != nil {
			return err
		}

		current = &next
		claimed = true

		return nil
	})
	if err != nil || !claimed {
		return current, err
	}

	h, err := s.gw.Payout(ctx, payoutRequest(current))
	if err != nil {
		if gateway.IsDefinitive(err) {
			return s.fail(ctx, current, err.Error())
		}

		slog.Warn("payout deferred", "payout_id", id, "error", err)

		return s.release(ctx, current)
	}

	return s.resolve(ctx, current, h.Status, h.TransactionID, h.Message)
}

// payoutRequest uses the payout id as the provider reference, so sending the same payout twice
// is deduplicated on the provider side.
func payoutRequest(p *Payout) gateway.PayoutRequest {
	return gateway.PayoutRequest{
		PayoutID:        p.ID.String(),
		CameramanID:     p.CameramanID.String(),
		Amount:          p.Amount,
		RecipientNumber: p.OrangeMoneyNumber,
		Description:     "SnapMe earnings withdrawal",
	}
}

// resolve applies a provider answer to a claimed payout.
func (s *Service) resolve(ctx context.Context, p *Payout, status gateway.Status, externalID, message string) (*Payout, error) {
	switch status {
	case gateway.StatusSuccess:
		return s.complete(ctx, p, externalID)
	case gateway.StatusFailed:
		if message == "" {
			message = "declined"
		}

		return s.fail(ctx, p, message)
	}

	return s.recordExternalID(ctx, p, externalID)
}

// release returns a claimed payout to pending after a retryable provider failure.
func (s *Service) release(ctx context.Context, p *Payout) (*Payout, error) {
	next := *p
	next.Status = PayoutPending
	next.ProcessedAt = nil

	err := s.withLedger(ctx, p.CameramanID, func(tx LedgerTx) error {
		return tx.UpdatePayout(ctx, &next, PayoutProcessing)
	})
	if err != nil {
		return p, err
	}

	return &next, nil
}

func (s *Service) recordExternalID(ctx context.Context, p *Payout, externalID string) (*Payout, error) {
	if externalID == "" || externalID == p.ExternalID {
		return p, nil
	}

	next := *p
	next.ExternalID = externalID

	err := s.withLedger(ctx, p.CameramanID, func(tx LedgerTx) error {
		return tx.UpdatePayout(ctx, &next, PayoutProcessing)
	})
	if err != nil {
		return p, err
	}

	return &next, nil
}

// CompletePayout marks a payout paid out. Completing a completed payout is a no-op.
func (s *Service) CompletePayout(ctx context.Context, id uuid.UUID, externalID string) error {
	p, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.complete(ctx, p, externalID)

	return err
}

func (s *Service) complete(ctx context.Context, p *Payout, externalID string) (*Payout, error) {
	var (
		result  *Payout
		changed bool
	)

	err := s.withLedger(ctx, p.CameramanID, func(tx LedgerTx) error {
		current, err := tx.GetPayout(ctx, p.ID)
		if err != nil {
			return err
		}

		result = current

		switch current.Status {
		case PayoutCompleted:
			return nil
		case PayoutFailed:
			return apperr.Conflictf("payout %s already failed", p.ID)
		}

		now := s.now().UTC()
		next := *current
		next.Status = PayoutCompleted
		next.CompletedAt = &now

		if externalID != "" {
			next.ExternalID = externalID
		}

		if err := tx.UpdatePayout(ctx, &next, current.Status); err != nil {
			return err
		}

		result = &next
		changed = true

		return nil
	})
	if err != nil {
		return result, err
	}

	if changed {
		slog.Info("payout completed", "payout_id", p.ID, "cameraman_id", p.CameramanID, "amount", p.Amount)
		s.notifyPayout(ctx, result, notify.PayoutProcessed)
		s.notifyPayout(ctx, result, notify.WithdrawalCompleted)
	}

	return result, nil
}

// FailPayout marks a payout failed and credits the withdrawn amount back. Failing a failed
// payout is a no-op.
func (s *Service) FailPayout(ctx context.Context, id uuid.UUID, reason string) error {
	p, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.fail(ctx, p, reason)

	return err
}

func (s *Service) fail(ctx context.Context, p *Payout, reason string) (*Payout, error) {
	var (
		result  *Payout
		changed bool
	)

	err := s.withLedger(ctx, p.CameramanID, func(tx LedgerTx) error {
		current, err := tx.GetPayout(ctx, p.ID)
		if err != nil {
			return err
		}

		result = current

		switch current.Status {
		case PayoutFailed:
			return nil
		case PayoutCompleted:
			return apperr.Conflictf("payout %s already completed", p.ID)
		}

		next := *current
		next.Status = PayoutFailed
		next.FailureReason = reason

		if err := tx.UpdatePayout(ctx, &next, current.Status); err != nil {
			return err
		}

		if err := tx.Append(ctx, s.entry(CreditParams{
			CameramanID: current.CameramanID,
			Type:        TypeWithdrawalReversal,
			Amount:      current.Amount,
			PayoutID:    &next.ID,
			Description: "Reversal of failed withdrawal",
		})); err != nil {
			return err
		}

		result = &next
		changed = true

		return nil
	})
	if err != nil {
		return result, err
	}

	if changed {
		slog.Warn("payout failed", "payout_id", p.ID, "cameraman_id", p.CameramanID, "reason", reason)
		s.notifyPayout(ctx, result, notify.PayoutProcessed)
	}

	return result, nil
}

func (s *Service) notifyPayout(ctx context.Context, p *Payout, t notify.Type) {
	notify.Send(ctx, s.dispatcher, notify.Event{
		Type:      t,
		Recipient: p.CameramanID,
		PayoutID:  &p.ID,
		Amount:    p.Amount,
		Data:      map[string]string{"status": string(p.Status)},
	})
}

// ProcessPending sends every pending payout and returns how many reached a final state.
func (s *Service) ProcessPending(ctx context.Context) (int, error) {
	pending := PayoutPending

	payouts, err := s.repo.ListPayouts(ctx, PayoutFilter{Status: &pending, Limit: payoutBatchSize})
	if err != nil {
		return 0, fmt.Errorf("listing pending payouts: %w", err)
	}

	resolved := 0

	for _, p := range payouts {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		got, err := s.ProcessPayout(ctx, p.ID)
		if err != nil {
			slog.Warn("payout processing failed", "payout_id", p.ID, "error", err)
			continue
		}

		if got.Status == PayoutCompleted || got.Status == PayoutFailed {
			resolved++
		}
	}

	return resolved, nil
}

// ReconcileProcessing re-checks payouts that have waited on the provider longer than the
// processing timeout and returns how many reached a final state.
func (s *Service) ReconcileProcessing(ctx context.Context) (int, error) {
	processing := PayoutProcessing

	payouts, err := s.repo.ListPayouts(ctx, PayoutFilter{Status: &processing, Limit: payoutBatchSize})
	if err != nil {
		return 0, fmt.Errorf("listing processing payouts: %w", err)
	}

	cutoff := s.now().UTC().Add(-s.cfg.ProcessingTimeout)
	resolved := 0

	for _, p := range payouts {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		if p.ProcessedAt != nil && p.ProcessedAt.After(cutoff) {
			continue
		}

		got, err := s.resume(ctx, p)
		if err != nil {
			slog.Warn("payout reconciliation failed", "payout_id", p.ID, "error", err)
			continue
		}

		if got.Status == PayoutCompleted || got.Status == PayoutFailed {
			resolved++
		}
	}

	return resolved, nil
}

// resume asks the provider where a stale payout stands. A payout that never got a provider
// transaction id is sent again under its own reference.
func (s *Service) resume(ctx context.Context, p *Payout) (*Payout, error) {
	if p.ExternalID != "" {
		h, err := s.gw.Status(ctx, p.ExternalID)
		if err != nil {
			return p, fmt.Errorf("polling payout %s: %w", p.ID, err)
		}

		return s.resolve(ctx, p, h.Status, h.TransactionID, h.Message)
	}

	h, err := s.gw.Payout(ctx, payoutRequest(p))
	if err != nil {
		if gateway.IsDefinitive(err) {
			slog.Error("stale payout rejected on resend, needs operator review", "payout_id", p.ID, "error", err)
		}

		return p, fmt.Errorf("resending payout %s: %w", p.ID, err)
	}

	return s.resolve(ctx, p, h.Status, h.TransactionID, h.Message)
}
