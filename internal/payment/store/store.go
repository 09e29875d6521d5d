package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/payment"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
	id, booking_id, customer_id, cameraman_id, customer_phone_number, cameraman_phone_number,
	amount, platform_fee, cameraman_amount, currency, method, COALESCE(external_id, ''),
	status, COALESCE(failure_reason, ''), created_at, updated_at, completed_at, refunded_at, refund_requested_at
`

func scanPayment(s scanner) (*payment.Payment, error) {
	var (
		p           payment.Payment
		status      string
		completedAt sql.NullTime
		refundedAt  sql.NullTime
		requestedAt sql.NullTime
	)

	if err := s.Scan(
		&p.ID, &p.BookingID, &p.CustomerID, &p.CameramanID, &p.CustomerPhoneNumber, &p.CameramanPhoneNumber,
		&p.Amount, &p.PlatformFee, &p.CameramanAmount, &p.Currency, &p.Method, &p.ExternalID,
		&status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &completedAt, &refundedAt, &requestedAt,
	); err != nil {
		return nil, err
	}

	p.Status = payment.Status(status)

	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}

	if refundedAt.Valid {
		p.RefundedAt = &refundedAt.Time
	}

	if requestedAt.Valid {
		p.RefundRequestedAt = &requestedAt.Time
	}

	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, customer_id, cameraman_id, customer_phone_number, cameraman_phone_number,
			amount, platform_fee, cameraman_amount, currency, method, external_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.BookingID, p.CustomerID, p.CameramanID, p.CustomerPhoneNumber, p.CameramanPhoneNumber,
		p.Amount, p.PlatformFee, p.CameramanAmount, p.Currency, p.Method, nullString(p.ExternalID), p.Status, p.CreatedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Conflictf("booking %s already has a live payment", p.BookingID)
		}

		return fmt.Errorf("inserting payment: %w", err)
	}

	return nil
}

func (s *Store) get(ctx context.Context, where string, arg any) (*payment.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE ` + where + ` ORDER BY created_at DESC LIMIT 1`

	p, err := scanPayment(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment: %w", apperr.ErrNotFound)
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return s.get(ctx, "id = $1", id)
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	return s.get(ctx, "external_id = $1", externalID)
}

func (s *Store) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	return s.get(ctx, "booking_id = $1", bookingID)
}

func (s *Store) UpdateStatus(ctx context.Context, p *payment.Payment, from payment.Status) error {
	query := `
		UPDATE payments
		SET status = $1, external_id = COALESCE($2, external_id), failure_reason = $3,
			completed_at = $4, refunded_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`

	res, err := s.db.ExecContext(ctx, query,
		p.Status, nullString(p.ExternalID), nullString(p.FailureReason),
		nullTime(p.CompletedAt), nullTime(p.RefundedAt), p.UpdatedAt,
		p.ID, from,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Conflictf("transaction %s is already recorded", p.ExternalID)
		}

		return fmt.Errorf("updating payment status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if n == 0 {
		return apperr.Conflictf("payment %s is no longer %s", p.ID, from)
	}

	return nil
}

// MarkRefundRequested stamps a completed payment whose refund has not been requested yet.
func (s *Store) MarkRefundRequested(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE payments
		SET refund_requested_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'completed' AND refund_requested_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("marking refund requested: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if n == 0 {
		return apperr.Conflictf("refund of payment %s is already requested", id)
	}

	return nil
}

func (s *Store) ListInFlight(ctx context.Context, limit int) ([]*payment.Payment, error) {
	query := `SELECT ` + selectColumns + `
		FROM payments
		WHERE status IN ('initiated', 'pending')
		ORDER BY created_at ASC
		LIMIT $1`

	return s.list(ctx, query, limit)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return payments, nil
}
