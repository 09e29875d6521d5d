package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

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
	id, customer_id, cameraman_id, package, add_ons, scheduled_at, latitude, longitude, address,
	total_price, platform_commission, cameraman_earnings, status, payment_status,
	COALESCE(cancel_reason, ''), cancelled_by, version, request_expires_at,
	created_at, updated_at, accepted_at, completed_at, cancelled_at
`

func scanBooking(s scanner) (*booking.Booking, error) {
	var (
		b             booking.Booking
		pkg, addOns   []byte
		status        string
		paymentStatus string
		cancelledBy   *uuid.UUID
		acceptedAt    sql.NullTime
		completedAt   sql.NullTime
		cancelledAt   sql.NullTime
	)

	if err := s.Scan(
		&b.ID, &b.CustomerID, &b.CameramanID, &pkg, &addOns, &b.ScheduledAt,
		&b.Location.Latitude, &b.Location.Longitude, &b.Location.Address,
		&b.TotalPrice, &b.PlatformCommission, &b.CameramanEarnings, &status, &paymentStatus,
		&b.CancelReason, &cancelledBy, &b.Version, &b.RequestExpiresAt,
		&b.CreatedAt, &b.UpdatedAt, &acceptedAt, &completedAt, &cancelledAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(pkg, &b.Package); err != nil {
		return nil, fmt.Errorf("decoding package: %w", err)
	}

	if err := json.Unmarshal(addOns, &b.AddOns); err != nil {
		return nil, fmt.Errorf("decoding add-ons: %w", err)
	}

	b.Status = booking.Status(status)
	b.PaymentStatus = booking.PaymentStatus(paymentStatus)
	b.CancelledBy = cancelledBy
	b.AcceptedAt = timePtr(acceptedAt)
	b.CompletedAt = timePtr(completedAt)
	b.CancelledAt = timePtr(cancelledAt)

	return &b, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	return &t.Time
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreateBooking(ctx context.Context, b *booking.Booking) error {
	pkg, err := json.Marshal(b.Package)
	if err != nil {
		return fmt.Errorf("encoding package: %w", err)
	}

	addOns := b.AddOns
	if addOns == nil {
		addOns = []profile.AddOn{}
	}

	addOnsJSON, err := json.Marshal(addOns)
	if err != nil {
		return fmt.Errorf("encoding add-ons: %w", err)
	}

	query := `
		INSERT INTO bookings (
			id, customer_id, cameraman_id, package, add_ons, scheduled_at, latitude, longitude, address,
			total_price, platform_commission, cameraman_earnings, status, payment_status,
			version, request_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.CustomerID, b.CameramanID, pkg, addOnsJSON, b.ScheduledAt,
		b.Location.Latitude, b.Location.Longitude, b.Location.Address,
		b.TotalPrice, b.PlatformCommission, b.CameramanEarnings, b.Status, b.PaymentStatus,
		b.Version, b.RequestExpiresAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}

	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + selectColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, apperr.ErrNotFound)
		}

		return nil, fmt.Errorf("getting booking: %w", err)
	}

	return b, nil
}

// UpdateBooking writes the mutable columns of b when the stored row is still at expectedVersion.
func (s *Store) UpdateBooking(ctx context.Context, b *booking.Booking, expectedVersion int) error {
	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, cancel_reason = $3, cancelled_by = $4, version = $5,
			updated_at = $6, accepted_at = $7, completed_at = $8, cancelled_at = $9
		WHERE id = $10 AND version = $11
	`

	res, err := s.db.ExecContext(ctx, query,
		b.Status, b.PaymentStatus, nullString(b.CancelReason), b.CancelledBy, b.Version,
		b.UpdatedAt, nullTime(b.AcceptedAt), nullTime(b.CompletedAt), nullTime(b.CancelledAt),
		b.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if n == 0 {
		return apperr.Conflictf("booking %s is no longer at version %d", b.ID, expectedVersion)
	}

	return nil
}

func (s *Store) ListBookings(ctx context.Context, filter booking.ListFilter) ([]*booking.Booking, error) {
	query := `SELECT ` + selectColumns + ` FROM bookings WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.CustomerID != nil {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)

		args = append(args, *filter.CustomerID)
		argIdx++
	}

	if filter.CameramanID != nil {
		query += fmt.Sprintf(" AND cameraman_id = $%d", argIdx)

		args = append(args, *filter.CameramanID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PaymentStatus != nil {
		query += fmt.Sprintf(" AND payment_status = $%d", argIdx)

		args = append(args, *filter.PaymentStatus)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	return s.list(ctx, query, args...)
}

func (s *Store) ListDueRequests(ctx context.Context, now time.Time, limit int) ([]*booking.Booking, error) {
	query := `SELECT ` + selectColumns + `
		FROM bookings
		WHERE status = 'pending' AND request_expires_at <= $1
		ORDER BY request_expires_at ASC
		LIMIT $2`

	return s.list(ctx, query, now, limit)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*booking.Booking

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}

		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bookings: %w", err)
	}

	return bookings, nil
}
