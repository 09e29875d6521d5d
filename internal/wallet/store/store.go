package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/wallet"
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

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `id, cameraman_id, type, amount, booking_id, payout_id, COALESCE(external_id, ''), description, created_at`

func scanTransaction(s scanner) (*wallet.Transaction, error) {
	var (
		tx        wallet.Transaction
		txType    string
		bookingID *uuid.UUID
		payoutID  *uuid.UUID
	)

	if err := s.Scan(&tx.ID, &tx.CameramanID, &txType, &tx.Amount, &bookingID, &payoutID,
		&tx.ExternalID, &tx.Description, &tx.CreatedAt); err != nil {
		return nil, err
	}

	tx.Type = wallet.TxType(txType)
	tx.BookingID = bookingID
	tx.PayoutID = payoutID

	return &tx, nil
}

const payoutColumns = `id, cameraman_id, amount, orange_money_number, status, COALESCE(external_id, ''),
	COALESCE(failure_reason, ''), requested_at, processed_at, completed_at`

func scanPayout(s scanner) (*wallet.Payout, error) {
	var (
		p           wallet.Payout
		status      string
		processedAt sql.NullTime
		completedAt sql.NullTime
	)

	if err := s.Scan(&p.ID, &p.CameramanID, &p.Amount, &p.OrangeMoneyNumber, &status, &p.ExternalID,
		&p.FailureReason, &p.RequestedAt, &processedAt, &completedAt); err != nil {
		return nil, err
	}

	p.Status = wallet.PayoutStatus(status)

	if processedAt.Valid {
		p.ProcessedAt = &processedAt.Time
	}

	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
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

func getPayout(ctx context.Context, q queryer, id uuid.UUID, lock bool) (*wallet.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	p, err := scanPayout(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payout %s: %w", id, apperr.ErrNotFound)
		}

		return nil, fmt.Errorf("getting payout: %w", err)
	}

	return p, nil
}

func (s *Store) GetPayout(ctx context.Context, id uuid.UUID) (*wallet.Payout, error) {
	return getPayout(ctx, s.db, id, false)
}

func (s *Store) ListPayouts(ctx context.Context, filter wallet.PayoutFilter) ([]*wallet.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE 1=1`

	var args []any

	argIdx := 1

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

	query += " ORDER BY requested_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*wallet.Payout

	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payout: %w", err)
		}

		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payouts: %w", err)
	}

	return payouts, nil
}

func (s *Store) ListTransactions(ctx context.Context, cameramanID uuid.UUID) ([]*wallet.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE cameraman_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, cameramanID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var txs []*wallet.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}

	return txs, nil
}

func ledgerLockKey(cameramanID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte("ledger"))
	h.Write([]byte{0})
	h.Write(cameramanID[:])

	return int64(h.Sum64())
}

type ledgerTx struct {
	tx          *sql.Tx
	cameramanID uuid.UUID
}

func (s *Store) Begin(ctx context.Context, cameramanID uuid.UUID) (wallet.LedgerTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning ledger tx: %w", err)
	}

	if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", ledgerLockKey(cameramanID)); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("acquiring ledger lock: %w", err)
	}

	return &ledgerTx{tx: dbTx, cameramanID: cameramanID}, nil
}

func (l *ledgerTx) Commit() error   { return l.tx.Commit() }
func (l *ledgerTx) Rollback() error { return l.tx.Rollback() }

func (l *ledgerTx) Balance(ctx context.Context) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type IN ('commission_deduction', 'withdrawal', 'refund') THEN -amount ELSE amount END), 0)
		FROM ledger_transactions
		WHERE cameraman_id = $1`

	var balance int64
	if err := l.tx.QueryRowContext(ctx, query, l.cameramanID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("computing balance: %w", err)
	}

	return balance, nil
}

func (l *ledgerTx) HasSettlement(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var exists bool

	err := l.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE booking_id = $1 AND type = 'booking_payment')`,
		bookingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking settlement: %w", err)
	}

	return exists, nil
}

func (l *ledgerTx) Append(ctx context.Context, tx *wallet.Transaction) error {
	if tx.CameramanID != l.cameramanID {
		return fmt.Errorf("ledger entry for %s appended under lock of %s", tx.CameramanID, l.cameramanID)
	}

	query := `
		INSERT INTO ledger_transactions (id, cameraman_id, type, amount, booking_id, payout_id, external_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := l.tx.QueryRowContext(ctx, query,
		tx.ID, tx.CameramanID, tx.Type, tx.Amount, tx.BookingID, tx.PayoutID,
		nullString(tx.ExternalID), tx.Description, tx.CreatedAt,
	).Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}

	return nil
}

func (l *ledgerTx) CreatePayout(ctx context.Context, p *wallet.Payout) error {
	query := `
		INSERT INTO payouts (id, cameraman_id, amount, orange_money_number, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := l.tx.ExecContext(ctx, query,
		p.ID, p.CameramanID, p.Amount, p.OrangeMoneyNumber, p.Status, p.RequestedAt,
	); err != nil {
		return fmt.Errorf("inserting payout: %w", err)
	}

	return nil
}

func (l *ledgerTx) GetPayout(ctx context.Context, id uuid.UUID) (*wallet.Payout, error) {
	return getPayout(ctx, l.tx, id, true)
}

func (l *ledgerTx) UpdatePayout(ctx context.Context, p *wallet.Payout, from wallet.PayoutStatus) error {
	query := `
		UPDATE payouts
		SET status = $1, external_id = $2, failure_reason = $3, processed_at = $4, completed_at = $5
		WHERE id = $6 AND status = $7
	`

	res, err := l.tx.ExecContext(ctx, query,
		p.Status, nullString(p.ExternalID), nullString(p.FailureReason),
		nullTime(p.ProcessedAt), nullTime(p.CompletedAt),
		p.ID, from,
	)
	if err != nil {
		return fmt.Errorf("updating payout: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if n == 0 {
		return apperr.Conflictf("payout %s is no longer %s", p.ID, from)
	}

	return nil
}
