package wallet

import (
	"time"

	"github.com/google/uuid"
)

type TxType string

const (
	TypeBookingPayment     TxType = "booking_payment"
	TypeWithdrawalReversal TxType = "withdrawal_reversal"
	TypeAdjustmentCredit   TxType = "adjustment_credit"

	TypeCommissionDeduction TxType = "commission_deduction"
	TypeWithdrawal          TxType = "withdrawal"
	TypeRefund              TxType = "refund"
)

func (t TxType) IsCredit() bool {
	switch t {
	case TypeBookingPayment, TypeWithdrawalReversal, TypeAdjustmentCredit:
		return true
	}

	return false
}

func (t TxType) IsDebit() bool {
	switch t {
	case TypeCommissionDeduction, TypeWithdrawal, TypeRefund:
		return true
	}

	return false
}

// Transaction is one immutable ledger entry. Amount is always positive; the type gives the sign.
type Transaction struct {
	ID          uuid.UUID
	CameramanID uuid.UUID
	Type        TxType
	Amount      int64
	BookingID   *uuid.UUID
	PayoutID    *uuid.UUID
	ExternalID  string
	Description string
	CreatedAt   time.Time
}

func (t *Transaction) Signed() int64 {
	if t.Type.IsDebit() {
		return -t.Amount
	}

	return t.Amount
}

// Fold derives a balance from ledger entries.
func Fold(txs []*Transaction) int64 {
	var balance int64
	for _, tx := range txs {
		balance += tx.Signed()
	}

	return balance
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

func (s PayoutStatus) Open() bool {
	return s == PayoutPending || s == PayoutProcessing
}

type Payout struct {
	ID                uuid.UUID
	CameramanID       uuid.UUID
	Amount            int64
	OrangeMoneyNumber string
	Status            PayoutStatus
	ExternalID        string
	FailureReason     string
	RequestedAt       time.Time
	ProcessedAt       *time.Time
	CompletedAt       *time.Time
}

type Summary struct {
	Balance        int64
	TotalEarnings  int64
	TotalWithdrawn int64
	PendingPayouts int64
}
