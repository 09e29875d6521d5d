package wallet

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/http/respond"
	"github.com/TECXBOY/SnapMe/internal/wallet"
)

type Handler struct {
	svc *wallet.Service
}

func NewHandler(svc *wallet.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.summary)
	r.Get("/transactions", h.transactions)
	r.Get("/withdrawals", h.withdrawals)
	r.Post("/withdrawals", h.withdraw)
}

func cameramanID(r *http.Request) uuid.UUID {
	s, _ := auth.SessionFrom(r.Context())
	return s.UserID
}

type summaryResponse struct {
	Balance        int64 `json:"balance"`
	TotalEarnings  int64 `json:"total_earnings"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
	PendingPayouts int64 `json:"pending_payouts"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), cameramanID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, summaryResponse{
		Balance:        sum.Balance,
		TotalEarnings:  sum.TotalEarnings,
		TotalWithdrawn: sum.TotalWithdrawn,
		PendingPayouts: sum.PendingPayouts,
	})
}

type transactionResponse struct {
	ID          uuid.UUID     `json:"id"`
	Type        wallet.TxType `json:"type"`
	Amount      int64         `json:"amount"`
	Credit      bool          `json:"credit"`
	BookingID   *uuid.UUID    `json:"booking_id,omitempty"`
	PayoutID    *uuid.UUID    `json:"payout_id,omitempty"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.Transactions(r.Context(), cameramanID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:          tx.ID,
			Type:        tx.Type,
			Amount:      tx.Amount,
			Credit:      tx.Type.IsCredit(),
			BookingID:   tx.BookingID,
			PayoutID:    tx.PayoutID,
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		})
	}

	respond.JSON(w, http.StatusOK, out)
}

type PayoutResponse struct {
	ID                uuid.UUID           `json:"id"`
	CameramanID       uuid.UUID           `json:"cameraman_id"`
	Amount            int64               `json:"amount"`
	OrangeMoneyNumber string              `json:"orange_money_number"`
	Status            wallet.PayoutStatus `json:"status"`
	ExternalID        string              `json:"external_id,omitempty"`
	FailureReason     string              `json:"failure_reason,omitempty"`
	RequestedAt       time.Time           `json:"requested_at"`
	ProcessedAt       *time.Time          `json:"processed_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

func ToPayoutResponse(p *wallet.Payout) PayoutResponse {
	return PayoutResponse{
		ID:                p.ID,
		CameramanID:       p.CameramanID,
		Amount:            p.Amount,
		OrangeMoneyNumber: p.OrangeMoneyNumber,
		Status:            p.Status,
		ExternalID:        p.ExternalID,
		FailureReason:     p.FailureReason,
		RequestedAt:       p.RequestedAt,
		ProcessedAt:       p.ProcessedAt,
		CompletedAt:       p.CompletedAt,
	}
}

func ToPayoutResponseList(payouts []*wallet.Payout) []PayoutResponse {
	out := make([]PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, ToPayoutResponse(p))
	}

	return out
}

func (h *Handler) withdrawals(w http.ResponseWriter, r *http.Request) {
	id := cameramanID(r)

	payouts, err := h.svc.Payouts(r.Context(), wallet.PayoutFilter{CameramanID: &id})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, ToPayoutResponseList(payouts))
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.svc.RequestWithdrawal(r.Context(), cameramanID(r), req.Amount)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, ToPayoutResponse(p))
}
