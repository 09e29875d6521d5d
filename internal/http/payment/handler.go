package payment

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/http/respond"
	"github.com/TECXBOY/SnapMe/internal/payment"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBytes = 64 << 10
)

type Handler struct {
	svc *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)
}

// WebhookRoutes are mounted outside the authenticated group; callbacks are verified by signature.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/orange-money", h.webhook)
}

type paymentResponse struct {
	ID            uuid.UUID      `json:"id"`
	BookingID     uuid.UUID      `json:"booking_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Method        string         `json:"method"`
	Status        payment.Status `json:"status"`
	ExternalID    string         `json:"external_id,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	RefundedAt    *time.Time     `json:"refunded_at,omitempty"`
}

func toResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		BookingID:     p.BookingID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        p.Status,
		ExternalID:    p.ExternalID,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
		RefundedAt:    p.RefundedAt,
	}
}

// get refreshes the payment from the provider before answering. A provider that cannot
// be reached does not fail the request; the stored payment is returned instead.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	s, _ := auth.SessionFrom(r.Context())
	if s.UserID != p.CustomerID && s.UserID != p.CameramanID {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}

	refreshed, err := h.svc.Refresh(r.Context(), id)
	if err != nil {
		slog.Warn("payment refresh failed, answering with stored state", "payment_id", id, "error", err)
	}

	if refreshed != nil {
		p = refreshed
	}

	respond.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
