package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/booking"
	httpbooking "github.com/TECXBOY/SnapMe/internal/http/booking"
	"github.com/TECXBOY/SnapMe/internal/http/respond"
	httpwallet "github.com/TECXBOY/SnapMe/internal/http/wallet"
	"github.com/TECXBOY/SnapMe/internal/wallet"
)

const listLimit = 200

type Handler struct {
	bookings *booking.Service
	wallet   *wallet.Service
}

func NewHandler(bookings *booking.Service, wallet *wallet.Service) *Handler {
	return &Handler{bookings: bookings, wallet: wallet}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/payouts", h.payouts)
	r.Post("/payouts/{id}/process", h.processPayout)
	r.Post("/payouts/{id}/fail", h.failPayout)
	r.Get("/bookings", h.listBookings)
}

func (h *Handler) payouts(w http.ResponseWriter, r *http.Request) {
	filter := wallet.PayoutFilter{Limit: listLimit}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(wallet.PayoutStatus(s))
	}

	payouts, err := h.wallet.Payouts(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, httpwallet.ToPayoutResponseList(payouts))
}

func (h *Handler) processPayout(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.wallet.ProcessPayout(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, httpwallet.ToPayoutResponse(p))
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) failPayout(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req failRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	if req.Reason == "" {
		respond.Error(w, r, apperr.Invalid("reason", "required"))
		return
	}

	if err := h.wallet.FailPayout(r.Context(), id, req.Reason); err != nil {
		respond.Error(w, r, err)
		return
	}

	p, err := h.wallet.Payout(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, httpwallet.ToPayoutResponse(p))
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	filter := booking.ListFilter{Limit: listLimit}

	if s := r.URL.Query().Get("status"); s != "" {
		status := booking.Status(s)
		if !status.Valid() {
			respond.Error(w, r, apperr.Invalid("status", "unknown booking status"))
			return
		}

		filter.Status = &status
	}

	bookings, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, httpbooking.ToResponseList(bookings))
}
