package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/http/respond"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type Handler struct {
	svc *booking.Service
}

func NewHandler(svc *booking.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.With(auth.RequireRole(profile.RoleCustomer)).Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.With(auth.RequireRole(profile.RoleCameraman)).Post("/{id}/respond", h.answer)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
	r.With(auth.RequireRole(profile.RoleCustomer)).Post("/{id}/payment", h.pay)
}

func actor(r *http.Request) booking.Actor {
	s, _ := auth.SessionFrom(r.Context())
	return booking.Actor{ID: s.UserID, Role: s.Role}
}

type createBookingRequest struct {
	CameramanID uuid.UUID        `json:"cameraman_id"`
	PackageID   uuid.UUID        `json:"package_id"`
	AddOnIDs    []uuid.UUID      `json:"add_on_ids"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Location    profile.Location `json:"location"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	b, err := h.svc.Create(r.Context(), booking.CreateParams{
		CustomerID:  actor(r).ID,
		CameramanID: req.CameramanID,
		PackageID:   req.PackageID,
		AddOnIDs:    req.AddOnIDs,
		ScheduledAt: req.ScheduledAt,
		Location:    req.Location,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, ToResponse(b))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	filter := booking.ListFilter{Limit: 100}

	switch a.Role {
	case profile.RoleCustomer:
		filter.CustomerID = &a.ID
	case profile.RoleCameraman:
		filter.CameramanID = &a.ID
	}

	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = new(booking.Status(s))
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			filter.Limit = min(n, 500)
		}
	}

	bookings, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, ToResponseList(bookings))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if a := actor(r); !a.IsAdmin() && !b.Participant(a.ID) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	respond.JSON(w, http.StatusOK, ToResponse(b))
}

type answerRequest struct {
	Response booking.Response `json:"response"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req answerRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	b, err := h.svc.Respond(r.Context(), id, actor(r).ID, req.Response)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, ToResponse(b))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	b, err := h.svc.Complete(r.Context(), id, actor(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, ToResponse(b))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
	}

	b, err := h.svc.Cancel(r.Context(), id, actor(r), req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, ToResponse(b))
}

type payRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type payResponse struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	Status     string    `json:"status"`
	PaymentURL string    `json:"payment_url,omitempty"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req payRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	res, err := h.svc.Pay(r.Context(), booking.PayParams{
		BookingID:   id,
		CustomerID:  actor(r).ID,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusAccepted, payResponse{
		PaymentID:  res.Payment.ID,
		Status:     string(res.Payment.Status),
		PaymentURL: res.PaymentURL,
	})
}
