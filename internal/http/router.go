package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/http/admin"
	"github.com/TECXBOY/SnapMe/internal/http/booking"
	"github.com/TECXBOY/SnapMe/internal/http/cameraman"
	"github.com/TECXBOY/SnapMe/internal/http/payment"
	"github.com/TECXBOY/SnapMe/internal/http/wallet"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type Handlers struct {
	Cameramen *cameraman.Handler
	Bookings  *booking.Handler
	Payments  *payment.Handler
	Wallet    *wallet.Handler
	Admin     *admin.Handler
}

func New(verifier *auth.Verifier, corsOrigins []string, h Handlers) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", h.Payments.WebhookRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))
			r.Use(middleware.AllowContentType("application/json"))

			r.Route("/cameramen", h.Cameramen.Routes)
			r.Route("/bookings", h.Bookings.Routes)
			r.Route("/payments", h.Payments.Routes)

			r.Route("/wallet", func(r chi.Router) {
				r.Use(auth.RequireRole(profile.RoleCameraman))
				h.Wallet.Routes(r)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(profile.RoleAdmin))
				h.Admin.Routes(r)
			})
		})
	})

	return router
}
