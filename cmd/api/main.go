package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/TECXBOY/SnapMe/internal/app"
	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/config"
	snapHttp "github.com/TECXBOY/SnapMe/internal/http"
	adminHandler "github.com/TECXBOY/SnapMe/internal/http/admin"
	bookingHandler "github.com/TECXBOY/SnapMe/internal/http/booking"
	cameramanHandler "github.com/TECXBOY/SnapMe/internal/http/cameraman"
	paymentHandler "github.com/TECXBOY/SnapMe/internal/http/payment"
	walletHandler "github.com/TECXBOY/SnapMe/internal/http/wallet"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.JWTSecret == "" {
		slog.Error("AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	router := snapHttp.New(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), cfg.Server.CORSOrigins, snapHttp.Handlers{
		Cameramen: cameramanHandler.NewHandler(a.Profiles),
		Bookings:  bookingHandler.NewHandler(a.Bookings),
		Payments:  paymentHandler.NewHandler(a.Payments),
		Wallet:    walletHandler.NewHandler(a.Wallet),
		Admin:     adminHandler.NewHandler(a.Bookings, a.Wallet),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	runner := a.Jobs()
	runner.Start(ctx)

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", srv.Addr, "env", cfg.App.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	runner.Stop()
}
