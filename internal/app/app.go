// Package app wires configuration, storage and providers into the core services shared by the
// API server and the operator console.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TECXBOY/SnapMe/internal/booking"
	bookingStore "github.com/TECXBOY/SnapMe/internal/booking/store"
	"github.com/TECXBOY/SnapMe/internal/cache"
	"github.com/TECXBOY/SnapMe/internal/config"
	"github.com/TECXBOY/SnapMe/internal/database"
	"github.com/TECXBOY/SnapMe/internal/gateway"
	"github.com/TECXBOY/SnapMe/internal/gateway/orangemoney"
	"github.com/TECXBOY/SnapMe/internal/jobs"
	"github.com/TECXBOY/SnapMe/internal/notify"
	"github.com/TECXBOY/SnapMe/internal/payment"
	paymentStore "github.com/TECXBOY/SnapMe/internal/payment/store"
	"github.com/TECXBOY/SnapMe/internal/profile"
	profileStore "github.com/TECXBOY/SnapMe/internal/profile/store"
	"github.com/TECXBOY/SnapMe/internal/wallet"
	walletStore "github.com/TECXBOY/SnapMe/internal/wallet/store"
)

const gatewayTimeout = 30 * time.Second

type App struct {
	Config *config.Config

	Profiles *profile.Service
	Bookings *booking.Service
	Payments *payment.Service
	Wallet   *wallet.Service

	db        *sql.DB
	redis     *redis.Client
	publisher *notify.Publisher
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(cfg.ConnectionString(), database.Pool{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	a := &App{Config: cfg, db: db}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}

	if cfg.AMQP.URL != "" {
		pub, err := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to broker: %w", err)
		}

		a.publisher = pub
		dispatcher = pub
	} else {
		slog.Warn("no AMQP_URL configured, notifications are only logged")
	}

	paymentOpts := []payment.Option{payment.WithDispatcher(dispatcher)}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}

		a.redis = client
		paymentOpts = append(paymentOpts, payment.WithReplayGuard(cache.NewReplayGuard(client, cfg.Redis.ReplayTTL)))
	} else {
		slog.Warn("no REDIS_ADDR configured, webhook replays rely on state transitions only")
	}

	gw := gateway.WithRetry(orangemoney.New(orangemoney.Config{
		BaseURL:       cfg.OrangeMoneyURL(),
		APIKey:        cfg.OrangeMoney.APIKey,
		SecretKey:     cfg.OrangeMoney.SecretKey,
		WebhookSecret: cfg.OrangeMoney.WebhookSecret,
		MerchantID:    cfg.OrangeMoney.MerchantID,
		CallbackURL:   cfg.OrangeMoney.CallbackURL,
		RatePerSecond: cfg.OrangeMoney.RateLimit,
		Timeout:       gatewayTimeout,
	}), gateway.DefaultPolicy())

	a.Profiles = profile.NewService(profileStore.New(db))

	a.Payments = payment.NewService(paymentStore.New(db), gw, payment.Config{
		Timeout:     cfg.PaymentTimeout(),
		CallbackURL: cfg.OrangeMoney.CallbackURL,
	}, paymentOpts...)

	a.Wallet = wallet.NewService(walletStore.New(db), gw, a.Profiles, wallet.Config{
		MinimumWithdrawal: cfg.Wallet.MinimumWithdrawal,
		ProcessingTimeout: cfg.Wallet.ProcessingTimeout,
	}, wallet.WithDispatcher(dispatcher))

	a.Bookings = booking.NewService(bookingStore.New(db), a.Profiles, a.Payments, a.Wallet, booking.Config{
		CommissionRate: cfg.Booking.CommissionRate,
		RequestTimeout: cfg.RequestTimeout(),
	}, booking.WithDispatcher(dispatcher))

	a.Payments.SetListener(a.Bookings)
	a.Payments.SetPayoutResolver(a.Wallet)

	return a, nil
}

// Jobs returns the background loops. Payout processing is left out when auto payout is off;
// stale payouts are still reconciled.
func (a *App) Jobs() *jobs.Runner {
	payoutInterval := a.Config.Wallet.PayoutInterval
	if !a.Config.Wallet.AutoPayout {
		payoutInterval = 0
	}

	return jobs.NewRunner(
		jobs.Job{Name: "booking-expiry", Interval: a.Config.Booking.SweepInterval, Task: a.Bookings.SweepExpired},
		jobs.Job{Name: "payment-poll", Interval: a.Config.Payment.PollInterval, Task: a.Payments.PollInFlight},
		jobs.Job{Name: "refund-reconcile", Interval: a.Config.Booking.ReconcileInterval, Task: a.Bookings.ReconcileCancelling},
		jobs.Job{Name: "settlement-reconcile", Interval: a.Config.Booking.ReconcileInterval, Task: a.Bookings.SettleCompleted},
		jobs.Job{Name: "payout-processing", Interval: payoutInterval, Task: a.Wallet.ProcessPending},
		jobs.Job{Name: "payout-reconcile", Interval: a.Config.Wallet.ReconcileInterval, Task: a.Wallet.ReconcileProcessing},
	)
}

func (a *App) Close() error {
	var errs []error

	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}

	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}

	if a.db != nil {
		errs = append(errs, a.db.Close())
	}

	return errors.Join(errs...)
}
