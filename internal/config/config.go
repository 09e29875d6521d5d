package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"SnapMe"`
		Env  string `envconfig:"APP_ENV" default:"development"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"snapme"`
		Migrate  bool   `envconfig:"DB_MIGRATE" default:"true"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"*"`
	}

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
		Issuer    string `envconfig:"AUTH_JWT_ISSUER"`
	}

	Booking struct {
		CommissionRate        decimal.Decimal `envconfig:"PLATFORM_COMMISSION_PERCENTAGE" default:"15"`
		RequestTimeoutMinutes int             `envconfig:"BOOKING_REQUEST_TIMEOUT_MINUTES" default:"15"`
		SweepInterval         time.Duration   `envconfig:"BOOKING_SWEEP_INTERVAL" default:"60s"`
		ReconcileInterval     time.Duration   `envconfig:"BOOKING_RECONCILE_INTERVAL" default:"60s"`
	}

	Payment struct {
		TimeoutSeconds int           `envconfig:"PAYMENT_TIMEOUT_SECONDS" default:"180"`
		PollInterval   time.Duration `envconfig:"PAYMENT_POLLING_INTERVAL" default:"5s"`
	}

	Wallet struct {
		MinimumWithdrawal int64         `envconfig:"MINIMUM_WITHDRAWAL_AMOUNT" default:"100000"`
		PayoutInterval    time.Duration `envconfig:"PAYOUT_PROCESSING_INTERVAL" default:"60s"`
		AutoPayout        bool          `envconfig:"PAYOUT_AUTO_PROCESS" default:"true"`
		ProcessingTimeout time.Duration `envconfig:"PAYOUT_PROCESSING_TIMEOUT" default:"10m"`
		ReconcileInterval time.Duration `envconfig:"PAYOUT_RECONCILE_INTERVAL" default:"60s"`
	}

	OrangeMoney struct {
		APIKey        string  `envconfig:"ORANGE_MONEY_API_KEY"`
		SecretKey     string  `envconfig:"ORANGE_MONEY_SECRET_KEY"`
		WebhookSecret string  `envconfig:"ORANGE_MONEY_WEBHOOK_SECRET"`
		MerchantID    string  `envconfig:"ORANGE_MONEY_MERCHANT_ID"`
		BaseURL       string  `envconfig:"ORANGE_MONEY_BASE_URL"`
		SandboxURL    string  `envconfig:"ORANGE_MONEY_SANDBOX_URL"`
		CallbackURL   string  `envconfig:"ORANGE_MONEY_CALLBACK_URL"`
		RateLimit     float64 `envconfig:"ORANGE_MONEY_RATE_LIMIT" default:"10"`
	}

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"snapme.events"`
	}

	Console struct {
		OperatorID uuid.UUID `envconfig:"CONSOLE_OPERATOR_ID"`
	}

	Redis struct {
		Addr      string        `envconfig:"REDIS_ADDR"`
		Password  string        `envconfig:"REDIS_PASSWORD"`
		DB        int           `envconfig:"REDIS_DB" default:"0"`
		ReplayTTL time.Duration `envconfig:"WEBHOOK_REPLAY_TTL" default:"24h"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// OrangeMoneyURL picks the production or sandbox endpoint for the current environment.
func (c *Config) OrangeMoneyURL() string {
	if c.IsProduction() {
		return c.OrangeMoney.BaseURL
	}

	return c.OrangeMoney.SandboxURL
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Booking.RequestTimeoutMinutes) * time.Minute
}

func (c *Config) PaymentTimeout() time.Duration {
	return time.Duration(c.Payment.TimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	rate := c.Booking.CommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("commission rate must be between 0 and 100, got %s", rate)
	}

	if c.Booking.RequestTimeoutMinutes <= 0 {
		return fmt.Errorf("booking request timeout must be positive")
	}

	if c.Wallet.MinimumWithdrawal <= 0 {
		return fmt.Errorf("minimum withdrawal must be positive")
	}

	return nil
}
