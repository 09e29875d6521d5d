package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Booking.CommissionRate.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int64(100000), cfg.Wallet.MinimumWithdrawal)
	assert.Equal(t, 180*time.Second, cfg.PaymentTimeout())
	assert.Equal(t, 15*time.Minute, cfg.RequestTimeout())
	assert.Equal(t, time.Minute, cfg.Booking.SweepInterval)
}

func TestLoad_CommissionOverride(t *testing.T) {
	t.Setenv("PLATFORM_COMMISSION_PERCENTAGE", "12.5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "12.5", cfg.Booking.CommissionRate.String())
}

func TestLoad_RejectsCommissionOutOfRange(t *testing.T) {
	t.Setenv("PLATFORM_COMMISSION_PERCENTAGE", "101")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestOrangeMoneyURL(t *testing.T) {
	t.Setenv("ORANGE_MONEY_BASE_URL", "https://api.orange.example")
	t.Setenv("ORANGE_MONEY_SANDBOX_URL", "https://sandbox.orange.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.orange.example", cfg.OrangeMoneyURL())

	t.Setenv("APP_ENV", "production")

	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.orange.example", cfg.OrangeMoneyURL())
}
