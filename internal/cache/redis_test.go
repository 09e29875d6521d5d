package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/cache"
)

// Nothing listens on port 1, so every command fails fast with connection refused.
const unreachable = "127.0.0.1:1"

func TestNewClient_Unreachable(t *testing.T) {
	_, err := cache.NewClient(context.Background(), cache.Config{Addr: unreachable})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging redis")
}

func TestReplayGuard_ReportsStoreErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachable, MaxRetries: -1, DialTimeout: time.Second})
	t.Cleanup(func() { _ = client.Close() })

	guard := cache.NewReplayGuard(client, time.Hour)

	first, err := guard.First(context.Background(), "payment:OM-1:success")
	require.Error(t, err)
	assert.False(t, first)
	assert.Contains(t, err.Error(), "payment:OM-1:success")

	assert.Error(t, guard.Forget(context.Background(), "payment:OM-1:success"))
}
