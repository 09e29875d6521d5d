package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return rdb, nil
}

// ReplayGuard remembers webhook deliveries so a replayed one is applied at most once per TTL.
type ReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewReplayGuard(client *redis.Client, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{client: client, ttl: ttl, prefix: "snapme:webhook:"}
}

// First reports whether key has not been seen before and records it.
func (g *ReplayGuard) First(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording webhook %s: %w", key, err)
	}

	return ok, nil
}

// Forget drops key so a delivery whose processing failed can be retried by the provider.
func (g *ReplayGuard) Forget(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+key).Err()
}
