package payment

import (
	"context"

	"github.com/google/uuid"
)

// Listener is told about every persisted status change.
type Listener interface {
	PaymentStatusChanged(ctx context.Context, p *Payment) error
}

// PayoutResolver applies payout outcomes reported by provider webhooks.
type PayoutResolver interface {
	CompletePayout(ctx context.Context, payoutID uuid.UUID, externalID string) error
	FailPayout(ctx context.Context, payoutID uuid.UUID, reason string) error
}

// ReplayGuard suppresses duplicate webhook deliveries.
type ReplayGuard interface {
	First(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
