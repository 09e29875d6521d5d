package gateway

import (
	"context"
	"log/slog"
	"time"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2}
}

type retrying struct {
	next   Gateway
	policy Policy
}

// WithRetry retries calls that fail with a retryable kind, backing off exponentially between attempts.
func WithRetry(g Gateway, p Policy) Gateway {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if p.Multiplier < 1 {
		p.Multiplier = 1
	}

	return &retrying{next: g, policy: p}
}

func do[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	delay := p.BaseDelay

	var (
		res T
		err error
	)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res, err = fn()
		if err == nil || !IsRetryable(err) || attempt == p.MaxAttempts {
			return res, err
		}

		slog.Warn("retrying gateway call", "op", op, "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return res, err
}

func (r *retrying) Initiate(ctx context.Context, req InitiateRequest) (*Handle, error) {
	return do(ctx, r.policy, "initiate", func() (*Handle, error) { return r.next.Initiate(ctx, req) })
}

func (r *retrying) Status(ctx context.Context, transactionID string) (*Handle, error) {
	return do(ctx, r.policy, "status", func() (*Handle, error) { return r.next.Status(ctx, transactionID) })
}

func (r *retrying) Refund(ctx context.Context, req RefundRequest) (*Handle, error) {
	return do(ctx, r.policy, "refund", func() (*Handle, error) { return r.next.Refund(ctx, req) })
}

func (r *retrying) Payout(ctx context.Context, req PayoutRequest) (*PayoutHandle, error) {
	return do(ctx, r.policy, "payout", func() (*PayoutHandle, error) { return r.next.Payout(ctx, req) })
}

func (r *retrying) VerifyWebhookSignature(payload []byte, signature string) bool {
	return r.next.VerifyWebhookSignature(payload, signature)
}
