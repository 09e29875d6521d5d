// Package gateway is the provider-neutral view of a mobile-money provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const Currency = "SLL"

// Status is the normalized provider status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	// StatusRefunded is reported for a collection the provider has paid back.
	StatusRefunded Status = "refunded"
)

type InitiateRequest struct {
	Amount              int64
	Currency            string
	CustomerPhoneNumber string
	OrderID             string
	Description         string
	CallbackURL         string
}

// Handle is the provider's answer about a collection or refund.
type Handle struct {
	TransactionID string
	Status        Status
	Amount        int64
	Timestamp     time.Time
	Message       string
	PaymentURL    string
}

type RefundRequest struct {
	TransactionID string
	Amount        int64
	Reason        string
	// Reference is stable across retries of the same refund.
	Reference string
}

type PayoutRequest struct {
	PayoutID        string
	CameramanID     string
	Amount          int64
	RecipientNumber string
	Description     string
}

type PayoutHandle struct {
	TransactionID string
	Status        Status
	Amount        int64
	Timestamp     time.Time
	Message       string
}

type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Handle, error)
	Status(ctx context.Context, transactionID string) (*Handle, error)
	Refund(ctx context.Context, req RefundRequest) (*Handle, error)
	Payout(ctx context.Context, req PayoutRequest) (*PayoutHandle, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// EventType distinguishes webhook notifications.
type EventType string

const (
	EventPayment EventType = "payment"
	EventPayout  EventType = "payout"
)

// WebhookEvent is the body the provider posts to the callback URL.
// Reference is the order id for payments and the payout id for payouts.
type WebhookEvent struct {
	EventID       string    `json:"event_id"`
	Type          EventType `json:"type"`
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Status        Status    `json:"status"`
	Amount        int64     `json:"amount"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

var ErrUnauthenticatedWebhook = errors.New("webhook signature mismatch")

type Kind int

const (
	KindInvalidRequest Kind = iota + 1
	KindAuthFailure
	KindTransientNetwork
	KindProviderService
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindAuthFailure:
		return "auth_failure"
	case KindTransientNetwork:
		return "transient_network"
	case KindProviderService:
		return "provider_service"
	}

	return "unknown"
}

// Error is returned for every failed provider call.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}

	return fmt.Sprintf("gateway %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	return e.Kind == KindTransientNetwork || e.Kind == KindProviderService
}

// KindForStatus classifies a non-2xx provider response.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthFailure
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return KindTransientNetwork
	case code >= 500:
		return KindProviderService
	}

	return KindInvalidRequest
}

func IsRetryable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Retryable()
}

// IsDefinitive reports whether err is a provider answer that retrying cannot change.
func IsDefinitive(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && !gerr.Retryable()
}
