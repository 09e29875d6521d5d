// Package orangemoney implements gateway.Gateway against the Orange Money merchant API.
package orangemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TECXBOY/SnapMe/internal/gateway"
)

type Config struct {
	BaseURL       string
	APIKey        string
	SecretKey     string
	WebhookSecret string
	MerchantID    string
	CallbackURL   string
	RatePerSecond float64
	Timeout       time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1

	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(int(cfg.RatePerSecond), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

type initiateBody struct {
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	CustomerPhoneNumber string `json:"customerPhoneNumber"`
	OrderID             string `json:"orderId"`
	Description         string `json:"description"`
	CallbackURL         string `json:"callbackUrl,omitempty"`
}

type paymentResponse struct {
	TransactionID string         `json:"transactionId"`
	Status        gateway.Status `json:"status"`
	Amount        int64          `json:"amount"`
	Timestamp     time.Time      `json:"timestamp"`
	Message       string         `json:"message"`
	PaymentURL    string         `json:"paymentUrl"`
}

func (r paymentResponse) handle() *gateway.Handle {
	return &gateway.Handle{
		TransactionID: r.TransactionID,
		Status:        gateway.NormalizeStatus(r.Status),
		Amount:        r.Amount,
		Timestamp:     r.Timestamp,
		Message:       r.Message,
		PaymentURL:    r.PaymentURL,
	}
}

type refundBody struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	Reference     string `json:"refundReference,omitempty"`
}

type payoutBody struct {
	Reference       string `json:"reference"`
	RecipientNumber string `json:"recipientNumber"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	CallbackURL     string `json:"callbackUrl,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Handle, error) {
	body := initiateBody{
		Amount:              req.Amount,
		Currency:            req.Currency,
		CustomerPhoneNumber: req.CustomerPhoneNumber,
		OrderID:             req.OrderID,
		Description:         req.Description,
		CallbackURL:         req.CallbackURL,
	}

	if body.Currency == "" {
		body.Currency = gateway.Currency
	}

	if body.CallbackURL == "" {
		body.CallbackURL = c.cfg.CallbackURL
	}

	var resp paymentResponse
	if err := c.do(ctx, "initiate", http.MethodPost, "/payments/initiate", body, &resp); err != nil {
		return nil, err
	}

	return resp.handle(), nil
}

func (c *Client) Status(ctx context.Context, transactionID string) (*gateway.Handle, error) {
	path := "/payments/" + url.PathEscape(transactionID) + "/status"

	var resp paymentResponse
	if err := c.do(ctx, "status", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	if resp.TransactionID == "" {
		resp.TransactionID = transactionID
	}

	return resp.handle(), nil
}

func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Handle, error) {
	var resp paymentResponse
	if err := c.do(ctx, "refund", http.MethodPost, "/payments/refund", refundBody(req), &resp); err != nil {
		return nil, err
	}

	return resp.handle(), nil
}

func (c *Client) Payout(ctx context.Context, req gateway.PayoutRequest) (*gateway.PayoutHandle, error) {
	body := payoutBody{
		Reference:       req.PayoutID,
		RecipientNumber: req.RecipientNumber,
		Amount:          req.Amount,
		Currency:        gateway.Currency,
		Description:     req.Description,
		CallbackURL:     c.cfg.CallbackURL,
	}

	var resp paymentResponse
	if err := c.do(ctx, "payout", http.MethodPost, "/payouts/initiate", body, &resp); err != nil {
		return nil, err
	}

	return &gateway.PayoutHandle{
		TransactionID: resp.TransactionID,
		Status:        gateway.NormalizeStatus(resp.Status),
		Amount:        resp.Amount,
		Timestamp:     resp.Timestamp,
		Message:       resp.Message,
	}, nil
}

func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	ok := verifySignature(c.cfg.WebhookSecret, payload, signature)
	if !ok {
		slog.Warn("rejected orange money webhook", "reason", "signature mismatch", "bytes", len(payload))
	}

	return ok
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Kind: gateway.KindTransientNetwork, Op: op, Message: "rate limiter", Err: err}
	}

	var payload []byte

	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return &gateway.Error{Kind: gateway.KindInvalidRequest, Op: op, Message: "encoding request", Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return &gateway.Error{Kind: gateway.KindInvalidRequest, Op: op, Message: "building request", Err: err}
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Merchant-Id", c.cfg.MerchantID)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", requestSignature(c.cfg.SecretKey, method, path, timestamp, payload))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return &gateway.Error{Kind: gateway.KindTransientNetwork, Op: op, Message: "transport", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &gateway.Error{Kind: gateway.KindTransientNetwork, Op: op, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &gateway.Error{
			Kind:       gateway.KindForStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}

		if gerr.Kind == gateway.KindAuthFailure {
			slog.Error("orange money rejected credentials", "op", op, "status", resp.StatusCode, "message", gerr.Message)
		}

		return gerr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &gateway.Error{Kind: gateway.KindProviderService, Op: op, StatusCode: resp.StatusCode, Message: "decoding response", Err: err}
	}

	return nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}

		if e.Error != "" {
			return e.Error
		}
	}

	return strings.TrimSpace(string(body))
}
