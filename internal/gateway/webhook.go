package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NormalizeStatus folds provider spellings onto the gateway statuses.
// Anything unrecognised is treated as still pending.
func NormalizeStatus(s Status) Status {
	switch strings.ToLower(string(s)) {
	case "success", "successful", "completed", "succeeded":
		return StatusSuccess
	case "failed", "failure", "cancelled", "expired", "rejected":
		return StatusFailed
	case "refunded", "reversed":
		return StatusRefunded
	}

	return StatusPending
}

// ParseWebhook decodes a webhook body. Callers verify the signature first.
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding webhook: %w", err)
	}

	if ev.Reference == "" && ev.TransactionID == "" {
		return nil, errors.New("webhook carries neither reference nor transaction id")
	}

	if ev.Type == "" {
		ev.Type = EventPayment
	}

	ev.Status = NormalizeStatus(ev.Status)

	return &ev, nil
}

// ReplayKey identifies a webhook delivery for duplicate suppression.
func (e *WebhookEvent) ReplayKey() string {
	if e.EventID != "" {
		return e.EventID
	}

	return fmt.Sprintf("%s:%s:%s", e.Type, e.TransactionID, e.Status)
}
