package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/notify"
)

type recorder struct {
	events []notify.Event
	err    error
}

func (r *recorder) Dispatch(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestSend(t *testing.T) {
	rec := &recorder{}
	notify.Send(context.Background(), rec, notify.Event{Type: notify.BookingAccepted, Recipient: uuid.New()})

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].OccurredAt.IsZero())

	rec.err = errors.New("broker down")
	assert.NotPanics(t, func() {
		notify.Send(context.Background(), rec, notify.Event{Type: notify.BookingRejected})
	})
	assert.Len(t, rec.events, 2)

	assert.NotPanics(t, func() {
		notify.Send(context.Background(), nil, notify.Event{Type: notify.BookingRejected})
	})
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "notification.payout_processed", notify.RoutingKey(notify.PayoutProcessed))
}

func TestLogDispatcher(t *testing.T) {
	assert.NoError(t, notify.LogDispatcher{}.Dispatch(context.Background(), notify.Event{Type: notify.PaymentReceived}))
}
