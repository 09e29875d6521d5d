package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/booking"
	"github.com/TECXBOY/SnapMe/internal/payment"
	"github.com/TECXBOY/SnapMe/internal/profile"
	"github.com/TECXBOY/SnapMe/internal/wallet"
)

type memRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]booking.Booking
	// interleave runs once before the next UpdateBooking.
	interleave func()
}

func newMemRepo() *memRepo {
	return &memRepo{bookings: map[uuid.UUID]booking.Booking{}}
}

func (r *memRepo) CreateBooking(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookings[b.ID] = *b

	return nil
}

func (r *memRepo) GetBooking(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	return &b, nil
}

func (r *memRepo) UpdateBooking(_ context.Context, b *booking.Booking, expectedVersion int) error {
	r.mu.Lock()
	interleave := r.interleave
	r.interleave = nil
	r.mu.Unlock()

	if interleave != nil {
		interleave()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[b.ID]
	if !ok {
		return apperr.ErrNotFound
	}

	if current.Version != expectedVersion {
		return apperr.Conflictf("booking %s changed", b.ID)
	}

	r.bookings[b.ID] = *b

	return nil
}

func (r *memRepo) ListBookings(_ context.Context, filter booking.ListFilter) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*booking.Booking

	for _, b := range r.bookings {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}

		if filter.PaymentStatus != nil && b.PaymentStatus != *filter.PaymentStatus {
			continue
		}

		out = append(out, &b)
	}

	return out, nil
}

func (r *memRepo) ListDueRequests(_ context.Context, now time.Time, _ int) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*booking.Booking

	for _, b := range r.bookings {
		if b.Status == booking.StatusPending && !b.RequestExpiresAt.After(now) {
			out = append(out, &b)
		}
	}

	return out, nil
}

type fakeCatalog struct {
	cameraman *profile.Cameraman
}

func (c fakeCatalog) Cameraman(_ context.Context, id uuid.UUID) (*profile.Cameraman, error) {
	if c.cameraman == nil || c.cameraman.ID != id {
		return nil, apperr.ErrNotFound
	}

	cam := *c.cameraman

	return &cam, nil
}

type fakePayments struct {
	mu        sync.Mutex
	payments  map[uuid.UUID]*payment.Payment
	refundErr error
	initiated []payment.InitiateParams
	refunds   int
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: map[uuid.UUID]*payment.Payment{}}
}

func (f *fakePayments) set(bookingID uuid.UUID, status payment.Status) *payment.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &payment.Payment{ID: uuid.New(), BookingID: bookingID, Status: status}
	f.payments[bookingID] = p

	return p
}

func (f *fakePayments) Initiate(_ context.Context, params payment.InitiateParams) (*payment.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.initiated = append(f.initiated, params)
	p := &payment.Payment{ID: uuid.New(), BookingID: params.BookingID, Amount: params.Amount, Status: payment.StatusPending}
	f.payments[params.BookingID] = p

	return &payment.InitiateResult{Payment: p, PaymentURL: "https://om.example/pay"}, nil
}

func (f *fakePayments) ForBooking(_ context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[bookingID]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	cp := *p

	return &cp, nil
}

func (f *fakePayments) Refund(_ context.Context, bookingID uuid.UUID, _ string) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refunds++

	if f.refundErr != nil {
		return nil, f.refundErr
	}

	p, ok := f.payments[bookingID]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	p.Status = payment.StatusRefunded
	cp := *p

	return &cp, nil
}

func (f *fakePayments) Abandon(_ context.Context, bookingID uuid.UUID) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[bookingID]
	if !ok {
		return nil, nil
	}

	if p.Status.InFlight() {
		p.Status = payment.StatusFailed
	}

	cp := *p

	return &cp, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	err     error
	settled []wallet.SettleParams
}

func (l *fakeLedger) SettleBooking(_ context.Context, params wallet.SettleParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}

	l.settled = append(l.settled, params)

	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

var (
	fixedNow    = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	customerID  = uuid.MustParse("0b7f8e0e-5d0a-4c8e-9a43-8f3c1b2d4e01")
	cameramanID = uuid.MustParse("4a9e2c51-7f3b-4d62-8c1e-5b6a7d8e9f02")
	packageID   = uuid.MustParse("9c3d5e7f-1a2b-4c4d-8e6f-7a8b9c0d1e03")
	addOnID     = uuid.MustParse("2e4f6a8b-3c5d-4e7f-9a1b-2c3d4e5f6a04")
)

func testCameraman() *profile.Cameraman {
	return &profile.Cameraman{
		User:           profile.User{ID: cameramanID, PhoneNumber: "+23277000111", Role: profile.RoleCameraman},
		ApprovalStatus: profile.ApprovalApproved,
		Availability:   profile.Available,
		Packages: []profile.Package{{
			ID:        packageID,
			Name:      "Wedding",
			BasePrice: 150000,
			AddOns:    []profile.AddOn{{ID: addOnID, Name: "Drone", Price: 50000}},
		}},
	}
}

type fixture struct {
	svc      *booking.Service
	repo     *memRepo
	payments *fakePayments
	ledger   *fakeLedger
	clock    *testClock
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMemRepo(),
		payments: newFakePayments(),
		ledger:   &fakeLedger{},
		clock:    &testClock{now: fixedNow},
	}

	f.svc = booking.NewService(f.repo, fakeCatalog{cameraman: testCameraman()}, f.payments, f.ledger,
		booking.Config{CommissionRate: decimal.RequireFromString("15"), RequestTimeout: 15 * time.Minute},
		booking.WithClock(f.clock.Now),
	)

	return f
}

func (f *fixture) create(t *testing.T) *booking.Booking {
	t.Helper()

	b, err := f.svc.Create(context.Background(), booking.CreateParams{
		CustomerID:  customerID,
		CameramanID: cameramanID,
		PackageID:   packageID,
		AddOnIDs:    []uuid.UUID{addOnID},
		ScheduledAt: fixedNow.Add(72 * time.Hour),
		Location:    profile.Location{Latitude: 8.4657, Longitude: -13.2317, Address: "Aberdeen, Freetown"},
	})
	require.NoError(t, err)

	return b
}

var (
	cameramanActor = booking.Actor{ID: cameramanID, Role: profile.RoleCameraman}
	customerActor  = booking.Actor{ID: customerID, Role: profile.RoleCustomer}
)

func TestService_Create(t *testing.T) {
	f := newFixture()
	b := f.create(t)

	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, booking.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, int64(200000), b.TotalPrice)
	assert.Equal(t, int64(30000), b.PlatformCommission)
	assert.Equal(t, int64(170000), b.CameramanEarnings)
	assert.Equal(t, b.TotalPrice, b.PlatformCommission+b.CameramanEarnings)
	assert.Equal(t, fixedNow.Add(15*time.Minute), b.RequestExpiresAt)
	assert.Equal(t, 1, b.Version)
	require.Len(t, b.AddOns, 1)
	assert.Equal(t, "Drone", b.AddOns[0].Name)
}

func TestService_Create_Validation(t *testing.T) {
	type testCase struct {
		name   string
		modify func(p *booking.CreateParams)
	}

	tests := []testCase{
		{
			name:   "Unknown Package",
			modify: func(p *booking.CreateParams) { p.PackageID = uuid.New() },
		},
		{
			name:   "Add-on From Another Package",
			modify: func(p *booking.CreateParams) { p.AddOnIDs = []uuid.UUID{uuid.New()} },
		},
		{
			name:   "Scheduled In The Past",
			modify: func(p *booking.CreateParams) { p.ScheduledAt = fixedNow.Add(-time.Hour) },
		},
		{
			name:   "Unknown Cameraman",
			modify: func(p *booking.CreateParams) { p.CameramanID = uuid.New() },
		},
		{
			name:   "Bad Coordinates",
			modify: func(p *booking.CreateParams) { p.Location.Latitude = 91 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			params := booking.CreateParams{
				CustomerID:  customerID,
				CameramanID: cameramanID,
				PackageID:   packageID,
				ScheduledAt: fixedNow.Add(24 * time.Hour),
			}
			tt.modify(&params)

			_, err := f.svc.Create(context.Background(), params)

			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
			assert.Empty(t, f.repo.bookings)
		})
	}
}

func TestService_Respond(t *testing.T) {
	type testCase struct {
		name       string
		prepare    func(f *fixture, b *booking.Booking)
		responder  uuid.UUID
		response   booking.Response
		wantStatus booking.Status
		wantErr    error
	}

	tests := []testCase{
		{
			name:       "Accept",
			responder:  cameramanID,
			response:   booking.Accept,
			wantStatus: booking.StatusAccepted,
		},
		{
			name:       "Reject",
			responder:  cameramanID,
			response:   booking.Reject,
			wantStatus: booking.StatusRejected,
		},
		{
			name:       "Not The Booked Cameraman",
			responder:  uuid.New(),
			response:   booking.Accept,
			wantStatus: booking.StatusPending,
			wantErr:    apperr.ErrForbidden,
		},
		{
			name: "Deadline Passed Before Sweep",
			prepare: func(f *fixture, _ *booking.Booking) {
				f.clock.Advance(16 * time.Minute)
			},
			responder:  cameramanID,
			response:   booking.Accept,
			wantStatus: booking.StatusPending,
			wantErr:    apperr.ErrExpired,
		},
		{
			name: "Deadline Passed After Sweep",
			prepare: func(f *fixture, _ *booking.Booking) {
				f.clock.Advance(16 * time.Minute)
				_, _ = f.svc.SweepExpired(context.Background())
			},
			responder:  cameramanID,
			response:   booking.Accept,
			wantStatus: booking.StatusCancelled,
			wantErr:    apperr.ErrExpired,
		},
		{
			name: "Already Accepted",
			prepare: func(f *fixture, b *booking.Booking) {
				_, _ = f.svc.Respond(context.Background(), b.ID, cameramanID, booking.Accept)
			},
			responder:  cameramanID,
			response:   booking.Reject,
			wantStatus: booking.StatusAccepted,
			wantErr:    apperr.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			b := f.create(t)

			if tt.prepare != nil {
				tt.prepare(f, b)
			}

			_, err := f.svc.Respond(context.Background(), b.ID, tt.responder, tt.response)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			stored, err := f.repo.GetBooking(context.Background(), b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}
}

func TestService_Respond_ConcurrentAnswersOneWins(t *testing.T) {
	f := newFixture()
	b := f.create(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)

	for i := range 20 {
		resp := booking.Accept
		if i%2 == 1 {
			resp = booking.Reject
		}

		wg.Go(func() {
			_, err := f.svc.Respond(context.Background(), b.ID, cameramanID, resp)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 19, conflicts)

	stored, err := f.repo.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Contains(t, []booking.Status{booking.StatusAccepted, booking.StatusRejected}, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestService_SweepExpired(t *testing.T) {
	f := newFixture()
	due := f.create(t)

	f.clock.Advance(10 * time.Minute)
	fresh := f.create(t)

	f.clock.Advance(6 * time.Minute)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for range 5 {
		wg.Go(func() {
			n, err := f.svc.SweepExpired(context.Background())
			assert.NoError(t, err)

			mu.Lock()
			total += n
			mu.Unlock()
		})
	}

	wg.Wait()

	assert.Equal(t, 1, total)

	stored, err := f.repo.GetBooking(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, booking.ReasonTimeout, stored.CancelReason)
	assert.Nil(t, stored.CancelledBy)

	stored, err = f.repo.GetBooking(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)
}

func TestService_Expire_AcceptedBeforeDeadline(t *testing.T) {
	f := newFixture()
	b := f.create(t)

	_, err := f.svc.Respond(context.Background(), b.ID, cameramanID, booking.Accept)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	expired, err := f.svc.Expire(context.Background(), b.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestService_Expire_RefundsPaidRequest(t *testing.T) {
	f := newFixture()
	b := f.create(t)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(context.Background(), p))

	f.clock.Advance(20 * time.Minute)

	expired, err := f.svc.Expire(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	stored, err := f.repo.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, booking.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, 1, f.payments.refunds)
}

func TestService_HappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)

	res, err := f.svc.Pay(ctx, booking.PayParams{BookingID: b.ID, CustomerID: customerID, PhoneNumber: "076123456"})
	require.NoError(t, err)
	require.Len(t, f.payments.initiated, 1)
	assert.Equal(t, int64(200000), f.payments.initiated[0].Amount)
	assert.Equal(t, int64(30000), f.payments.initiated[0].PlatformFee)
	assert.Equal(t, int64(170000), f.payments.initiated[0].CameramanAmount)
	assert.Equal(t, "+23277000111", f.payments.initiated[0].CameramanPhoneNumber)

	_, err = f.svc.Respond(ctx, b.ID, cameramanID, booking.Accept)
	require.NoError(t, err)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	p.ID = res.Payment.ID
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, stored.PaymentStatus)

	done, err := f.svc.Complete(ctx, b.ID, customerActor)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, done.Status)
	assert.Equal(t, booking.PaymentReleased, done.PaymentStatus)
	assert.NotNil(t, done.CompletedAt)

	require.Len(t, f.ledger.settled, 1)
	assert.Equal(t, wallet.SettleParams{
		CameramanID: cameramanID,
		BookingID:   b.ID,
		Total:       200000,
		Commission:  30000,
	}, f.ledger.settled[0])

	// Completing a released booking changes nothing.
	_, err = f.svc.Complete(ctx, b.ID, customerActor)
	require.NoError(t, err)
	assert.Len(t, f.ledger.settled, 1)
}

func TestService_Complete_SettlementFailureLeavesBookingPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Respond(ctx, b.ID, cameramanID, booking.Accept)
	require.NoError(t, err)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	f.ledger.err = errors.New("ledger unavailable")

	done, err := f.svc.Complete(ctx, b.ID, cameramanActor)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, done.Status)
	assert.Equal(t, booking.PaymentPaid, done.PaymentStatus)
	assert.Empty(t, f.ledger.settled)

	n, err := f.svc.SettleCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.ledger.err = nil

	n, err = f.svc.SettleCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, stored.Status)
	assert.Equal(t, booking.PaymentReleased, stored.PaymentStatus)
	require.Len(t, f.ledger.settled, 1)
	assert.Equal(t, b.ID, f.ledger.settled[0].BookingID)

	n, err = f.svc.SettleCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.ledger.settled, 1)
}

func TestService_Complete_Rejected(t *testing.T) {
	type testCase struct {
		name    string
		prepare func(f *fixture, b *booking.Booking)
		actor   booking.Actor
		wantErr error
	}

	tests := []testCase{
		{
			name:    "Still Pending",
			actor:   customerActor,
			wantErr: apperr.ErrConflict,
		},
		{
			name: "No Payment",
			prepare: func(f *fixture, b *booking.Booking) {
				_, _ = f.svc.Respond(context.Background(), b.ID, cameramanID, booking.Accept)
			},
			actor:   cameramanActor,
			wantErr: apperr.ErrConflict,
		},
		{
			name: "Payment Pending",
			prepare: func(f *fixture, b *booking.Booking) {
				_, _ = f.svc.Respond(context.Background(), b.ID, cameramanID, booking.Accept)
				f.payments.set(b.ID, payment.StatusPending)
			},
			actor:   cameramanActor,
			wantErr: apperr.ErrConflict,
		},
		{
			name:    "Outsider",
			actor:   booking.Actor{ID: uuid.New(), Role: profile.RoleCustomer},
			wantErr: apperr.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			b := f.create(t)

			if tt.prepare != nil {
				tt.prepare(f, b)
			}

			_, err := f.svc.Complete(context.Background(), b.ID, tt.actor)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.ledger.settled)
		})
	}
}

func TestService_Cancel(t *testing.T) {
	f := newFixture()
	b := f.create(t)
	f.payments.set(b.ID, payment.StatusPending)

	cancelled, err := f.svc.Cancel(context.Background(), b.ID, customerActor, "")
	require.NoError(t, err)

	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	assert.Equal(t, booking.PaymentUnpaid, cancelled.PaymentStatus)
	assert.Equal(t, &customerID, cancelled.CancelledBy)
	assert.Equal(t, "cancelled by customer", cancelled.CancelReason)

	p, err := f.payments.ForBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Zero(t, f.payments.refunds)

	_, err = f.svc.Cancel(context.Background(), b.ID, customerActor, "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestService_Cancel_PendingRequest(t *testing.T) {
	type testCase struct {
		name    string
		actor   booking.Actor
		wantErr error
	}

	tests := []testCase{
		{
			name:  "Customer",
			actor: customerActor,
		},
		{
			name:  "Admin",
			actor: booking.Actor{ID: uuid.New(), Role: profile.RoleAdmin},
		},
		{
			name:    "Booked Cameraman",
			actor:   cameramanActor,
			wantErr: apperr.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			b := f.create(t)

			_, err := f.svc.Cancel(context.Background(), b.ID, tt.actor, "")

			stored, getErr := f.repo.GetBooking(context.Background(), b.ID)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, booking.StatusPending, stored.Status)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, booking.StatusCancelled, stored.Status)
		})
	}
}

func TestService_Cancel_LosingRaceLeavesPaymentAlone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)
	f.payments.set(b.ID, payment.StatusPending)

	f.repo.interleave = func() {
		_, err := f.svc.Respond(ctx, b.ID, cameramanID, booking.Accept)
		require.NoError(t, err)
	}

	_, err := f.svc.Cancel(ctx, b.ID, customerActor, "")
	require.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAccepted, stored.Status)

	p, err := f.payments.ForBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
}

func TestService_PaymentStatusChanged_RefundsCaptureAfterCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)
	f.payments.set(b.ID, payment.StatusPending)

	_, err := f.svc.Cancel(ctx, b.ID, customerActor, "")
	require.NoError(t, err)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, booking.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, 1, f.payments.refunds)
}

func TestService_Cancel_RefundFailureLeavesCancelling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Respond(ctx, b.ID, cameramanID, booking.Accept)
	require.NoError(t, err)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	f.payments.refundErr = errors.New("provider unavailable")

	cancelled, err := f.svc.Cancel(ctx, b.ID, cameramanActor, "equipment failure")
	require.NoError(t, err)

	assert.Equal(t, booking.StatusCancelling, cancelled.Status)
	assert.Equal(t, booking.PaymentRefundPending, cancelled.PaymentStatus)

	status, paymentStatus := cancelled.Reported()
	assert.Equal(t, booking.StatusCancelled, status)
	assert.Equal(t, booking.PaymentRefundPending, paymentStatus)

	n, err := f.svc.ReconcileCancelling(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.payments.refundErr = nil

	n, err = f.svc.ReconcileCancelling(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, stored.Status)
	assert.Equal(t, booking.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, "equipment failure", stored.CancelReason)
	assert.Equal(t, 3, f.payments.refunds)
}

func TestService_Pay_Rejected(t *testing.T) {
	f := newFixture()
	b := f.create(t)

	_, err := f.svc.Pay(context.Background(), booking.PayParams{BookingID: b.ID, CustomerID: uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Respond(context.Background(), b.ID, cameramanID, booking.Reject)
	require.NoError(t, err)

	_, err = f.svc.Pay(context.Background(), booking.PayParams{BookingID: b.ID, CustomerID: customerID})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, f.payments.initiated)
}

func TestService_PaymentStatusChanged_RefundsRejectedBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Respond(ctx, b.ID, cameramanID, booking.Reject)
	require.NoError(t, err)

	f.payments.refundErr = errors.New("provider unavailable")

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRejected, stored.Status)
	assert.Equal(t, booking.PaymentRefundPending, stored.PaymentStatus)

	f.payments.refundErr = nil

	n, err := f.svc.ReconcileCancelling(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRejected, stored.Status)
	assert.Equal(t, booking.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, 2, f.payments.refunds)
}

func TestService_Respond_RejectRefundsPaidRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.create(t)

	p := f.payments.set(b.ID, payment.StatusCompleted)
	require.NoError(t, f.svc.PaymentStatusChanged(ctx, p))

	_, err := f.svc.Respond(ctx, b.ID, cameramanID, booking.Reject)
	require.NoError(t, err)

	stored, err := f.repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRejected, stored.Status)
	assert.Equal(t, booking.PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, 1, f.payments.refunds)
}
