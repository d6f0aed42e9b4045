package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

func TestReserveAwaitsPayment(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	r := f.reserve(t, s.ID)
	assert.NotEmpty(t, r.BookingID)
	assert.Equal(t, s.ID, r.SlotID)
	assert.Contains(t, r.ClientSecret, "fake_secret_")
	assert.Equal(t, t0.Add(15*time.Minute), r.HoldExpiresAt)
	assert.EqualValues(t, 10000, r.AmountPence)
	assert.Equal(t, "gbp", r.Currency)

	b, err := f.store.GetBooking(ctx, r.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.False(t, b.Paid)

	st, err := f.store.GetSlotState(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, st.Hold)
	assert.False(t, st.Available(f.clock.Now()))

	reqs := f.gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, r.BookingID, reqs[0].BookingID)
	assert.Equal(t, s.ID, reqs[0].SlotID)
	assert.EqualValues(t, 10000, reqs[0].AmountPence)
}

func TestReserveValidatesInput(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))

	_, err := f.res.Reserve(context.Background(), ReserveRequest{SlotID: s.ID, Name: "Ada", Email: "not-an-email", Phone: "0123456"})
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, ae.Kind)
	assert.Contains(t, ae.Details, "Email")

	st, err := f.store.GetSlotState(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Nil(t, st.Hold, "validation happens before any mutation")
}

func TestReserveRejectsValuesWiderThanColumns(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	cases := map[string]ReserveRequest{
		"phone": {SlotID: s.ID, Name: "Ada", Email: "ada@example.com", Phone: strings.Repeat("1", 33)},
		"name":  {SlotID: s.ID, Name: strings.Repeat("a", 121), Email: "ada@example.com", Phone: "0123456"},
	}
	for field, req := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := f.res.Reserve(ctx, req)
			assert.True(t, apperror.Is(err, apperror.KindValidation), "got %v", err)

			st, err := f.store.GetSlotState(ctx, s.ID)
			require.NoError(t, err)
			assert.Nil(t, st.Hold, "no hold is taken for rejected input")
		})
	}

	// The widest accepted phone still fits bookings.phone.
	_, err := f.res.Reserve(ctx, ReserveRequest{SlotID: s.ID, Name: "Ada", Email: "ada@example.com", Phone: strings.Repeat("1", 32)})
	require.NoError(t, err)
}

func TestReserveRejectsSlotInsideLeadTime(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(90*time.Minute))

	_, err := f.res.Reserve(context.Background(), ReserveRequest{SlotID: s.ID, Name: "Ada", Email: "ada@example.com", Phone: "0123456"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestReserveConflictsWhileHeld(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	f.reserve(t, s.ID)

	_, err := f.res.Reserve(context.Background(), ReserveRequest{SlotID: s.ID, Name: "Bob", Email: "bob@example.com", Phone: "0123456"})
	require.Error(t, err)
	ae, _ := apperror.As(err)
	assert.Equal(t, 409, ae.HTTPStatus)

	_, err = f.res.Reserve(context.Background(), ReserveRequest{SlotID: 999, Name: "Bob", Email: "bob@example.com", Phone: "0123456"})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestReserveUnwindsWhenPaymentRequestFails(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	f.gateway.FailNext(errors.New("gateway timeout"))
	_, err := f.res.Reserve(ctx, ReserveRequest{SlotID: s.ID, Name: "Ada", Email: "ada@example.com", Phone: "0123456"})
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindUpstream, ae.Kind)
	assert.True(t, ae.Retryable())

	st, err := f.store.GetSlotState(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, st.Hold, "hold released instead of waiting for the TTL")

	// The slot is immediately reservable again.
	f.reserve(t, s.ID)
}

func TestReserveReleasesHoldWhenBookingInsertFails(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), createErr: errStorage}
	f := newFixtureWith(t, store)
	s := f.addSlot(t, t0.Add(24*time.Hour))

	_, err := f.res.Reserve(context.Background(), ReserveRequest{SlotID: s.ID, Name: "Ada", Email: "ada@example.com", Phone: "0123456"})
	assert.True(t, apperror.Is(err, apperror.KindStorage))

	removed, err := f.holds.Release(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, removed, "hold was already released by the unwind")
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	released, err := f.res.Cancel(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, released)

	r := f.reserve(t, s.ID)
	released, err = f.res.Cancel(ctx, r.BookingID)
	require.NoError(t, err)
	assert.True(t, released)

	b, err := f.store.GetBooking(ctx, r.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, b.Status)

	released, err = f.res.Cancel(ctx, r.BookingID)
	require.NoError(t, err)
	assert.False(t, released, "second cancel is a no-op")
}

func TestCancelKeepsNewerHold(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	ctx := context.Background()

	first := f.reserve(t, s.ID)
	f.clock.Advance(16 * time.Minute)
	f.reserve(t, s.ID)

	released, err := f.res.Cancel(ctx, first.BookingID)
	require.NoError(t, err)
	assert.False(t, released, "the hold belongs to the second client")

	st, err := f.store.GetSlotState(ctx, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, st.Hold)
}

func TestCancelConfirmedReservationConflicts(t *testing.T) {
	f := newFixture(t)
	s := f.addSlot(t, t0.Add(24*time.Hour))
	r := f.reserve(t, s.ID)
	_, err := f.ledger.Confirm(context.Background(), r.BookingID, s.ID, "pi_1")
	require.NoError(t, err)

	_, err = f.res.Cancel(context.Background(), r.BookingID)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}
