package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	client []string
	staff  []string
	err    error
}

func (n *recordingNotifier) NotifyClientConfirmed(_ context.Context, b model.Booking, _ model.Slot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client = append(n.client, b.ID)
	return n.err
}

func (n *recordingNotifier) NotifyStaffConfirmed(_ context.Context, b model.Booking, _ model.Slot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.staff = append(n.staff, b.ID)
	return n.err
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.client), len(n.staff)
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	policy   config.BookingPolicy
	gateway  *payment.Fake
	notifier *recordingNotifier
	holds    *HoldManager
	ledger   *BookingLedger
	res      *Reservations
	pay      *PaymentConfirmation
	sweeper  *Sweeper
	catalog  *Catalog
}

func testPolicy() config.BookingPolicy {
	return config.BookingPolicy{
		HoldTTL:            15 * time.Minute,
		SweepInterval:      time.Minute,
		SweepBatch:         100,
		AbandonedRetention: 90 * 24 * time.Hour,
		MinLeadTime:        2 * time.Hour,
		AmountPence:        10000,
		Currency:           "gbp",
		MaxListingDays:     30,
		ListingLimit:       500,
		NotifyTimeout:      time.Second,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, repository.NewMemoryStore())
}

// newFixtureWith wires every service over store, which may wrap the
// memory store to inject failures.
func newFixtureWith(t *testing.T, store Store) *fixture {
	t.Helper()
	log := logger.Nop()
	clock := &fakeClock{t: t0}
	policy := testPolicy()

	f := &fixture{
		clock:    clock,
		policy:   policy,
		gateway:  payment.NewFake("whsec_test"),
		notifier: &recordingNotifier{},
	}
	if ms, ok := store.(*repository.MemoryStore); ok {
		f.store = ms
	} else if w, ok := store.(*failingStore); ok {
		f.store = w.MemoryStore
	}

	f.holds = NewHoldManager(store, policy.HoldTTL, log)
	f.holds.now = clock.Now
	f.ledger = NewBookingLedger(store, policy.Currency, log)
	f.ledger.now = clock.Now
	f.res = NewReservations(store, f.holds, f.ledger, f.gateway, policy, log)
	f.res.now = clock.Now
	f.pay = NewPaymentConfirmation(f.ledger, store, f.notifier, policy.NotifyTimeout, log)
	f.sweeper = NewSweeper(store, f.ledger, policy, log)
	f.sweeper.now = clock.Now
	f.catalog = NewCatalog(store, policy, time.UTC, log)
	f.catalog.now = clock.Now
	return f
}

// addSlot creates a one hour slot for Anna starting at startsAt.
func (f *fixture) addSlot(t *testing.T, startsAt time.Time) model.Slot {
	t.Helper()
	s := model.Slot{
		Date:      startsAt.Format("2006-01-02"),
		StartTime: startsAt.Format("15:04"),
		EndTime:   startsAt.Add(time.Hour).Format("15:04"),
		StartsAt:  startsAt,
		Staff:     "Anna",
		CreatedAt: t0,
	}
	require.NoError(t, f.store.CreateSlot(context.Background(), &s))
	return s
}

func (f *fixture) reserve(t *testing.T, slotID uint64) Reservation {
	t.Helper()
	r, err := f.res.Reserve(context.Background(), ReserveRequest{
		SlotID: slotID,
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Phone:  "+44 20 7946 0000",
	})
	require.NoError(t, err)
	return r
}

func succeeded(bookingID string, slotID uint64, ref string) payment.Event {
	return payment.Event{
		ID:         "evt_" + ref,
		Kind:       payment.EventSucceeded,
		Type:       "payment.succeeded",
		PaymentRef: ref,
		BookingID:  bookingID,
		SlotID:     strconv.FormatUint(slotID, 10),
	}
}

func failed(bookingID string, slotID uint64) payment.Event {
	return payment.Event{
		ID:            "evt_fail_" + bookingID,
		Kind:          payment.EventFailed,
		Type:          "payment.failed",
		BookingID:     bookingID,
		SlotID:        strconv.FormatUint(slotID, 10),
		FailureReason: "card_declined",
	}
}

// failingStore fails selected operations with a storage error.
type failingStore struct {
	*repository.MemoryStore
	confirmErr error
	createErr  error
}

var errStorage = errors.New("connection reset")

func (s *failingStore) ConfirmBooking(ctx context.Context, id string, slotID uint64, ref string, now time.Time) (model.Booking, error) {
	if s.confirmErr != nil {
		return model.Booking{}, s.confirmErr
	}
	return s.MemoryStore.ConfirmBooking(ctx, id, slotID, ref, now)
}

func (s *failingStore) CreateBooking(ctx context.Context, b model.Booking) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.CreateBooking(ctx, b)
}
