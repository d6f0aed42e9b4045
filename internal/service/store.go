// Package service holds the reservation core: hold management, the
// booking ledger, the reservation orchestrator, payment confirmation, the
// expiry sweeper and the slot catalog.  Services depend on the narrow
// store interfaces below, which both repository.Store (MySQL) and
// repository.MemoryStore satisfy.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

type HoldStore interface {
	AcquireHold(ctx context.Context, slotID uint64, now, expiresAt time.Time) (model.Hold, error)
	ReleaseHold(ctx context.Context, slotID uint64) (bool, error)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ConfirmBooking(ctx context.Context, id string, slotID uint64, paymentRef string, now time.Time) (model.Booking, error)
	CancelBooking(ctx context.Context, id string, now time.Time) (model.Booking, bool, error)
	MarkAbandoned(ctx context.Context, id string, now time.Time) (bool, error)
	AttachPaymentRef(ctx context.Context, id, paymentRef string, now time.Time) error
	ListConfirmed(ctx context.Context) ([]model.ConfirmedBooking, error)
}

type SweepStore interface {
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error)
	SweepHold(ctx context.Context, slotID uint64, now time.Time) (model.SweepUnit, error)
	StaleBookings(ctx context.Context, cutoff, now time.Time, limit int) ([]model.Booking, error)
	PurgeAbandoned(ctx context.Context, before time.Time) (int64, error)
}

type SlotStore interface {
	CreateSlot(ctx context.Context, s *model.Slot) error
	GetSlot(ctx context.Context, id uint64) (model.Slot, error)
	DeleteSlot(ctx context.Context, id uint64, now time.Time) error
	ListOpenSlots(ctx context.Context, from, to, now time.Time, limit int) ([]model.Slot, error)
	ListSlotStates(ctx context.Context, from, to time.Time) ([]model.SlotState, error)
	GetSlotState(ctx context.Context, id uint64) (model.SlotState, error)
}

// Store is everything the process wires into the services.
type Store interface {
	HoldStore
	BookingStore
	SweepStore
	SlotStore
	Ping(ctx context.Context) error
}

// Clock returns the current time.  Tests substitute a fixed clock.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
