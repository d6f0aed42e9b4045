package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

// BookingLedger creates provisional bookings and moves them through their
// single transition.  Errors returned to callers are *apperror.AppError
// values that still wrap the repository sentinel, so callers can tell an
// idempotent replay (repository.ErrAlreadyConfirmed) from a real conflict.
type BookingLedger struct {
	store    BookingStore
	currency string
	now      Clock
	log      *logger.Logger
}

func NewBookingLedger(store BookingStore, currency string, log *logger.Logger) *BookingLedger {
	return &BookingLedger{store: store, currency: currency, now: utcNow, log: log}
}

// CreateProvisional inserts a PENDING, unpaid booking for slotID.  The
// caller must already hold the slot.
func (l *BookingLedger) CreateProvisional(ctx context.Context, slotID uint64, contact model.Contact, amountPence int64) (model.Booking, error) {
	now := l.now()
	b := model.Booking{
		ID:          uuid.NewString(),
		SlotID:      slotID,
		Name:        contact.Name,
		Email:       contact.Email,
		Phone:       contact.Phone,
		AmountPence: amountPence,
		Currency:    l.currency,
		Status:      model.BookingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) {
			return model.Booking{}, apperror.NotFound("slot").WithCause(err)
		}
		l.log.Error("create booking failed", "slot_id", slotID, "error", err)
		return model.Booking{}, apperror.Storage("failed to create booking", err)
	}
	metrics.IncBookingTransition(model.BookingPending)
	l.log.Info("provisional booking created", "booking_id", b.ID, "slot_id", slotID)
	return b, nil
}

// Get returns one booking.
func (l *BookingLedger) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return model.Booking{}, apperror.NotFound("booking").WithCause(err)
		}
		return model.Booking{}, apperror.Storage("failed to load booking", err)
	}
	return b, nil
}

// Confirm marks the booking paid and CONFIRMED, links it to its slot and
// releases the slot's hold in one transaction.  The booking is returned
// alongside ErrAlreadyConfirmed, ErrBookingNotPending and
// ErrSlotAlreadyConfirmed conflicts so the caller can inspect it.
func (l *BookingLedger) Confirm(ctx context.Context, bookingID string, slotID uint64, paymentRef string) (model.Booking, error) {
	b, err := l.store.ConfirmBooking(ctx, bookingID, slotID, paymentRef, l.now())
	switch {
	case err == nil:
		metrics.IncBookingTransition(model.BookingConfirmed)
		l.log.Info("booking confirmed", "booking_id", bookingID, "slot_id", slotID, "payment_ref", paymentRef)
		return b, nil
	case errors.Is(err, repository.ErrBookingNotFound):
		return b, apperror.NotFound("booking").WithCause(err)
	case errors.Is(err, repository.ErrCorrelationMismatch):
		return b, apperror.Validation("booking does not belong to slot",
			map[string]any{"booking_id": bookingID, "slot_id": slotID}).WithCause(err)
	case errors.Is(err, repository.ErrAlreadyConfirmed):
		return b, apperror.Conflict("booking already confirmed").WithCause(err)
	case errors.Is(err, repository.ErrBookingNotPending):
		return b, apperror.Conflict(fmt.Sprintf("booking is %s", b.Status)).WithCause(err)
	case errors.Is(err, repository.ErrSlotAlreadyConfirmed), errors.Is(err, repository.ErrConflict):
		return b, apperror.Conflict("slot already confirmed for another booking").WithCause(err)
	default:
		l.log.Error("confirm booking failed", "booking_id", bookingID, "slot_id", slotID, "error", err)
		return b, apperror.Storage("failed to confirm booking", err)
	}
}

// Cancel moves a PENDING booking to CANCELLED and releases the hold taken
// for it.  It reports whether a hold was released.  Cancelling a booking
// that is already cancelled or abandoned is a no-op apart from the hold
// release; cancelling a confirmed booking is a Conflict.
func (l *BookingLedger) Cancel(ctx context.Context, bookingID string) (model.Booking, bool, error) {
	now := l.now()
	b, released, err := l.store.CancelBooking(ctx, bookingID, now)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrBookingNotFound):
		return b, false, apperror.NotFound("booking").WithCause(err)
	case errors.Is(err, repository.ErrAlreadyConfirmed):
		return b, false, apperror.Conflict("booking already confirmed").WithCause(err)
	default:
		l.log.Error("cancel booking failed", "booking_id", bookingID, "error", err)
		return b, false, apperror.Storage("failed to cancel booking", err)
	}

	// UpdatedAt only moves to now when this call made the transition.
	if b.Status == model.BookingCancelled && b.UpdatedAt.Equal(now) {
		metrics.IncBookingTransition(model.BookingCancelled)
		l.log.Info("booking cancelled", "booking_id", bookingID, "slot_id", b.SlotID)
	}
	if released {
		metrics.IncHoldRelease("cancel")
	}
	return b, released, nil
}

// MarkAbandoned moves a booking to ABANDONED only if it is still PENDING,
// unpaid and carries no payment reference.  It reports whether the
// booking changed.
func (l *BookingLedger) MarkAbandoned(ctx context.Context, bookingID string) (bool, error) {
	ok, err := l.store.MarkAbandoned(ctx, bookingID, l.now())
	if err != nil {
		l.log.Error("mark abandoned failed", "booking_id", bookingID, "error", err)
		return false, apperror.Storage("failed to abandon booking", err)
	}
	if ok {
		metrics.IncBookingTransition(model.BookingAbandoned)
		l.log.Info("booking abandoned", "booking_id", bookingID)
	}
	return ok, nil
}

// AttachPaymentRef records a payment reference on a booking that could not
// be confirmed, so the booking is never purged.
func (l *BookingLedger) AttachPaymentRef(ctx context.Context, bookingID, paymentRef string) error {
	if err := l.store.AttachPaymentRef(ctx, bookingID, paymentRef, l.now()); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return apperror.NotFound("booking").WithCause(err)
		}
		return apperror.Storage("failed to record payment reference", err)
	}
	return nil
}

// Confirmed lists confirmed bookings with their slots and the earnings of
// year: monthly totals keyed YYYY-MM (all twelve months present) and the
// year total, by slot date.
func (l *BookingLedger) Confirmed(ctx context.Context, year int) ([]model.ConfirmedBooking, model.Earnings, error) {
	list, err := l.store.ListConfirmed(ctx)
	if err != nil {
		return nil, model.Earnings{}, apperror.Storage("failed to list bookings", err)
	}
	return list, Earnings(list, year, l.currency), nil
}

// Earnings sums confirmed bookings of year by the month of their slot.
func Earnings(list []model.ConfirmedBooking, year int, currency string) model.Earnings {
	e := model.Earnings{Year: year, Monthly: make(map[string]int64, 12), Currency: currency}
	for m := 1; m <= 12; m++ {
		e.Monthly[fmt.Sprintf("%04d-%02d", year, m)] = 0
	}
	prefix := fmt.Sprintf("%04d-", year)
	for _, cb := range list {
		if len(cb.Slot.Date) < 7 || cb.Slot.Date[:5] != prefix {
			continue
		}
		e.Monthly[cb.Slot.Date[:7]] += cb.AmountPence
		e.YearTotal += cb.AmountPence
	}
	return e
}
