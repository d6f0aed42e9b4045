package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

// unwindTimeout bounds the best-effort cleanup after a failed reservation.
// Cleanup runs detached from the request so a client hanging up does not
// leave the slot locked for the full TTL.
const unwindTimeout = 5 * time.Second

// ReserveRequest is the client input of a reservation attempt.
type ReserveRequest struct {
	SlotID uint64 `json:"slotId" validate:"required,gt=0"`
	Name   string `json:"name" validate:"required,max=120"`
	Email  string `json:"email" validate:"required,email,max=254"`
	Phone  string `json:"phone" validate:"required,min=5,max=32"`
}

// Reservation is what the client needs to complete checkout.
type Reservation struct {
	BookingID     string    `json:"bookingId"`
	SlotID        uint64    `json:"slotId"`
	ClientSecret  string    `json:"clientSecret"`
	HoldExpiresAt time.Time `json:"holdExpiresAt"`
	AmountPence   int64     `json:"amountPence"`
	Currency      string    `json:"currency"`
}

type slotGetter interface {
	GetSlot(ctx context.Context, id uint64) (model.Slot, error)
}

// Reservations sequences hold, provisional booking and payment request,
// unwinding the earlier steps when a later one fails.  It never waits for
// the payment itself; the outcome arrives through PaymentConfirmation.
type Reservations struct {
	slots    slotGetter
	holds    *HoldManager
	ledger   *BookingLedger
	gateway  payment.Gateway
	policy   config.BookingPolicy
	validate *validator.Validate
	now      Clock
	log      *logger.Logger
}

func NewReservations(slots slotGetter, holds *HoldManager, ledger *BookingLedger, gateway payment.Gateway, policy config.BookingPolicy, log *logger.Logger) *Reservations {
	return &Reservations{
		slots:    slots,
		holds:    holds,
		ledger:   ledger,
		gateway:  gateway,
		policy:   policy,
		validate: validator.New(),
		now:      utcNow,
		log:      log,
	}
}

// Reserve runs one reservation attempt.
func (r *Reservations) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if err := r.validate.Struct(req); err != nil {
		return Reservation{}, validationError(err)
	}

	slot, err := r.slots.GetSlot(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) {
			return Reservation{}, apperror.NotFound("slot").WithCause(err)
		}
		return Reservation{}, apperror.Storage("failed to load slot", err)
	}
	if slot.StartsAt.Before(r.now().Add(r.policy.MinLeadTime)) {
		return Reservation{}, apperror.Validation("slot starts too soon to be booked",
			map[string]any{"min_lead_time": r.policy.MinLeadTime.String()})
	}

	hold, err := r.holds.AcquireOrRefresh(ctx, slot.ID)
	if err != nil {
		return Reservation{}, err
	}

	contact := model.Contact{Name: req.Name, Email: req.Email, Phone: req.Phone}
	booking, err := r.ledger.CreateProvisional(ctx, slot.ID, contact, r.policy.AmountPence)
	if err != nil {
		r.unwindHold(ctx, slot.ID)
		return Reservation{}, err
	}

	handle, err := r.gateway.RequestPayment(ctx, payment.Request{
		BookingID:   booking.ID,
		SlotID:      slot.ID,
		AmountPence: booking.AmountPence,
		Currency:    booking.Currency,
		Email:       booking.Email,
		Description: fmt.Sprintf("Consultation with %s on %s %s", slot.Staff, slot.Date, slot.StartTime),
	})
	if err != nil {
		r.log.Error("payment request failed", "booking_id", booking.ID, "slot_id", slot.ID, "error", err)
		r.unwindBooking(ctx, booking)
		return Reservation{}, apperror.Upstream("payment provider unavailable, please retry", err)
	}

	r.log.Info("reservation awaiting payment",
		"booking_id", booking.ID,
		"slot_id", slot.ID,
		"payment_ref", handle.ID,
	)
	return Reservation{
		BookingID:     booking.ID,
		SlotID:        slot.ID,
		ClientSecret:  handle.ClientSecret,
		HoldExpiresAt: hold.ExpiresAt,
		AmountPence:   booking.AmountPence,
		Currency:      booking.Currency,
	}, nil
}

// Cancel is the client walking away before paying.  It reports whether a
// hold was released; an unknown booking is reported as nothing released.
func (r *Reservations) Cancel(ctx context.Context, bookingID string) (bool, error) {
	if bookingID == "" {
		return false, apperror.InvalidInput("booking id is required")
	}
	_, released, err := r.ledger.Cancel(ctx, bookingID)
	if apperror.Is(err, apperror.KindNotFound) {
		return false, nil
	}
	return released, err
}

func (r *Reservations) unwindHold(ctx context.Context, slotID uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()
	if _, err := r.holds.release(ctx, slotID, "unwind"); err != nil {
		r.log.Warn("unwind: hold left for the sweeper", "slot_id", slotID, "error", err)
	}
}

func (r *Reservations) unwindBooking(ctx context.Context, b model.Booking) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()
	if _, _, err := r.ledger.Cancel(ctx, b.ID); err != nil {
		r.log.Warn("unwind: cancel failed, releasing hold directly", "booking_id", b.ID, "error", err)
		if _, err := r.holds.release(ctx, b.SlotID, "unwind"); err != nil {
			r.log.Warn("unwind: hold left for the sweeper", "slot_id", b.SlotID, "error", err)
		}
	}
}

// validationError turns validator output into a Validation error with one
// entry per failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.InvalidInput(err.Error())
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperror.Validation("invalid request", details)
}
