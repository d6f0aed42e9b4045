package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/repository"
)

// Notifier is the outbound confirmation channel.  Its failures are logged
// and never affect the booking.
type Notifier interface {
	NotifyClientConfirmed(ctx context.Context, b model.Booking, s model.Slot) error
	NotifyStaffConfirmed(ctx context.Context, b model.Booking, s model.Slot) error
}

// Outcome says what a callback did.  Every outcome except a returned
// error is acknowledged to the gateway.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeOrphaned     Outcome = "orphaned"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeUncorrelated Outcome = "uncorrelated"
	OutcomeIgnored      Outcome = "ignored"
)

// PaymentConfirmation applies verified gateway callbacks to the ledger.
// Delivery is at least once, so every branch is safe to replay.
type PaymentConfirmation struct {
	ledger        *BookingLedger
	slots         slotGetter
	notifier      Notifier
	notifyTimeout time.Duration
	log           *logger.Logger

	wg sync.WaitGroup
}

func NewPaymentConfirmation(ledger *BookingLedger, slots slotGetter, notifier Notifier, notifyTimeout time.Duration, log *logger.Logger) *PaymentConfirmation {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &PaymentConfirmation{
		ledger:        ledger,
		slots:         slots,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		log:           log,
	}
}

// Handle processes one event.  An error is returned only when storage
// failed, in which case the callback must be reported as unprocessed so
// the gateway retries it.
func (p *PaymentConfirmation) Handle(ctx context.Context, ev payment.Event) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch ev.Kind {
	case payment.EventSucceeded:
		out, err = p.succeeded(ctx, ev)
	case payment.EventFailed:
		out, err = p.failed(ctx, ev)
	default:
		out = OutcomeIgnored
	}
	result := string(out)
	if err != nil {
		result = "error"
	}
	metrics.IncPaymentCallback(string(ev.Kind), result)
	return out, err
}

// Wait blocks until in-flight notifications finish.
func (p *PaymentConfirmation) Wait() { p.wg.Wait() }

func (p *PaymentConfirmation) succeeded(ctx context.Context, ev payment.Event) (Outcome, error) {
	log := p.log.With("event_id", ev.ID, "booking_id", ev.BookingID, "slot_id", ev.SlotID, "payment_ref", ev.PaymentRef)

	slotID, ok := parseSlotID(ev.SlotID)
	if ev.BookingID == "" || !ok {
		log.Warn("payment succeeded without usable correlation metadata")
		return OutcomeUncorrelated, nil
	}

	b, err := p.ledger.Confirm(ctx, ev.BookingID, slotID, ev.PaymentRef)
	switch {
	case err == nil:
		p.dispatch(ctx, b)
		return OutcomeConfirmed, nil
	case errors.Is(err, repository.ErrAlreadyConfirmed):
		if b.PaymentRef != nil && *b.PaymentRef != ev.PaymentRef {
			// A second charge for the same booking.  The confirmed reference
			// stays; the stray one is surfaced for a refund.
			metrics.IncOrphanPayment()
			log.Error("booking already confirmed by a different payment", "confirmed_ref", *b.PaymentRef)
			return OutcomeOrphaned, nil
		}
		log.Info("duplicate payment callback ignored")
		return OutcomeDuplicate, nil
	case errors.Is(err, repository.ErrBookingNotFound), errors.Is(err, repository.ErrCorrelationMismatch):
		log.Warn("payment callback does not match a booking", "error", err)
		return OutcomeUncorrelated, nil
	case errors.Is(err, repository.ErrBookingNotPending),
		errors.Is(err, repository.ErrSlotAlreadyConfirmed),
		errors.Is(err, repository.ErrConflict):
		return p.orphan(ctx, log, ev, b, err)
	default:
		log.Error("payment confirmation failed", "error", err)
		return "", err
	}
}

// orphan handles money received for a booking that cannot be confirmed
// any more.  The reference is stored so the booking is never purged and
// staff can refund it.
func (p *PaymentConfirmation) orphan(ctx context.Context, log *logger.Logger, ev payment.Event, b model.Booking, cause error) (Outcome, error) {
	if err := p.ledger.AttachPaymentRef(ctx, ev.BookingID, ev.PaymentRef); err != nil {
		if apperror.Is(err, apperror.KindStorage) {
			log.Error("failed to record orphaned payment", "error", err)
			return "", err
		}
	}
	metrics.IncOrphanPayment()
	log.Error("payment received for a booking that cannot be confirmed",
		"status", b.Status,
		"reason", cause.Error(),
	)
	return OutcomeOrphaned, nil
}

func (p *PaymentConfirmation) failed(ctx context.Context, ev payment.Event) (Outcome, error) {
	log := p.log.With("event_id", ev.ID, "booking_id", ev.BookingID, "slot_id", ev.SlotID)
	if ev.BookingID == "" {
		log.Warn("payment failed without booking metadata")
		return OutcomeUncorrelated, nil
	}

	if slotID, ok := parseSlotID(ev.SlotID); ok {
		b, err := p.ledger.Get(ctx, ev.BookingID)
		switch {
		case apperror.Is(err, apperror.KindNotFound):
			log.Warn("payment failure for unknown booking")
			return OutcomeUncorrelated, nil
		case err != nil:
			return "", err
		case b.SlotID != slotID:
			log.Warn("payment failure slot does not match booking", "booking_slot_id", b.SlotID)
			return OutcomeUncorrelated, nil
		}
	}

	b, released, err := p.ledger.Cancel(ctx, ev.BookingID)
	switch {
	case err == nil:
		log.Info("booking cancelled after failed payment", "reason", ev.FailureReason, "hold_released", released)
		return OutcomeCancelled, nil
	case apperror.Is(err, apperror.KindNotFound):
		log.Warn("payment failure for unknown booking")
		return OutcomeUncorrelated, nil
	case apperror.Is(err, apperror.KindConflict):
		// A failed attempt can follow a successful retry of the same booking.
		log.Info("payment failure after confirmation ignored", "status", b.Status)
		return OutcomeIgnored, nil
	default:
		return "", err
	}
}

// dispatch sends both confirmations on a detached goroutine bounded by
// notifyTimeout.
func (p *PaymentConfirmation) dispatch(ctx context.Context, b model.Booking) {
	if p.notifier == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
		defer cancel()

		s, err := p.slots.GetSlot(ctx, b.SlotID)
		if err != nil {
			p.log.Warn("notification skipped: slot lookup failed", "booking_id", b.ID, "error", err)
			return
		}
		if err := p.notifier.NotifyClientConfirmed(ctx, b, s); err != nil {
			p.log.Warn("client notification failed", "booking_id", b.ID, "error", err)
		}
		if err := p.notifier.NotifyStaffConfirmed(ctx, b, s); err != nil {
			p.log.Warn("staff notification failed", "booking_id", b.ID, "error", err)
		}
	}()
}

func parseSlotID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil && id > 0
}
