package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

// Store is the MySQL implementation of the reservation stores.  It embeds
// the per-table repositories for single-statement operations and adds
// the multi-table units that must commit atomically.  The reservation
// paths take row locks in the order booking -> slot -> hold; a deadlock
// that still happens is replayed by withTx.
type Store struct {
	*SlotRepo
	*HoldRepo
	*BookingRepo
	db *sql.DB
}

// NewStore wires the repositories around one connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		SlotRepo:    NewSlotRepo(db),
		HoldRepo:    NewHoldRepo(db),
		BookingRepo: NewBookingRepo(db),
		db:          db,
	}
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// AcquireHold claims slotID until expiresAt.  The slot row is locked so
// concurrent acquirers for one slot serialise, and the hold write itself
// is a single conditional upsert, so of N simultaneous callers exactly
// one gets the hold and the rest see ErrSlotHeld.
func (s *Store) AcquireHold(ctx context.Context, slotID uint64, now, expiresAt time.Time) (model.Hold, error) {
	var hold model.Hold
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			bookingID sql.NullString
			holdUntil sql.NullTime
		)
		err := tx.QueryRowContext(ctx,
			`SELECT s.booking_id, h.expires_at
             FROM slots s LEFT JOIN holds h ON h.slot_id = s.id
             WHERE s.id = ? FOR UPDATE`, slotID,
		).Scan(&bookingID, &holdUntil)
		if err == sql.ErrNoRows {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		if bookingID.Valid {
			return ErrSlotAlreadyConfirmed
		}
		if holdUntil.Valid && holdUntil.Time.After(now) {
			return ErrSlotHeld
		}

		won, err := s.UpsertHoldTx(ctx, tx, slotID, now, expiresAt)
		if err != nil {
			return err
		}
		if !won {
			return ErrSlotHeld
		}
		hold = model.Hold{SlotID: slotID, ExpiresAt: expiresAt.UTC(), CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
		return nil
	})
	return hold, err
}

// ConfirmBooking promotes a pending booking in one transaction: the
// booking becomes paid and CONFIRMED, the slot is linked to it and the
// slot's hold is deleted.  A booking that is already CONFIRMED is returned
// with ErrAlreadyConfirmed and nothing changes.
func (s *Store) ConfirmBooking(ctx context.Context, id string, slotID uint64, paymentRef string, now time.Time) (model.Booking, error) {
	var out model.Booking
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.LockBookingTx(ctx, tx, id)
		if err != nil {
			return err
		}
		out = b
		if b.SlotID != slotID {
			return ErrCorrelationMismatch
		}
		switch b.Status {
		case model.BookingConfirmed:
			return ErrAlreadyConfirmed
		case model.BookingAbandoned, model.BookingCancelled:
			return ErrBookingNotPending
		}

		ok, err := s.ConfirmTx(ctx, tx, id, paymentRef, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		linked, err := s.LinkBookingTx(ctx, tx, slotID, id)
		if err != nil {
			return err
		}
		if !linked {
			return ErrSlotAlreadyConfirmed
		}
		if _, err := s.ReleaseHoldTx(ctx, tx, slotID); err != nil {
			return err
		}

		ref := paymentRef
		out.Paid = true
		out.Status = model.BookingConfirmed
		out.PaymentRef = &ref
		out.UpdatedAt = now.UTC()
		return nil
	})
	return out, err
}

// CancelBooking moves a pending booking to CANCELLED and releases the
// slot's hold if that hold belongs to this attempt.  Cancelling an
// already cancelled or abandoned booking only retries the hold release.
// A confirmed booking cannot be cancelled and yields ErrAlreadyConfirmed.
func (s *Store) CancelBooking(ctx context.Context, id string, now time.Time) (model.Booking, bool, error) {
	var (
		out      model.Booking
		released bool
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.LockBookingTx(ctx, tx, id)
		if err != nil {
			return err
		}
		out = b
		if b.Status == model.BookingConfirmed {
			return ErrAlreadyConfirmed
		}
		if b.Status == model.BookingPending {
			if _, err := s.CancelTx(ctx, tx, id, now); err != nil {
				return err
			}
			out.Status = model.BookingCancelled
			out.UpdatedAt = now.UTC()
		}
		released, err = s.ReleaseHoldCreatedByTx(ctx, tx, b.SlotID, b.CreatedAt)
		return err
	})
	return out, released, err
}

// SweepHold resolves one expired hold atomically: the slot's guarded
// pending bookings become ABANDONED and the hold row is deleted.  When the
// hold is already gone, or was renewed by a new checkout since it was
// listed, nothing changes.
func (s *Store) SweepHold(ctx context.Context, slotID uint64, now time.Time) (model.SweepUnit, error) {
	unit := model.SweepUnit{SlotID: slotID}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		unit.Abandoned, unit.HoldReleased = 0, false

		if _, err := s.LockPendingBySlotTx(ctx, tx, slotID); err != nil {
			return err
		}
		h, ok, err := s.LockHoldTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if !ok || h.Live(now) {
			return nil
		}
		n, err := s.MarkAbandonedBySlotTx(ctx, tx, slotID, now)
		if err != nil {
			return err
		}
		released, err := s.ReleaseHoldTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		unit.Abandoned, unit.HoldReleased = n, released
		return nil
	})
	return unit, err
}

// DeleteSlot removes a slot that is unsold, not under a live hold and has
// no booking with payment activity.  Abandoned bookings block the delete
// until PurgeAbandoned has aged them out.  Cancelled unpaid bookings are
// removed with the slot.
func (s *Store) DeleteSlot(ctx context.Context, id uint64, now time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		slot, err := s.LockSlotTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if slot.Confirmed() {
			return ErrConflict
		}
		h, ok, err := s.LockHoldTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if ok && h.Live(now) {
			return ErrConflict
		}
		busy, err := s.HasFinancialTraceTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}
		if err := s.DeleteBySlotTx(ctx, tx, id); err != nil {
			return err
		}
		return s.DeleteSlotTx(ctx, tx, id)
	})
}
