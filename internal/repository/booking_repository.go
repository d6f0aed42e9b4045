package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

const bookingColumns = `b.id, b.slot_id, b.name, b.email, b.phone, b.amount_pence, b.currency, b.paid, b.status, b.payment_ref, b.created_at, b.updated_at`

// abandonGuard is the eligibility rule for ABANDONED: still pending,
// unpaid, and without a payment reference.  A payment callback racing a
// sweep attaches a reference or flips paid first, which takes the
// booking out of reach of the sweeper.
const abandonGuard = `b.status = 'PENDING' AND b.paid = 0 AND b.payment_ref IS NULL`

// BookingRepo provides data access to the bookings table.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateBooking inserts a PENDING, unpaid booking.  The caller supplies
// the id and timestamps.
func (r *BookingRepo) CreateBooking(ctx context.Context, b model.Booking) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (id, slot_id, name, email, phone, amount_pence, currency, paid, status, payment_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, 0, 'PENDING', NULL, ?, ?)`,
		b.ID, b.SlotID, b.Name, b.Email, b.Phone, b.AmountPence, b.Currency, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	return err
}

// GetBooking returns the booking with the given id or ErrBookingNotFound.
func (r *BookingRepo) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// LockBookingTx reads the booking with FOR UPDATE so that confirm, cancel
// and abandon serialise on the same row.
func (r *BookingRepo) LockBookingTx(ctx context.Context, tx *sql.Tx, id string) (model.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ? FOR UPDATE`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// LockPendingBySlotTx locks the pending bookings of a slot.  The sweeper
// takes these locks before the hold row so it acquires rows in the same
// order as confirm and cancel.
func (r *BookingRepo) LockPendingBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT b.id FROM bookings b WHERE b.slot_id = ? AND b.status = 'PENDING' FOR UPDATE`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ConfirmTx marks a pending booking paid and CONFIRMED with its payment
// reference.  The unique index on confirmed_slot_id rejects a second
// confirmed booking for the same slot; that surfaces as
// ErrSlotAlreadyConfirmed.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id, paymentRef string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET paid = 1, status = 'CONFIRMED', payment_ref = ?, updated_at = ?
         WHERE id = ? AND status = 'PENDING'`,
		paymentRef, now.UTC(), id,
	)
	if err != nil {
		if isDuplicate(err) {
			return false, ErrSlotAlreadyConfirmed
		}
		return false, err
	}
	return affectedOne(res, nil)
}

// CancelTx moves a pending booking to CANCELLED.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = 'CANCELLED', updated_at = ? WHERE id = ? AND status = 'PENDING'`,
		now.UTC(), id,
	)
	return affectedOne(res, err)
}

// MarkAbandoned moves one booking to ABANDONED if it passes the abandon
// guard, and reports whether it did.
func (r *BookingRepo) MarkAbandoned(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings b SET b.status = 'ABANDONED', b.updated_at = ? WHERE b.id = ? AND `+abandonGuard,
		now.UTC(), id,
	)
	return affectedOne(res, err)
}

// MarkAbandonedBySlotTx abandons every guarded pending booking of a slot.
func (r *BookingRepo) MarkAbandonedBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings b SET b.status = 'ABANDONED', b.updated_at = ? WHERE b.slot_id = ? AND `+abandonGuard,
		now.UTC(), slotID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AttachPaymentRef records a gateway reference on a booking that does not
// have one yet.  Used for payments that arrive after the booking left
// PENDING, so the money stays traceable and the row is never purged.
func (r *BookingRepo) AttachPaymentRef(ctx context.Context, id, paymentRef string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_ref = ?, updated_at = ? WHERE id = ? AND payment_ref IS NULL`,
		paymentRef, now.UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	// Zero rows: either unknown id or a reference is already present.
	if _, err := r.GetBooking(ctx, id); err != nil {
		return err
	}
	return nil
}

// StaleBookings lists guarded pending bookings created at or before
// cutoff whose slot has no live hold that could belong to them.  These
// are attempts whose hold vanished without the booking being resolved.
func (r *BookingRepo) StaleBookings(ctx context.Context, cutoff, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookingColumns+`
        FROM bookings b
        WHERE `+abandonGuard+` AND b.created_at <= ?
          AND NOT EXISTS (
              SELECT 1 FROM holds h
              WHERE h.slot_id = b.slot_id AND h.expires_at > ? AND h.created_at <= b.created_at
          )
        ORDER BY b.created_at
        LIMIT ?`,
		cutoff.UTC(), now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PurgeAbandoned permanently deletes ABANDONED bookings created before
// the given instant that never saw a payment.
func (r *BookingRepo) PurgeAbandoned(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bookings WHERE status = 'ABANDONED' AND paid = 0 AND payment_ref IS NULL AND created_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListConfirmed returns all confirmed, paid bookings with their slots,
// latest slot first.
func (r *BookingRepo) ListConfirmed(ctx context.Context) ([]model.ConfirmedBooking, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookingColumns+`, `+slotColumns+`
        FROM bookings b
        JOIN slots s ON s.id = b.slot_id
        WHERE b.status = 'CONFIRMED' AND b.paid = 1
        ORDER BY s.starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ConfirmedBooking{}
	for rows.Next() {
		var (
			cb        model.ConfirmedBooking
			ref       sql.NullString
			date      time.Time
			bookingID sql.NullString
		)
		err := rows.Scan(
			&cb.ID, &cb.SlotID, &cb.Name, &cb.Email, &cb.Phone, &cb.AmountPence, &cb.Currency, &cb.Paid, &cb.Status, &ref, &cb.Booking.CreatedAt, &cb.UpdatedAt,
			&cb.Slot.ID, &date, &cb.Slot.StartTime, &cb.Slot.EndTime, &cb.Slot.StartsAt, &cb.Slot.Staff, &bookingID, &cb.Slot.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		cb.PaymentRef = stringPtr(ref)
		cb.Slot.Date = date.Format("2006-01-02")
		cb.Slot.BookingID = stringPtr(bookingID)
		out = append(out, cb)
	}
	return out, rows.Err()
}

// HasFinancialTraceTx reports whether any booking of the slot is pending,
// paid, carries a payment reference or is an abandoned attempt still
// inside its retention window.  Such slots are not deletable.
func (r *BookingRepo) HasFinancialTraceTx(ctx context.Context, tx *sql.Tx, slotID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE slot_id = ? AND (status IN ('PENDING', 'ABANDONED') OR paid = 1 OR payment_ref IS NOT NULL)`,
		slotID,
	).Scan(&n)
	return n > 0, err
}

// DeleteBySlotTx removes the remaining bookings of a slot that is being
// deleted.  Callers check HasFinancialTraceTx first, so only unpaid
// cancelled attempts are left.
func (r *BookingRepo) DeleteBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE slot_id = ?`, slotID)
	return err
}

func scanBooking(sc scanner) (model.Booking, error) {
	var (
		b   model.Booking
		ref sql.NullString
	)
	err := sc.Scan(&b.ID, &b.SlotID, &b.Name, &b.Email, &b.Phone, &b.AmountPence, &b.Currency, &b.Paid, &b.Status, &ref, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.PaymentRef = stringPtr(ref)
	return b, nil
}
