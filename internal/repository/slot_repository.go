package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

const slotColumns = `s.id, s.slot_date, s.start_time, s.end_time, s.starts_at, s.staff, s.booking_id, s.created_at`

// slotStateColumns extends slotColumns with the slot's hold and linked
// booking.  Every joined column is nullable.
const slotStateColumns = slotColumns + `,
        h.expires_at, h.created_at, h.updated_at,
        b.id, b.name, b.email, b.phone, b.amount_pence, b.currency, b.paid, b.status, b.payment_ref, b.created_at, b.updated_at`

const slotStateFrom = `FROM slots s
        LEFT JOIN holds h ON h.slot_id = s.id
        LEFT JOIN bookings b ON b.id = s.booking_id`

// SlotRepo provides data access to the slots table.  Slots are leaf data
// written by staff; reservation state lives in holds and bookings.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the provided database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// CreateSlot inserts s and fills in its ID.  A second slot for the same
// staff member and start instant yields ErrDuplicateSlot.
func (r *SlotRepo) CreateSlot(ctx context.Context, s *model.Slot) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO slots (slot_date, start_time, end_time, starts_at, staff, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.Date, s.StartTime, s.EndTime, s.StartsAt.UTC(), s.Staff, s.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateSlot
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// GetSlot returns the slot with the given id or ErrSlotNotFound.
func (r *SlotRepo) GetSlot(ctx context.Context, id uint64) (model.Slot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots s WHERE s.id = ?`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrSlotNotFound
	}
	return s, err
}

// ListOpenSlots returns unsold slots starting in [from, to) that carry no
// live hold at now, ordered by start time.
func (r *SlotRepo) ListOpenSlots(ctx context.Context, from, to, now time.Time, limit int) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+slotColumns+`
        FROM slots s
        LEFT JOIN holds h ON h.slot_id = s.id
        WHERE s.starts_at >= ? AND s.starts_at < ?
          AND s.booking_id IS NULL
          AND (h.slot_id IS NULL OR h.expires_at <= ?)
        ORDER BY s.starts_at, s.staff
        LIMIT ?`,
		from.UTC(), to.UTC(), now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := []model.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ListSlotStates returns every slot starting in [from, to) with its hold
// row (live or not) and confirmed booking, for staff.
func (r *SlotRepo) ListSlotStates(ctx context.Context, from, to time.Time) ([]model.SlotState, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+slotStateColumns+` `+slotStateFrom+`
        WHERE s.starts_at >= ? AND s.starts_at < ?
        ORDER BY s.starts_at, s.staff`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []model.SlotState{}
	for rows.Next() {
		st, err := scanSlotState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// GetSlotState returns one slot with its hold and confirmed booking.
func (r *SlotRepo) GetSlotState(ctx context.Context, id uint64) (model.SlotState, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+slotStateColumns+` `+slotStateFrom+` WHERE s.id = ?`, id)
	st, err := scanSlotState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SlotState{}, ErrSlotNotFound
	}
	return st, err
}

// LockSlotTx reads the slot row with FOR UPDATE.  Every writer that
// changes who owns a slot goes through this lock first.
func (r *SlotRepo) LockSlotTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Slot, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots s WHERE s.id = ? FOR UPDATE`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrSlotNotFound
	}
	return s, err
}

// LinkBookingTx points the slot at its confirmed booking.  It reports
// false when the slot is already linked, leaving it untouched.
func (r *SlotRepo) LinkBookingTx(ctx context.Context, tx *sql.Tx, slotID uint64, bookingID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET booking_id = ? WHERE id = ? AND booking_id IS NULL`, bookingID, slotID)
	if err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteSlotTx removes the slot row.  Its hold row cascades.
func (r *SlotRepo) DeleteSlotTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	return err
}

func scanSlot(sc scanner) (model.Slot, error) {
	var (
		s         model.Slot
		date      time.Time
		bookingID sql.NullString
	)
	if err := sc.Scan(&s.ID, &date, &s.StartTime, &s.EndTime, &s.StartsAt, &s.Staff, &bookingID, &s.CreatedAt); err != nil {
		return model.Slot{}, err
	}
	s.Date = date.Format("2006-01-02")
	s.BookingID = stringPtr(bookingID)
	return s, nil
}

func scanSlotState(sc scanner) (model.SlotState, error) {
	var (
		st        model.SlotState
		date      time.Time
		bookingID sql.NullString

		hExpires, hCreated, hUpdated sql.NullTime

		bID, bName, bEmail, bPhone, bCurrency, bStatus, bRef sql.NullString
		bAmount                                              sql.NullInt64
		bPaid                                                sql.NullBool
		bCreated, bUpdated                                   sql.NullTime
	)
	err := sc.Scan(
		&st.ID, &date, &st.StartTime, &st.EndTime, &st.StartsAt, &st.Staff, &bookingID, &st.CreatedAt,
		&hExpires, &hCreated, &hUpdated,
		&bID, &bName, &bEmail, &bPhone, &bAmount, &bCurrency, &bPaid, &bStatus, &bRef, &bCreated, &bUpdated,
	)
	if err != nil {
		return model.SlotState{}, err
	}
	st.Date = date.Format("2006-01-02")
	st.BookingID = stringPtr(bookingID)

	if hExpires.Valid {
		st.Hold = &model.Hold{
			SlotID:    st.ID,
			ExpiresAt: hExpires.Time,
			CreatedAt: hCreated.Time,
			UpdatedAt: hUpdated.Time,
		}
	}
	if bID.Valid {
		st.Booking = &model.Booking{
			ID:          bID.String,
			SlotID:      st.ID,
			Name:        bName.String,
			Email:       bEmail.String,
			Phone:       bPhone.String,
			AmountPence: bAmount.Int64,
			Currency:    bCurrency.String,
			Paid:        bPaid.Bool,
			Status:      bStatus.String,
			PaymentRef:  stringPtr(bRef),
			CreatedAt:   bCreated.Time,
			UpdatedAt:   bUpdated.Time,
		}
	}
	return st, nil
}
