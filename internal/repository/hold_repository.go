package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

// HoldRepo provides data access to the holds table.  The primary key on
// slot_id is what makes a hold exclusive: there is never more than one
// row per slot.  All timestamps are UTC and every method takes the
// caller's notion of "now" so that expiry is evaluated consistently.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// upsertHoldSQL inserts a hold, or replaces the existing row only when it
// has expired.  MySQL applies the assignments left to right, so
// expires_at must be the last one: every condition reads the old value.
// A live row is left untouched and the statement reports zero affected
// rows.  The row alias needs MySQL 8.0.19 or later.
const upsertHoldSQL = `INSERT INTO holds (slot_id, expires_at, created_at, updated_at)
        VALUES (?, ?, ?, ?) AS new
        ON DUPLICATE KEY UPDATE
          created_at = IF(holds.expires_at <= new.updated_at, new.created_at, holds.created_at),
          updated_at = IF(holds.expires_at <= new.updated_at, new.updated_at, holds.updated_at),
          expires_at = IF(holds.expires_at <= new.updated_at, new.expires_at, holds.expires_at)`

// UpsertHoldTx writes a fresh hold for slotID unless a live one exists.
// It reports whether this call now owns the hold.
func (r *HoldRepo) UpsertHoldTx(ctx context.Context, tx *sql.Tx, slotID uint64, now, expiresAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, upsertHoldSQL, slotID, expiresAt.UTC(), now.UTC(), now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	// 1 = inserted, 2 = expired row replaced, 0 = live row kept
	return n > 0, nil
}

// LockHoldTx reads the hold row for slotID with FOR UPDATE.  The boolean
// is false when no row exists.
func (r *HoldRepo) LockHoldTx(ctx context.Context, tx *sql.Tx, slotID uint64) (model.Hold, bool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT slot_id, expires_at, created_at, updated_at FROM holds WHERE slot_id = ? FOR UPDATE`, slotID)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hold{}, false, nil
	}
	if err != nil {
		return model.Hold{}, false, err
	}
	return h, true, nil
}

// ReleaseHold deletes the hold for slotID.  Deleting a hold that does not
// exist is not an error; the boolean reports whether a row was removed.
func (r *HoldRepo) ReleaseHold(ctx context.Context, slotID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holds WHERE slot_id = ?`, slotID)
	return affectedOne(res, err)
}

// ReleaseHoldTx is ReleaseHold inside the caller's transaction.
func (r *HoldRepo) ReleaseHoldTx(ctx context.Context, tx *sql.Tx, slotID uint64) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM holds WHERE slot_id = ?`, slotID)
	return affectedOne(res, err)
}

// ReleaseHoldCreatedByTx deletes the slot's hold only if it was created no
// later than createdBy.  A booking uses its own creation time so that it
// never frees a hold taken afterwards by a different checkout.
func (r *HoldRepo) ReleaseHoldCreatedByTx(ctx context.Context, tx *sql.Tx, slotID uint64, createdBy time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM holds WHERE slot_id = ? AND created_at <= ?`, slotID, createdBy.UTC())
	return affectedOne(res, err)
}

// ExpiredHolds lists holds whose expires_at is at or before now, oldest
// first, at most limit rows.
func (r *HoldRepo) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slot_id, expires_at, created_at, updated_at FROM holds
         WHERE expires_at <= ? ORDER BY expires_at LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []model.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

func scanHold(sc scanner) (model.Hold, error) {
	var h model.Hold
	err := sc.Scan(&h.SlotID, &h.ExpiresAt, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
