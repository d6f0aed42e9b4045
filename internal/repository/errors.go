// Package repository defines error types that are reused across multiple
// repositories and stores.  These sentinel values allow higher layers to
// distinguish between the expected outcomes of a reservation (slot held,
// slot sold, booking already confirmed) and genuine storage failures,
// which are returned unwrapped from the driver.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrSlotNotFound is returned when the slot id does not exist.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrSlotHeld is returned when another checkout holds a live claim
	// on the slot.
	ErrSlotHeld = errors.New("slot is held by another checkout")

	// ErrSlotAlreadyConfirmed is returned when a confirmed booking is
	// already linked to the slot.
	ErrSlotAlreadyConfirmed = errors.New("slot already has a confirmed booking")

	// ErrBookingNotFound is returned when the booking id does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyConfirmed is returned together with the booking when a
	// confirm or cancel targets a booking that is already CONFIRMED.
	ErrAlreadyConfirmed = errors.New("booking already confirmed")

	// ErrBookingNotPending is returned when a confirm targets a booking
	// that was abandoned or cancelled.
	ErrBookingNotPending = errors.New("booking is no longer pending")

	// ErrCorrelationMismatch is returned when a payment callback names a
	// slot that differs from the booking's slot.
	ErrCorrelationMismatch = errors.New("booking does not belong to slot")

	// ErrDuplicateSlot is returned when a staff member already has a
	// slot starting at the same instant.
	ErrDuplicateSlot = errors.New("duplicate slot")

	// ErrConflict is returned when a delete or update cannot be
	// performed because of conflicting state, such as deleting a slot
	// that is held or sold.
	ErrConflict = errors.New("conflict")
)

// MySQL error numbers the stores react to.
const (
	mysqlDuplicateEntry = 1062
	mysqlLockWait       = 1205
	mysqlDeadlock       = 1213
)

func isDuplicate(err error) bool { return mysqlErrorNumber(err) == mysqlDuplicateEntry }

func isRetryableTx(err error) bool {
	n := mysqlErrorNumber(err)
	return n == mysqlDeadlock || n == mysqlLockWait
}

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
