package model

import "time"

// Slot is a bookable consultation window assigned to a staff member.
// Slots are created by staff and never edited; they can only be
// deleted while nobody holds or has booked them.
//
// Fields:
//
//	ID        – primary key identifier.
//	Date      – calendar date, YYYY-MM-DD, in the practice's timezone.
//	StartTime – HH:MM local start.
//	EndTime   – HH:MM local end.
//	StartsAt  – UTC instant of Date+StartTime, used for ordering and lead time.
//	Staff     – staff member running the consultation.
//	BookingID – confirmed booking linked to the slot, nil while unsold.
//	CreatedAt – creation timestamp.
type Slot struct {
	ID        uint64    `json:"id"`         // slots.id
	Date      string    `json:"date"`       // slots.slot_date
	StartTime string    `json:"start_time"` // slots.start_time
	EndTime   string    `json:"end_time"`   // slots.end_time
	StartsAt  time.Time `json:"starts_at"`  // slots.starts_at
	Staff     string    `json:"staff"`      // slots.staff
	BookingID *string   `json:"booking_id"` // slots.booking_id (nullable)
	CreatedAt time.Time `json:"created_at"` // slots.created_at
}

// Confirmed reports whether a confirmed booking is linked to the slot.
func (s Slot) Confirmed() bool { return s.BookingID != nil && *s.BookingID != "" }

// SlotState is a slot together with the live parts of its reservation
// state, as shown to staff.
type SlotState struct {
	Slot
	Hold    *Hold    `json:"hold,omitempty"`
	Booking *Booking `json:"booking,omitempty"`
}

// Available reports whether the slot can be reserved at now: no confirmed
// booking is linked and no live hold exists.
func (s SlotState) Available(now time.Time) bool {
	return !s.Confirmed() && (s.Hold == nil || !s.Hold.Live(now))
}
