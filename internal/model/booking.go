package model

import "time"

// Booking statuses.  PENDING is the only non-terminal state.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingAbandoned = "ABANDONED"
	BookingCancelled = "CANCELLED"
)

// Booking records one client's attempt to buy a slot.  It is created
// PENDING and unpaid right after a hold is secured, and moves exactly once
// to CONFIRMED (payment succeeded), CANCELLED (client gave up or payment
// failed) or ABANDONED (hold expired without payment).
//
// Fields:
//
//	ID          – UUID generated by the service.
//	SlotID      – slot being bought.
//	Name        – client name.
//	Email       – client email, used for the confirmation.
//	Phone       – client phone.
//	AmountPence – price charged, in minor units.
//	Currency    – ISO currency code, lower case.
//	Paid        – true once the gateway reported success.
//	Status      – PENDING, CONFIRMED, ABANDONED or CANCELLED.
//	PaymentRef  – gateway reference of a successful payment, if any.
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last transition timestamp.
type Booking struct {
	ID          string    `json:"id"`           // bookings.id
	SlotID      uint64    `json:"slot_id"`      // bookings.slot_id
	Name        string    `json:"name"`         // bookings.name
	Email       string    `json:"email"`        // bookings.email
	Phone       string    `json:"phone"`        // bookings.phone
	AmountPence int64     `json:"amount_pence"` // bookings.amount_pence
	Currency    string    `json:"currency"`     // bookings.currency
	Paid        bool      `json:"paid"`         // bookings.paid
	Status      string    `json:"status"`       // bookings.status
	PaymentRef  *string   `json:"payment_ref"`  // bookings.payment_ref (nullable)
	CreatedAt   time.Time `json:"created_at"`   // bookings.created_at
	UpdatedAt   time.Time `json:"updated_at"`   // bookings.updated_at
}

// Contact is the client data captured at reservation time.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Terminal reports whether the booking can no longer change status.
func (b Booking) Terminal() bool { return b.Status != BookingPending }

// Abandonable reports whether the sweeper may mark the booking
// ABANDONED: still pending, unpaid and without any payment reference.
func (b Booking) Abandonable() bool {
	return b.Status == BookingPending && !b.Paid && (b.PaymentRef == nil || *b.PaymentRef == "")
}

// ConfirmedBooking is a confirmed booking joined with its slot, as listed
// for staff.
type ConfirmedBooking struct {
	Booking
	Slot Slot `json:"slot"`
}

// Earnings summarises confirmed revenue for one calendar year.
type Earnings struct {
	Year      int              `json:"year"`
	Monthly   map[string]int64 `json:"monthly"` // keyed "YYYY-MM", pence
	YearTotal int64            `json:"year_total"`
	Currency  string           `json:"currency"`
}

// SweepUnit is the outcome of sweeping a single expired hold.
type SweepUnit struct {
	SlotID       uint64
	Abandoned    int64 // bookings moved to ABANDONED
	HoldReleased bool  // false when the hold was gone or had been renewed
}
