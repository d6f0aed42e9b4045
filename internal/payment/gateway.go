// Package payment is the boundary to the external payment gateway.  The
// reservation core needs two things from it: a client handle for a new
// payment carrying the booking/slot correlation, and verified decoding of
// the gateway's asynchronous outcome callbacks.
package payment

import (
	"context"
	"errors"
)

// Metadata keys carried through the gateway round trip.
const (
	MetaBookingID = "bookingId"
	MetaSlotID    = "slotId"
)

// ErrInvalidSignature is returned by ParseEvent when the payload was not
// signed with the configured webhook secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Request describes a payment to start for a provisional booking.
type Request struct {
	BookingID   string
	SlotID      uint64
	AmountPence int64
	Currency    string
	Email       string
	Description string
}

// Handle is what the client needs to complete the payment.
type Handle struct {
	ID           string `json:"id"`            // gateway reference of the payment attempt
	ClientSecret string `json:"client_secret"` // opaque secret handed to the client SDK
}

// EventKind is the normalised outcome of a callback.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventIgnored   EventKind = "ignored"
)

// Event is a verified callback.  BookingID and SlotID are copied from the
// payment metadata as sent and may be empty when the gateway lost them.
type Event struct {
	ID            string
	Kind          EventKind
	Type          string // raw gateway event type
	PaymentRef    string
	BookingID     string
	SlotID        string
	FailureReason string
}

// Gateway starts payments and verifies callbacks.
type Gateway interface {
	RequestPayment(ctx context.Context, req Request) (Handle, error)
	ParseEvent(payload []byte, signature string) (Event, error)
	// SignatureHeader names the HTTP header carrying the callback signature.
	SignatureHeader() string
}
