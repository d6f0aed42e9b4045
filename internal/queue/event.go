// Package queue defines message payloads exchanged over the message broker
// and the consumers that deliver them.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/consultation-booking/internal/model"
)

// BookingConfirmedTopic is both the RabbitMQ queue name and the default
// Kafka topic.
const BookingConfirmedTopic = "booking.confirmed"

// Notification audiences.
const (
	AudienceClient = "client"
	AudienceStaff  = "staff"
)

// BookingConfirmedEvent is published once per audience when a booking is
// confirmed.  It carries everything a downstream mailer needs, so
// consumers never query the primary database.
type BookingConfirmedEvent struct {
	Audience    string `json:"audience"`
	BookingID   string `json:"booking_id"`
	SlotID      uint64 `json:"slot_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Staff       string `json:"staff"`
	SlotDate    string `json:"slot_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	AmountPence int64  `json:"amount_pence"`
	Currency    string `json:"currency"`
	PaymentRef  string `json:"payment_ref"`
	ConfirmedAt string `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the event for one audience.
func NewBookingConfirmedEvent(audience string, b model.Booking, s model.Slot, at time.Time) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		Audience:    audience,
		BookingID:   b.ID,
		SlotID:      s.ID,
		Name:        b.Name,
		Email:       b.Email,
		Phone:       b.Phone,
		Staff:       s.Staff,
		SlotDate:    s.Date,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		AmountPence: b.AmountPence,
		Currency:    b.Currency,
		ConfirmedAt: at.UTC().Format(time.RFC3339),
	}
	if b.PaymentRef != nil {
		ev.PaymentRef = *b.PaymentRef
	}
	return ev
}

// LogLine renders the event as one human friendly line.
func (e BookingConfirmedEvent) LogLine() string {
	return fmt.Sprintf("[%s] Booking confirmed | to=%s | booking_id=%s | slot_id=%d | staff=%q | when=\"%s %s-%s\" | client=%q <%s> | total=%d %s | ref=%s\n",
		e.ConfirmedAt, e.Audience, e.BookingID, e.SlotID, e.Staff, e.SlotDate, e.StartTime, e.EndTime,
		e.Name, e.Email, e.AmountPence, e.Currency, e.PaymentRef)
}
