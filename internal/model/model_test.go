package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHoldLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := Hold{SlotID: 1, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, h.Live(now))
	assert.False(t, h.Live(now.Add(time.Minute)))
	assert.False(t, h.Live(now.Add(2*time.Minute)))
}

func TestSlotStateAvailable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := "b-1"

	free := SlotState{Slot: Slot{ID: 1}}
	assert.True(t, free.Available(now))

	held := SlotState{Slot: Slot{ID: 1}, Hold: &Hold{ExpiresAt: now.Add(time.Minute)}}
	assert.False(t, held.Available(now))

	expired := SlotState{Slot: Slot{ID: 1}, Hold: &Hold{ExpiresAt: now.Add(-time.Second)}}
	assert.True(t, expired.Available(now))

	sold := SlotState{Slot: Slot{ID: 1, BookingID: &id}}
	assert.False(t, sold.Available(now))
}

func TestBookingAbandonable(t *testing.T) {
	ref := "pi_123"
	empty := ""

	assert.True(t, Booking{Status: BookingPending}.Abandonable())
	assert.True(t, Booking{Status: BookingPending, PaymentRef: &empty}.Abandonable())
	assert.False(t, Booking{Status: BookingPending, Paid: true}.Abandonable())
	assert.False(t, Booking{Status: BookingPending, PaymentRef: &ref}.Abandonable())
	assert.False(t, Booking{Status: BookingConfirmed}.Abandonable())
	assert.False(t, Booking{Status: BookingCancelled}.Abandonable())
}

func TestBookingTerminal(t *testing.T) {
	assert.False(t, Booking{Status: BookingPending}.Terminal())
	for _, s := range []string{BookingConfirmed, BookingAbandoned, BookingCancelled} {
		assert.True(t, Booking{Status: s}.Terminal(), s)
	}
}
