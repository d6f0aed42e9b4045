// Package notify publishes booking confirmation notifications.  Delivery
// (email) happens downstream of the broker; from the booking core's point
// of view a notification is fire-and-forget.
package notify

import (
	"context"
	"time"

	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/queue"
)

// Publisher puts one event on a broker.
type Publisher interface {
	Publish(ctx context.Context, ev queue.BookingConfirmedEvent) error
	Close() error
}

// Notifier turns confirmed bookings into one event per audience.
type Notifier struct {
	pub Publisher
	now func() time.Time
}

// New returns a Notifier publishing through pub.
func New(pub Publisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

// NotifyClientConfirmed tells the client their consultation is booked.
func (n *Notifier) NotifyClientConfirmed(ctx context.Context, b model.Booking, s model.Slot) error {
	return n.publish(ctx, queue.AudienceClient, b, s)
}

// NotifyStaffConfirmed tells the practice about a new booking.
func (n *Notifier) NotifyStaffConfirmed(ctx context.Context, b model.Booking, s model.Slot) error {
	return n.publish(ctx, queue.AudienceStaff, b, s)
}

// Close releases the underlying publisher.
func (n *Notifier) Close() error { return n.pub.Close() }

func (n *Notifier) publish(ctx context.Context, audience string, b model.Booking, s model.Slot) error {
	err := n.pub.Publish(ctx, queue.NewBookingConfirmedEvent(audience, b, s, n.now()))
	if err != nil {
		metrics.IncNotification(audience, "error")
		return err
	}
	metrics.IncNotification(audience, "ok")
	return nil
}
