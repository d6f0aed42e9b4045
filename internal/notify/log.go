package notify

import (
	"context"

	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/queue"
)

// LogPublisher writes events to the service log.  Used when no broker is
// configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.log.Info("booking confirmation notification",
		"audience", ev.Audience,
		"booking_id", ev.BookingID,
		"slot_id", ev.SlotID,
		"email", ev.Email,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
