package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/consultation-booking/internal/queue"
)

// RabbitPublisher publishes to the durable booking.confirmed queue via the
// default exchange.  Confirmations are rare, so each publish dials its own
// connection instead of keeping one alive.
type RabbitPublisher struct {
	URL string
}

func NewRabbitPublisher(url string) *RabbitPublisher { return &RabbitPublisher{URL: url} }

// Publish marshals ev and publishes it as a persistent message.  Errors are
// returned so the caller can log them; they never affect the booking.
func (p *RabbitPublisher) Publish(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.BookingConfirmedTopic, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                          // default exchange
		queue.BookingConfirmedTopic, // routing key = queue name
		false,                       // mandatory
		false,                       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.BookingID + ":" + ev.Audience,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error { return nil }
