package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeSucceeded = "payment_intent.succeeded"
	stripeFailed    = "payment_intent.payment_failed"
)

// Stripe implements Gateway with PaymentIntents.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe builds a gateway from the account secret key and the webhook
// endpoint's signing secret.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, webhookSecret: webhookSecret}
}

func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

// RequestPayment creates a PaymentIntent for the booking.  The booking id
// doubles as idempotency key, so a retried request never opens a second
// intent for the same booking.
func (s *Stripe) RequestPayment(ctx context.Context, req Request) (Handle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountPence),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey("booking-" + req.BookingID)
	params.AddMetadata(MetaBookingID, req.BookingID)
	params.AddMetadata(MetaSlotID, strconv.FormatUint(req.SlotID, 10))

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Handle{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return Handle{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ParseEvent verifies the Stripe-Signature header and normalises the two
// PaymentIntent outcomes.  Every other event type is returned as
// EventIgnored.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: ev.ID, Type: string(ev.Type), Kind: EventIgnored}
	switch string(ev.Type) {
	case stripeSucceeded:
		out.Kind = EventSucceeded
	case stripeFailed:
		out.Kind = EventFailed
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return Event{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	out.PaymentRef = pi.ID
	out.BookingID = pi.Metadata[MetaBookingID]
	out.SlotID = pi.Metadata[MetaSlotID]
	if pi.LastPaymentError != nil {
		out.FailureReason = pi.LastPaymentError.Msg
	}
	return out, nil
}
