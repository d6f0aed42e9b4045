package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRequestPayment(t *testing.T) {
	f := NewFake("s3cret")

	h, err := f.RequestPayment(context.Background(), Request{BookingID: "b-1", SlotID: 7, AmountPence: 10000, Currency: "gbp"})
	require.NoError(t, err)
	assert.Contains(t, h.ClientSecret, "fake_secret_")
	require.Len(t, f.Requests(), 1)
	assert.Equal(t, "b-1", f.Requests()[0].BookingID)

	f.FailNext(errors.New("card network down"))
	_, err = f.RequestPayment(context.Background(), Request{BookingID: "b-2"})
	assert.Error(t, err)

	_, err = f.RequestPayment(context.Background(), Request{BookingID: "b-3"})
	assert.NoError(t, err, "failure applies to one call only")
}

func TestFakeParseEvent(t *testing.T) {
	f := NewFake("s3cret")
	body, _ := json.Marshal(FakeEvent{
		ID: "evt_1", Type: "payment.succeeded", PaymentRef: "pi_1",
		Metadata: map[string]string{MetaBookingID: "b-1", MetaSlotID: "7"},
	})

	ev, err := f.ParseEvent(body, f.Sign(body))
	require.NoError(t, err)
	assert.Equal(t, EventSucceeded, ev.Kind)
	assert.Equal(t, "pi_1", ev.PaymentRef)
	assert.Equal(t, "b-1", ev.BookingID)
	assert.Equal(t, "7", ev.SlotID)

	_, err = f.ParseEvent(body, "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestFakeUnknownTypeIgnored(t *testing.T) {
	f := NewFake("k")
	body := []byte(`{"id":"evt_2","type":"charge.refunded"}`)
	ev, err := f.ParseEvent(body, "sha256="+f.Sign(body))
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}

// stripeSignature builds a Stripe-Signature header value for payload.
func stripeSignature(secret string, payload []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeParseEvent(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")
	payload := []byte(`{
	  "id": "evt_1",
	  "object": "event",
	  "type": "payment_intent.succeeded",
	  "data": {"object": {"id": "pi_123", "object": "payment_intent", "metadata": {"bookingId": "b-1", "slotId": "7"}}}
	}`)

	ev, err := s.ParseEvent(payload, stripeSignature("whsec_test", payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventSucceeded, ev.Kind)
	assert.Equal(t, "pi_123", ev.PaymentRef)
	assert.Equal(t, "b-1", ev.BookingID)
	assert.Equal(t, "7", ev.SlotID)
}

func TestStripeParseEventFailedAndIgnored(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")

	failed := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed",
	  "data":{"object":{"id":"pi_9","object":"payment_intent","metadata":{"bookingId":"b-9","slotId":"3"},
	  "last_payment_error":{"message":"card declined"}}}}`)
	ev, err := s.ParseEvent(failed, stripeSignature("whsec_test", failed, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, "card declined", ev.FailureReason)

	other := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	ev, err = s.ParseEvent(other, stripeSignature("whsec_test", other, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}

func TestStripeRejectsBadSignature(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)

	_, err := s.ParseEvent(payload, stripeSignature("other", payload, time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
