package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FakeEvent is the JSON body accepted by the fake gateway's webhook.
type FakeEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"` // "payment.succeeded" or "payment.failed"
	PaymentRef string            `json:"payment_ref"`
	Metadata   map[string]string `json:"metadata"`
	Reason     string            `json:"reason,omitempty"`
}

// Fake is an in-process gateway for development and tests.  Callbacks
// are signed with HMAC-SHA256 over the raw body, hex encoded.
type Fake struct {
	secret string

	mu       sync.Mutex
	requests []Request
	fail     error
}

// NewFake returns a fake gateway verifying callbacks with secret.
func NewFake(secret string) *Fake { return &Fake{secret: secret} }

func (f *Fake) SignatureHeader() string { return "X-Fake-Signature" }

// FailNext makes the next RequestPayment call return err.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

// Requests returns the payment requests seen so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *Fake) RequestPayment(ctx context.Context, req Request) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		err := f.fail
		f.fail = nil
		return Handle{}, err
	}
	f.requests = append(f.requests, req)
	id := uuid.NewString()
	return Handle{ID: "fake_pi_" + id, ClientSecret: "fake_secret_" + id}, nil
}

// Sign returns the signature the fake expects for payload.
func (f *Fake) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(f.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (f *Fake) ParseEvent(payload []byte, signature string) (Event, error) {
	sig := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if !hmac.Equal([]byte(sig), []byte(f.Sign(payload))) {
		return Event{}, ErrInvalidSignature
	}
	var fe FakeEvent
	if err := json.Unmarshal(payload, &fe); err != nil {
		return Event{}, fmt.Errorf("fake: decode event: %w", err)
	}

	out := Event{
		ID:            fe.ID,
		Type:          fe.Type,
		Kind:          EventIgnored,
		PaymentRef:    fe.PaymentRef,
		BookingID:     fe.Metadata[MetaBookingID],
		SlotID:        fe.Metadata[MetaSlotID],
		FailureReason: fe.Reason,
	}
	switch fe.Type {
	case "payment.succeeded":
		out.Kind = EventSucceeded
	case "payment.failed":
		out.Kind = EventFailed
	}
	return out, nil
}
