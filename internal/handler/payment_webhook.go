package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/service"
)

const maxWebhookBody = 64 << 10

// PaymentHandler receives gateway callbacks.
type PaymentHandler struct {
	Gateway      payment.Gateway
	Confirmation *service.PaymentConfirmation
	Log          *logger.Logger
}

func NewPaymentHandler(gw payment.Gateway, pc *service.PaymentConfirmation, log *logger.Logger) *PaymentHandler {
	if gw == nil || pc == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Gateway: gw, Confirmation: pc, Log: log}
}

// Webhook handles POST /v1/payments/webhook.  A bad signature is a 400.
// Only a storage failure answers 500, which makes the gateway retry;
// every other outcome, including callbacks that match no booking, is
// acknowledged with 200.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload too large"})
	}

	ev, err := h.Gateway.ParseEvent(body, c.Request().Header.Get(h.Gateway.SignatureHeader()))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.Log.Warn("webhook rejected: bad signature", "remote_ip", c.RealIP())
			return badRequest(c, "invalid signature")
		}
		h.Log.Warn("webhook rejected: malformed event", "error", err)
		return badRequest(c, "malformed event")
	}

	out, err := h.Confirmation.Handle(c.Request().Context(), ev)
	if err != nil {
		h.Log.Error("webhook processing failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed, retry later"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": out})
}
