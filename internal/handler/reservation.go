package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/service"
)

// ReservationHandler serves the client checkout endpoints.
type ReservationHandler struct {
	Reservations *service.Reservations
	Log          *logger.Logger
}

func NewReservationHandler(res *service.Reservations, log *logger.Logger) *ReservationHandler {
	if res == nil {
		panic("nil reservations passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: res, Log: log}
}

// Create handles POST /v1/reservations.  On success the slot is held for
// the hold TTL and the response carries the payment client secret.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req service.ReserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	r, err := h.Reservations.Reserve(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Cancel handles DELETE /v1/reservations/:bookingId.  Unknown bookings
// answer 200 with released=false so the client can call it blindly.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	released, err := h.Reservations.Cancel(c.Request().Context(), c.Param("bookingId"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}
