package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/service"
)

// SlotHandler serves the public slot endpoints.
type SlotHandler struct {
	Catalog *service.Catalog
	Log     *logger.Logger
}

func NewSlotHandler(catalog *service.Catalog, log *logger.Logger) *SlotHandler {
	if catalog == nil {
		panic("nil catalog passed to NewSlotHandler")
	}
	return &SlotHandler{Catalog: catalog, Log: log}
}

// ListOpen handles GET /v1/slots?start=YYYY-MM-DD&end=YYYY-MM-DD.  The
// answer changes with every hold, so it is never cacheable.
func (h *SlotHandler) ListOpen(c echo.Context) error {
	slots, err := h.Catalog.ListOpen(c.Request().Context(), c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, echo.Map{"slots": slots, "count": len(slots)})
}

// Availability handles GET /v1/slots/:id/availability.
func (h *SlotHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	available, err := h.Catalog.Available(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, echo.Map{"slotId": id, "available": available})
}

// Confirmation handles GET /v1/slots/:id/confirmation.  Clients poll it
// after paying until the webhook has confirmed the booking.
func (h *SlotHandler) Confirmation(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	confirmed, err := h.Catalog.Confirmed(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, echo.Map{"slotId": id, "confirmed": confirmed})
}

func noStore(c echo.Context) {
	h := c.Response().Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
