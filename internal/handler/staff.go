package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/middleware"
	"github.com/iliyamo/consultation-booking/internal/service"
)

// StaffHandler groups the endpoints behind staff authentication.
type StaffHandler struct {
	Catalog *service.Catalog
	Ledger  *service.BookingLedger
	Holds   *service.HoldManager
	Sweeper *service.Sweeper
	Log     *logger.Logger
}

func NewStaffHandler(catalog *service.Catalog, ledger *service.BookingLedger, holds *service.HoldManager, sweeper *service.Sweeper, log *logger.Logger) *StaffHandler {
	if catalog == nil || ledger == nil || holds == nil || sweeper == nil {
		panic("nil dependency passed to NewStaffHandler")
	}
	return &StaffHandler{Catalog: catalog, Ledger: ledger, Holds: holds, Sweeper: sweeper, Log: log}
}

// ListSlots handles GET /v1/admin/slots?start=&end= and returns every slot
// in the range with its booking and live hold.
func (h *StaffHandler) ListSlots(c echo.Context) error {
	states, err := h.Catalog.ListStates(c.Request().Context(), c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": states, "count": len(states)})
}

// CreateSlot handles POST /v1/admin/slots.
func (h *StaffHandler) CreateSlot(c echo.Context) error {
	var req service.CreateSlotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	s, err := h.Catalog.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// DeleteSlot handles DELETE /v1/admin/slots/:id.
func (h *StaffHandler) DeleteSlot(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	if err := h.Catalog.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Bookings handles GET /v1/admin/bookings?year=YYYY: confirmed bookings
// with their slots, plus the earnings of the year (current year by
// default).
func (h *StaffHandler) Bookings(c echo.Context) error {
	year := h.Catalog.CurrentYear()
	if q := c.QueryParam("year"); q != "" {
		y, err := strconv.Atoi(q)
		if err != nil || y < 2000 || y > 9999 {
			return badRequest(c, "year must be YYYY")
		}
		year = y
	}
	list, earnings, err := h.Ledger.Confirmed(c.Request().Context(), year)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "earnings": earnings})
}

// ReleaseHold handles DELETE /v1/admin/holds/:slotId.
func (h *StaffHandler) ReleaseHold(c echo.Context) error {
	id, ok := pathID(c, "slotId")
	if !ok {
		return badRequest(c, "invalid slot id")
	}
	released, err := h.Holds.Release(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if p, ok := middleware.PrincipalFrom(c); ok {
		h.Log.Info("hold released by staff", "slot_id", id, "released", released, "by", p.Subject)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Sweep handles POST /v1/admin/sweep, an on-demand sweeper run.
func (h *StaffHandler) Sweep(c echo.Context) error {
	res, err := h.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		h.Log.Error("on-demand sweep incomplete", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep incomplete", "result": res})
	}
	return c.JSON(http.StatusOK, res)
}
