package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/consultation-booking/internal/handler"
)

// RegisterRoutes registers the operational endpoints: liveness, readiness
// and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the unauthenticated client endpoints.  Only
// reservation attempts are rate limited; availability reads stay cheap
// and uncached.
func RegisterPublic(e *echo.Echo, s *handler.SlotHandler, r *handler.ReservationHandler, rateLimit echo.MiddlewareFunc) {
	e.GET("/v1/slots", s.ListOpen)
	e.GET("/v1/slots/:id/availability", s.Availability)
	e.GET("/v1/slots/:id/confirmation", s.Confirmation)

	e.POST("/v1/reservations", r.Create, rateLimit)
	e.DELETE("/v1/reservations/:bookingId", r.Cancel)
}

// RegisterPayments registers the gateway callback.  It authenticates by
// signature, not by token.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/v1/payments/webhook", p.Webhook)
}

// RegisterStaff registers the staff endpoints under /v1/admin behind
// staffAuth.  The sweep trigger sits outside the group so a scheduler
// holding only the cron secret can reach it through sweepAuth.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, staffAuth, sweepAuth, cache echo.MiddlewareFunc) {
	e.POST("/v1/admin/sweep", h.Sweep, sweepAuth)

	g := e.Group("/v1/admin", staffAuth)
	g.GET("/slots", h.ListSlots)
	g.POST("/slots", h.CreateSlot)
	g.DELETE("/slots/:id", h.DeleteSlot)
	g.GET("/bookings", h.Bookings, cache)
	g.DELETE("/holds/:slotId", h.ReleaseHold)
}
