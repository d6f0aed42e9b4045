package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/consultation-booking/internal/apperror"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/middleware"
)

// respondError renders err as {"error", "code", "details"}.  Errors that
// are not AppErrors become a 500 without leaking their text.  Every 5xx
// is logged with its cause.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	ae, ok := apperror.As(err)
	if !ok {
		ae = apperror.Internal("internal error", err)
	}
	if ae.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Get(middleware.RequestIDKey),
			"code", ae.Kind,
			"error", err,
		)
	}
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": apperror.KindInternal})
	}
	body := echo.Map{"error": ae.Message, "code": ae.Kind}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	return c.JSON(ae.HTTPStatus, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": apperror.KindInvalidInput})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
