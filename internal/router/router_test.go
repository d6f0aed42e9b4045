package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/handler"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/middleware"
	"github.com/iliyamo/consultation-booking/internal/model"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/repository"
	"github.com/iliyamo/consultation-booking/internal/service"
)

const (
	jwtSecret  = "router-jwt"
	cronSecret = "router-cron"
)

type nopNotifier struct{}

func (nopNotifier) NotifyClientConfirmed(context.Context, model.Booking, model.Slot) error {
	return nil
}
func (nopNotifier) NotifyStaffConfirmed(context.Context, model.Booking, model.Slot) error { return nil }

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	log := logger.Nop()
	store := repository.NewMemoryStore()
	gw := payment.NewFake("whsec")
	policy := config.LoadBookingPolicy()

	holds := service.NewHoldManager(store, policy.HoldTTL, log)
	ledger := service.NewBookingLedger(store, policy.Currency, log)
	catalog := service.NewCatalog(store, policy, time.UTC, log)
	res := service.NewReservations(store, holds, ledger, gw, policy, log)
	pay := service.NewPaymentConfirmation(ledger, store, nopNotifier{}, time.Second, log)
	sweeper := service.NewSweeper(store, ledger, policy, log)

	rl := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl"}
	bucket := middleware.NewMemoryTokenBucket(rl)
	t.Cleanup(bucket.Stop)

	metrics.Register()
	e := echo.New()
	RegisterRoutes(e, handler.Ready(store))
	RegisterPublic(e, handler.NewSlotHandler(catalog, log), handler.NewReservationHandler(res, log),
		middleware.RateLimit(rl, bucket, log))
	RegisterPayments(e, handler.NewPaymentHandler(gw, pay, log))
	jwtAuth := middleware.NewJWTAuthenticator(jwtSecret)
	RegisterStaff(e, handler.NewStaffHandler(catalog, ledger, holds, sweeper, log),
		middleware.RequireAuth(jwtAuth),
		middleware.RequireAuth(jwtAuth, middleware.NewSecretAuthenticator(cronSecret)),
		middleware.ResponseCache(config.CacheConfig{}, nil))
	return e
}

func call(e *echo.Echo, method, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func staffToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "staff-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return tok
}

func TestOperationalRoutes(t *testing.T) {
	e := newEcho(t)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/readyz", "").Code)

	rec := call(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStaffRoutesRequireToken(t *testing.T) {
	e := newEcho(t)
	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/admin/bookings", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/admin/bookings", cronSecret).Code,
		"cron secret only opens the sweep trigger")
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/admin/bookings", staffToken(t)).Code)
}

func TestSweepAcceptsCronSecret(t *testing.T) {
	e := newEcho(t)
	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/v1/admin/sweep", "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/v1/admin/sweep", cronSecret).Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/v1/admin/sweep", staffToken(t)).Code)
}

func TestReservationsAreRateLimited(t *testing.T) {
	e := newEcho(t)
	// The first attempt fails validation; the second never reaches the handler.
	assert.Equal(t, http.StatusUnprocessableEntity, call(e, http.MethodPost, "/v1/reservations", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(e, http.MethodPost, "/v1/reservations", "").Code)
	// Reads are not limited.
	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/v1/slots", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/v1/slots", "").Code)
}
