package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // slot timezones resolve without a system zoneinfo

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/database"
	"github.com/iliyamo/consultation-booking/internal/handler"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/metrics"
	"github.com/iliyamo/consultation-booking/internal/middleware"
	"github.com/iliyamo/consultation-booking/internal/notify"
	"github.com/iliyamo/consultation-booking/internal/payment"
	"github.com/iliyamo/consultation-booking/internal/repository"
	"github.com/iliyamo/consultation-booking/internal/router"
	"github.com/iliyamo/consultation-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // a .env file is optional

	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.Service})
	if err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		log.Warn("redis unavailable; rate limiting in memory and response cache off", "error", err)
	} else {
		defer rdb.Close()
	}

	gateway := newGateway(cfg.Payment)
	publisher, err := newPublisher(cfg.Notify, log)
	if err != nil {
		log.Fatal("notification broker", "error", err)
	}
	notifier := notify.New(publisher)
	defer notifier.Close()

	policy := cfg.Booking
	holds := service.NewHoldManager(store, policy.HoldTTL, log)
	ledger := service.NewBookingLedger(store, policy.Currency, log)
	catalog := service.NewCatalog(store, policy, cfg.Location, log)
	reservations := service.NewReservations(store, holds, ledger, gateway, policy, log)
	confirmation := service.NewPaymentConfirmation(ledger, store, notifier, policy.NotifyTimeout, log)
	sweeper := service.NewSweeper(store, ledger, policy, log)

	metrics.Register()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.AccessLog(log))

	rlCfg := config.LoadRateLimitConfig()
	rateStore, stopRateStore := newRateStore(rdb, rlCfg)
	defer stopRateStore()
	jwtAuth := middleware.NewJWTAuthenticator(cfg.JWTSecret)
	router.RegisterRoutes(e, handler.Ready(store))
	router.RegisterPublic(e,
		handler.NewSlotHandler(catalog, log),
		handler.NewReservationHandler(reservations, log),
		middleware.RateLimit(rlCfg, rateStore, log))
	router.RegisterPayments(e, handler.NewPaymentHandler(gateway, confirmation, log))
	router.RegisterStaff(e,
		handler.NewStaffHandler(catalog, ledger, holds, sweeper, log),
		middleware.RequireAuth(jwtAuth),
		middleware.RequireAuth(jwtAuth, middleware.NewSecretAuthenticator(cfg.CronSecret)),
		middleware.ResponseCache(config.LoadCacheConfig(), rdb))

	go sweeper.Start(ctx)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.Store, "payments", cfg.Payment.Provider)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	// Let in-flight confirmation notifications finish before the broker
	// connection goes away.
	confirmation.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (service.Store, func()) {
	if cfg.Store == "memory" {
		log.Warn("using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}
	db, err := database.Open(cfg.DSNParts())
	if err != nil {
		log.Fatal("database", "error", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal("schema", "error", err)
	}
	return repository.NewStore(db), func() { _ = db.Close() }
}

func newGateway(cfg config.PaymentConfig) payment.Gateway {
	if cfg.Provider == "fake" {
		return payment.NewFake(cfg.FakeWebhookSecret)
	}
	return payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookKey)
}

func newPublisher(cfg config.NotifyConfig, log *logger.Logger) (notify.Publisher, error) {
	switch cfg.Broker {
	case "rabbitmq":
		return notify.NewRabbitPublisher(cfg.RabbitURL), nil
	case "kafka":
		return notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return notify.NewLogPublisher(log), nil
	}
}

// newRateStore returns the token bucket store and a func that stops it.
// Only the in-memory store runs a background eviction loop.
func newRateStore(rdb *redis.Client, cfg config.RateLimitConfig) (middleware.RateStore, func()) {
	if rdb != nil {
		return middleware.NewRedisTokenBucket(rdb, cfg), func() {}
	}
	bucket := middleware.NewMemoryTokenBucket(cfg)
	return bucket, bucket.Stop
}
