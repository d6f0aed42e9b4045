// Command sweep runs the hold sweeper once and exits.  It is meant for a
// scheduler (cron, Kubernetes CronJob) in deployments that do not run the
// in-process sweeper, and shares the server's environment.
package main

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/database"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/repository"
	"github.com/iliyamo/consultation-booking/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.Service + "-sweep"})
	if err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	if cfg.Store != "mysql" {
		log.Fatal("the sweep command needs STORE_BACKEND=mysql", "store", cfg.Store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(cfg.DSNParts())
	if err != nil {
		log.Fatal("database", "error", err)
	}
	defer db.Close()

	store := repository.NewStore(db)
	ledger := service.NewBookingLedger(store, cfg.Booking.Currency, log)
	res, err := service.NewSweeper(store, ledger, cfg.Booking, log).RunOnce(ctx)
	if err != nil {
		log.Error("sweep incomplete", "error", err, "holds_released", res.HoldsReleased,
			"bookings_abandoned", res.BookingsAbandoned+int64(res.StaleAbandoned), "purged", res.Purged)
		os.Exit(1)
	}
	log.Info("sweep done", "holds_released", res.HoldsReleased,
		"bookings_abandoned", res.BookingsAbandoned+int64(res.StaleAbandoned), "purged", res.Purged)
}
