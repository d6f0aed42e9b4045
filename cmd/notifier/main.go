// Command notifier consumes booking confirmation events from the
// configured broker and delivers them to the file sink.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/consultation-booking/internal/config"
	"github.com/iliyamo/consultation-booking/internal/logger"
	"github.com/iliyamo/consultation-booking/internal/queue"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		Service: "consultation-notifier",
	})
	cfg := config.LoadNotifyConfig()

	dir := os.Getenv("NOTIFY_LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	sink := queue.NewFileSink(dir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var run func(context.Context) error
	switch cfg.Broker {
	case "rabbitmq":
		run = (&queue.RabbitConsumer{URL: cfg.RabbitURL, Sink: sink, Log: log}).Run
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			log.Fatal("KAFKA_BROKERS is required for the kafka broker")
		}
		run = (&queue.KafkaConsumer{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: "consultation-notifier",
			Sink:    sink,
			Log:     log,
		}).Run
	default:
		log.Fatal("NOTIFY_BROKER must be rabbitmq or kafka", "broker", cfg.Broker)
	}

	log.Info("notifier started", "broker", cfg.Broker, "dir", dir)
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("notifier stopped", "error", err)
	}
	log.Info("notifier stopped")
}
