package queue

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iliyamo/consultation-booking/internal/logger"
)

const backoffKafka = 2 * time.Second

// KafkaConsumer reads the confirmation topic as part of a consumer group
// and commits each message after the sink accepted it.  Undecodable
// messages are logged and committed so they do not block the partition.
type KafkaConsumer struct {
	Brokers []string
	Topic   string
	GroupID string
	Sink    Sink
	Log     *logger.Logger
}

func (c *KafkaConsumer) Run(ctx context.Context) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    c.Topic,
		GroupID:  c.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka consumer: fetch failed", "error", err)
			if !sleepCtx(ctx, backoffKafka) {
				return ctx.Err()
			}
			continue
		}
		if err := handleMessage(ctx, c.Sink, m.Value); err != nil {
			c.Log.Error("kafka consumer: handle message failed",
				"error", err, "partition", m.Partition, "offset", m.Offset)
		}
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.Log.Warn("kafka consumer: commit failed", "error", err, "offset", m.Offset)
		}
	}
}
