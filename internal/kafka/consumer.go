package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type MessageHandler func(ctx context.Context, msg kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader     MessageReader
	handle     MessageHandler
	log        *zap.Logger
	retryDelay time.Duration
}

func NewReader(cfg ConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
}

func NewConsumer(reader MessageReader, handle MessageHandler, log *zap.Logger) *Consumer {
	return &Consumer{reader: reader, handle: handle, log: log, retryDelay: 5 * time.Second}
}

// Run reads until ctx is cancelled. Handler errors are logged and the
// message is skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error("failed to close kafka reader", zap.Error(err))
		}
	}()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("failed to read message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			c.log.Warn("failed to handle message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// LogLoanEvents decodes loan events and writes them to the log.
func LogLoanEvents(log *zap.Logger) MessageHandler {
	return func(_ context.Context, msg kafka.Message) error {
		event, err := events.DecodeLoanEvent(msg.Value)
		if err != nil {
			return err
		}
		log.Info("loan event",
			zap.String("key", string(msg.Key)),
			zap.String("type", string(event.Type)),
			zap.Int64("user_id", event.UserID),
			zap.Int64s("book_ids", event.BookIDs),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}
}
