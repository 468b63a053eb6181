package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/logger"
)

const groupID = "library-loan-events-consumer"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lg, err := logger.New(getenv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	cfg := kafka.ConsumerConfig{
		Brokers: strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ","),
		Topic:   getenv("LOAN_EVENTS_TOPIC", "library.loans"),
		GroupID: groupID,
	}
	lg.Info("starting loan events consumer",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)

	consumer := kafka.NewConsumer(kafka.NewReader(cfg), kafka.LogLoanEvents(lg), lg)
	if err := consumer.Run(ctx); err != nil {
		lg.Fatal("consumer stopped", zap.Error(err))
	}
	lg.Info("consumer stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
