package server

import (
	"context"
	"fmt"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

// AuditSink persists a batch of audit entries.
type AuditSink interface {
	WriteBatch(ctx context.Context, batch []events.AuditEntry) error
}

type outboxCreator interface {
	Create(ctx context.Context, task *repository.OutboxTask) error
}

// OutboxAuditSink stores each batch as one outbox task for the audit topic.
type OutboxAuditSink struct {
	outbox outboxCreator
	topic  string
}

func NewOutboxAuditSink(outbox outboxCreator, topic string) *OutboxAuditSink {
	return &OutboxAuditSink{outbox: outbox, topic: topic}
}

func (s *OutboxAuditSink) WriteBatch(ctx context.Context, batch []events.AuditEntry) error {
	payload, err := events.AuditBatch{Entries: batch}.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal audit batch: %w", err)
	}
	return s.outbox.Create(ctx, &repository.OutboxTask{Topic: s.topic, Payload: payload})
}
