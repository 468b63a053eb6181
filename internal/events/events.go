// Package events defines the payloads published to the message broker
// through the transactional outbox.
package events

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type LoanEventType string

const (
	LoanBorrowed LoanEventType = "loan.borrowed"
	LoanReturned LoanEventType = "loan.returned"
)

// LoanEvent describes one committed borrow or return batch.
type LoanEvent struct {
	EventID    uuid.UUID     `json:"event_id"`
	Type       LoanEventType `json:"type"`
	UserID     int64         `json:"user_id"`
	BookIDs    []int64       `json:"book_ids"`
	LoanIDs    []int64       `json:"loan_ids"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func NewLoanEvent(eventType LoanEventType, userID int64, loans []*repository.Loan, at time.Time) LoanEvent {
	event := LoanEvent{
		EventID:    uuid.New(),
		Type:       eventType,
		UserID:     userID,
		BookIDs:    make([]int64, len(loans)),
		LoanIDs:    make([]int64, len(loans)),
		OccurredAt: at.UTC(),
	}
	for i, loan := range loans {
		event.BookIDs[i] = loan.BookID
		event.LoanIDs[i] = loan.ID
	}
	return event
}

func (e LoanEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeLoanEvent(data []byte) (LoanEvent, error) {
	var event LoanEvent
	err := json.Unmarshal(data, &event)
	return event, err
}

// AuditEntry is a single audited API call.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Handler    string    `json:"handler"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	UserID     int64     `json:"user_id,omitempty"`
	BookIDs    []int64   `json:"book_ids,omitempty"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
}

// AuditBatch is what the audit workers hand to the outbox in one message.
type AuditBatch struct {
	Entries []AuditEntry `json:"entries"`
}

func (b AuditBatch) Marshal() ([]byte, error) {
	return json.Marshal(b)
}
