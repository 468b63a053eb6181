package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/notes"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]events.AuditEntry
	err     error
}

func (s *memorySink) WriteBatch(_ context.Context, batch []events.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memorySink) entries() []events.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.AuditEntry
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func TestAuditManager_FlushesOnShutdown(t *testing.T) {
	sink := &memorySink{}
	m := NewAuditManager(2, 2, time.Hour, sink, zap.NewNop())
	m.Start(context.Background())

	for i := 0; i < 5; i++ {
		m.LogEntry(events.AuditEntry{Handler: "borrow", UserID: int64(i + 1)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	got := sink.entries()
	require.Len(t, got, 5)
	seen := make(map[int64]bool)
	for _, e := range got {
		seen[e.UserID] = true
	}
	assert.Len(t, seen, 5)
}

func TestAuditManager_FlushesOnTimeout(t *testing.T) {
	sink := &memorySink{}
	m := NewAuditManager(1, 10, 20*time.Millisecond, sink, zap.NewNop())
	m.Start(context.Background())
	defer m.Shutdown(context.Background())

	m.LogEntry(events.AuditEntry{Handler: "return"})

	assert.Eventually(t, func() bool { return len(sink.entries()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAuditManager_FallsBackToLog(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memorySink{err: errors.New("outbox unavailable")}
	m := NewAuditManager(1, 2, time.Hour, sink, zap.New(core))
	m.Start(context.Background())

	m.LogEntry(events.AuditEntry{Handler: "borrow"})
	m.LogEntry(events.AuditEntry{Handler: "return"})
	m.Shutdown(context.Background())

	m.LogEntry(events.AuditEntry{Handler: "late"})

	assert.Equal(t, 1, logs.FilterMessage("failed to write audit batch").Len())
	assert.Equal(t, 3, logs.FilterMessage("audit entry").Len())
}

func TestAuditMiddleware(t *testing.T) {
	sink := &memorySink{}
	s, m := newTestServer(t)
	s.AuditManager = NewAuditManager(1, 10, time.Hour, sink, zap.NewNop())
	s.AuditManager.Start(context.Background())

	m.auth.EXPECT().VerifyToken(testToken).Return(int64(7), nil).Times(2)
	m.borrowing.EXPECT().RequestBorrow(gomock.Any(), int64(7), []int64{1, 2}).
		Return([]*repository.Book{{ID: 1}, {ID: 2}}, nil)
	m.notes.EXPECT().Add(gomock.Any(), int64(7), int64(3), "private thoughts").
		Return(&notes.Note{ID: 9, BookID: 3}, nil)

	rr := doRequest(s.Router(), http.MethodPost, "/api/borrowings/borrow", `{"bookIds":[1,2]}`, true)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doRequest(s.Router(), http.MethodPost, "/api/notes/books/3/notes", `{"note":"private thoughts"}`, true)
	require.Equal(t, http.StatusCreated, rr.Code)

	s.AuditManager.Shutdown(context.Background())

	got := sink.entries()
	require.Len(t, got, 2)

	borrow, note := got[0], got[1]
	if borrow.Handler != "borrow" {
		borrow, note = note, borrow
	}

	assert.Equal(t, "borrow", borrow.Handler)
	assert.Equal(t, int64(7), borrow.UserID)
	assert.Equal(t, []int64{1, 2}, borrow.BookIDs)
	assert.Equal(t, http.StatusCreated, borrow.StatusCode)
	assert.JSONEq(t, `{"bookIds":[1,2]}`, borrow.Request)
	assert.Contains(t, borrow.Response, "Books borrowed successfully")

	assert.Equal(t, "addNote", note.Handler)
	assert.Equal(t, []int64{3}, note.BookIDs)
	assert.Empty(t, note.Request)
	assert.Empty(t, note.Response)
}

type recordingOutbox struct {
	tasks []*repository.OutboxTask
}

func (o *recordingOutbox) Create(_ context.Context, task *repository.OutboxTask) error {
	o.tasks = append(o.tasks, task)
	return nil
}

func TestOutboxAuditSink(t *testing.T) {
	outbox := &recordingOutbox{}
	sink := NewOutboxAuditSink(outbox, "library.audit")

	err := sink.WriteBatch(context.Background(), []events.AuditEntry{
		{Handler: "borrow", StatusCode: 201},
		{Handler: "return", StatusCode: 404},
	})
	require.NoError(t, err)
	require.Len(t, outbox.tasks, 1)
	assert.Equal(t, "library.audit", outbox.tasks[0].Topic)

	var batch events.AuditBatch
	require.NoError(t, json.Unmarshal(outbox.tasks[0].Payload, &batch))
	require.Len(t, batch.Entries, 2)
	assert.Equal(t, "return", batch.Entries[1].Handler)
}
