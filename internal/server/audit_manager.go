package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
)

const auditWriteTimeout = 5 * time.Second

// AuditManager batches audit entries and hands them to a pool of workers
// that write them to the sink. Entries that cannot be queued or written
// go to the log instead.
type AuditManager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	sink        AuditSink
	log         *zap.Logger

	inputChan  chan events.AuditEntry
	batchChan  chan []events.AuditEntry
	shutdownCh chan struct{}
	once       sync.Once
	startOnce  sync.Once

	wg sync.WaitGroup
}

func NewAuditManager(workerCount, batchSize int, timeout time.Duration, sink AuditSink, log *zap.Logger) *AuditManager {
	return &AuditManager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		sink:        sink,
		log:         log,
		inputChan:   make(chan events.AuditEntry, workerCount*batchSize*2),
		batchChan:   make(chan []events.AuditEntry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *AuditManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.log.Info("starting audit manager", zap.Int("workers", m.workerCount))
		m.wg.Add(1)
		go m.runAggregator(ctx)

		for i := 0; i < m.workerCount; i++ {
			m.wg.Add(1)
			go m.runWorker(i)
		}
	})
}

// Shutdown flushes the pending batch and waits for the workers.
func (m *AuditManager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		close(m.shutdownCh)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.log.Info("audit manager shutdown completed")
		case <-ctx.Done():
			m.log.Warn("audit manager shutdown interrupted")
		}
	})
}

func (m *AuditManager) LogEntry(entry events.AuditEntry) {
	select {
	case <-m.shutdownCh:
		m.emergencyLog(entry)
		return
	default:
	}

	select {
	case m.inputChan <- entry:
	default:
		m.emergencyLog(entry)
	}
}

func (m *AuditManager) runAggregator(ctx context.Context) {
	defer m.wg.Done()

	var (
		batch    []events.AuditEntry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	drain:
		for {
			select {
			case entry := <-m.inputChan:
				batch = append(batch, entry)
			default:
				break drain
			}
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				m.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			m.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			return

		case <-m.shutdownCh:
			return
		}
	}
}

func (m *AuditManager) dispatchBatch(batch []events.AuditEntry) {
	batchCopy := make([]events.AuditEntry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		m.write(-1, batchCopy)
	}
}

func (m *AuditManager) runWorker(id int) {
	defer m.wg.Done()

	for batch := range m.batchChan {
		m.write(id, batch)
	}
}

func (m *AuditManager) write(workerID int, batch []events.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := m.sink.WriteBatch(ctx, batch); err != nil {
		m.log.Error("failed to write audit batch",
			zap.Int("worker", workerID),
			zap.Int("entries", len(batch)),
			zap.Error(err),
		)
		for _, entry := range batch {
			m.emergencyLog(entry)
		}
	}
}

func (m *AuditManager) emergencyLog(entry events.AuditEntry) {
	m.log.Warn("audit entry",
		zap.Time("timestamp", entry.Timestamp),
		zap.String("handler", entry.Handler),
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status_code", entry.StatusCode),
		zap.Int64("user_id", entry.UserID),
		zap.Int64s("book_ids", entry.BookIDs),
	)
}
