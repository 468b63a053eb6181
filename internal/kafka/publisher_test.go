package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	mock_db "gitlab.ozon.dev/pupkingeorgij/library/internal/db/mocks"
	mock_kafka "gitlab.ozon.dev/pupkingeorgij/library/internal/kafka/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/library/internal/storage/mocks"
)

type publisherFixture struct {
	db       *mock_db.MockDB
	tx       *mock_db.MockTx
	repo     *mock_storage.MockOutboxTaskRepository
	producer *mock_kafka.MockProducer
	pub      *Publisher
	now      time.Time
}

func newPublisherFixture(t *testing.T) *publisherFixture {
	ctrl := gomock.NewController(t)
	f := &publisherFixture{
		db:       mock_db.NewMockDB(ctrl),
		tx:       mock_db.NewMockTx(ctrl),
		repo:     mock_storage.NewMockOutboxTaskRepository(ctrl),
		producer: mock_kafka.NewMockProducer(ctrl),
		now:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.pub = NewPublisher(f.db, f.repo, f.producer, PublisherConfig{
		PollInterval: time.Millisecond,
		BatchSize:    10,
		MaxAttempts:  3,
	}, zap.NewNop())
	f.pub.timeNow = func() time.Time { return f.now }
	return f
}

func (f *publisherFixture) expectClaim(tasks ...*repository.OutboxTask) {
	f.db.EXPECT().BeginTx(gomock.Any(), db.ReadCommitted).Return(f.tx, nil)
	f.tx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
	f.repo.EXPECT().GetProcessableTasksTx(gomock.Any(), f.tx, 10, 3).Return(tasks, nil)
	for _, task := range tasks {
		f.repo.EXPECT().UpdateTaskStatusTx(gomock.Any(), f.tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil).Return(nil)
	}
	f.tx.EXPECT().Commit(gomock.Any()).Return(nil)
}

func TestPublisher_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		f := newPublisherFixture(t)
		task := &repository.OutboxTask{ID: uuid.New(), Topic: "library.loans", Payload: []byte(`{"type":"loan.borrowed"}`)}

		f.expectClaim(task)
		f.producer.EXPECT().SendMessage(gomock.Any(), "library.loans", []byte(task.ID.String()), []byte(task.Payload)).Return(nil)
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), task.ID, repository.TaskStatusDone, 1, nil, &f.now).Return(nil)

		require.NoError(t, f.pub.processBatch(ctx))
	})

	t.Run("send failure counts attempt", func(t *testing.T) {
		f := newPublisherFixture(t)
		task := &repository.OutboxTask{ID: uuid.New(), Topic: "library.loans", Attempts: 1}

		f.expectClaim(task)
		f.producer.EXPECT().SendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), task.ID, repository.TaskStatusFailed, 2, gomock.Not(gomock.Nil()), nil).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, _ repository.TaskStatus, _ int, lastError *string, _ *time.Time) error {
				assert.Equal(t, "broker down", *lastError)
				return nil
			})

		require.NoError(t, f.pub.processBatch(ctx))
	})

	t.Run("shutdown releases unsent tasks", func(t *testing.T) {
		f := newPublisherFixture(t)
		sent := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusCreated, Topic: "library.loans"}
		unsent := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusCreated, Topic: "library.loans"}

		f.expectClaim(sent, unsent)
		f.producer.EXPECT().SendMessage(gomock.Any(), gomock.Any(), []byte(sent.ID.String()), gomock.Any()).
			DoAndReturn(func(context.Context, string, []byte, []byte) error {
				close(f.pub.shutdownSignal)
				return nil
			})
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), sent.ID, repository.TaskStatusDone, 1, nil, &f.now).Return(nil)
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), unsent.ID, repository.TaskStatusCreated, 0, nil, nil).Return(nil)

		assert.ErrorIs(t, f.pub.processBatch(ctx), errPublisherStopped)
	})

	t.Run("cancelled context releases unsent tasks", func(t *testing.T) {
		f := newPublisherFixture(t)
		batchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		lastError := "broker down"
		sent := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusCreated, Topic: "library.loans"}
		retried := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusFailed, Attempts: 1, LastError: &lastError}
		reclaimed := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusProcessing, Attempts: 2}

		f.expectClaim(sent, retried, reclaimed)
		f.producer.EXPECT().SendMessage(gomock.Any(), gomock.Any(), []byte(sent.ID.String()), gomock.Any()).
			DoAndReturn(func(context.Context, string, []byte, []byte) error {
				cancel()
				return nil
			})
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), sent.ID, repository.TaskStatusDone, 1, nil, &f.now).Return(nil)
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), retried.ID, repository.TaskStatusFailed, 1, &lastError, nil).
			DoAndReturn(func(releaseCtx context.Context, _ uuid.UUID, _ repository.TaskStatus, _ int, _ *string, _ *time.Time) error {
				assert.NoError(t, releaseCtx.Err())
				return nil
			})
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), reclaimed.ID, repository.TaskStatusCreated, 2, nil, nil).Return(nil)

		assert.ErrorIs(t, f.pub.processBatch(batchCtx), context.Canceled)
	})

	t.Run("failed release keeps going", func(t *testing.T) {
		f := newPublisherFixture(t)
		first := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusCreated}
		second := &repository.OutboxTask{ID: uuid.New(), Status: repository.TaskStatusCreated}

		f.expectClaim(first, second)
		close(f.pub.shutdownSignal)
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), first.ID, repository.TaskStatusCreated, 0, nil, nil).Return(errors.New("db down"))
		f.repo.EXPECT().UpdateTaskStatus(gomock.Any(), second.ID, repository.TaskStatusCreated, 0, nil, nil).Return(nil)

		assert.ErrorIs(t, f.pub.processBatch(ctx), errPublisherStopped)
	})

	t.Run("nothing to do", func(t *testing.T) {
		f := newPublisherFixture(t)
		f.expectClaim()

		require.NoError(t, f.pub.processBatch(ctx))
	})

	t.Run("claim failure", func(t *testing.T) {
		f := newPublisherFixture(t)
		f.db.EXPECT().BeginTx(gomock.Any(), db.ReadCommitted).Return(f.tx, nil)
		f.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
		f.repo.EXPECT().GetProcessableTasksTx(gomock.Any(), f.tx, 10, 3).Return(nil, errors.New("boom"))

		assert.Error(t, f.pub.processBatch(ctx))
	})
}

func TestPublisher_RunAndShutdown(t *testing.T) {
	f := newPublisherFixture(t)
	f.db.EXPECT().BeginTx(gomock.Any(), gomock.Any()).Return(f.tx, nil).AnyTimes()
	f.tx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
	f.tx.EXPECT().Commit(gomock.Any()).Return(nil).AnyTimes()
	f.repo.EXPECT().GetProcessableTasksTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	f.producer.EXPECT().Close().Return(nil).Times(1)

	done := make(chan error, 1)
	go func() { done <- f.pub.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.pub.Shutdown(ctx)
	f.pub.Shutdown(ctx)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}
