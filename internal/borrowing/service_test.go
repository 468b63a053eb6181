package borrowing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_borrowing "gitlab.ozon.dev/pupkingeorgij/library/internal/borrowing/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/library/internal/storage/mocks"
)

func newTestService(t *testing.T) (*Service, *mock_storage.MockLoanRepository, *mock_borrowing.MockCatalogLookup) {
	ctrl := gomock.NewController(t)
	loans := mock_storage.NewMockLoanRepository(ctrl)
	catalog := mock_borrowing.NewMockCatalogLookup(ctrl)
	return NewService(loans, catalog, zap.NewNop(), 3), loans, catalog
}

func TestService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		userID  int64
		bookIDs []int64
	}{
		{name: "empty list", userID: 1, bookIDs: nil},
		{name: "zero id", userID: 1, bookIDs: []int64{1, 0}},
		{name: "negative id", userID: 1, bookIDs: []int64{-4}},
		{name: "duplicate id", userID: 1, bookIDs: []int64{5, 6, 5}},
		{name: "batch too large", userID: 1, bookIDs: []int64{1, 2, 3, 4}},
		{name: "no user", userID: 0, bookIDs: []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)

			_, err := svc.RequestBorrow(context.Background(), tt.userID, tt.bookIDs)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			_, err = svc.RequestReturn(context.Background(), tt.userID, tt.bookIDs)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestService_RequestBorrow(t *testing.T) {
	ctx := context.Background()

	t.Run("success keeps request order", func(t *testing.T) {
		svc, loans, catalog := newTestService(t)

		catalog.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
		loans.EXPECT().Borrow(gomock.Any(), int64(1), []int64{11, 10}).
			Return([]*repository.Loan{{ID: 1, BookID: 10}, {ID: 2, BookID: 11}}, nil)
		catalog.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, id int64) (*repository.Book, error) {
				return &repository.Book{ID: id, Title: "book"}, nil
			}).Times(2)

		books, err := svc.RequestBorrow(ctx, 1, []int64{11, 10})
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, int64(11), books[0].ID)
		assert.Equal(t, int64(10), books[1].ID)
	})

	t.Run("first missing book stops before any write", func(t *testing.T) {
		svc, _, catalog := newTestService(t)

		gomock.InOrder(
			catalog.EXPECT().Exists(gomock.Any(), int64(4)).Return(true, nil),
			catalog.EXPECT().Exists(gomock.Any(), int64(99)).Return(false, nil),
		)

		_, err := svc.RequestBorrow(ctx, 1, []int64{4, 99, 98})
		require.ErrorIs(t, err, repository.ErrBookNotFound)
		var nf *repository.BookNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []int64{99}, nf.BookIDs)
	})

	t.Run("conflict is surfaced with ids", func(t *testing.T) {
		svc, loans, catalog := newTestService(t)

		catalog.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
		loans.EXPECT().Borrow(gomock.Any(), int64(2), []int64{11, 12}).
			Return(nil, &repository.ConflictError{BookIDs: []int64{11}})

		_, err := svc.RequestBorrow(ctx, 2, []int64{11, 12})
		var conflict *repository.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []int64{11}, conflict.BookIDs)
		assert.NotErrorIs(t, err, ErrStorage)
	})

	t.Run("book deleted between check and lock", func(t *testing.T) {
		svc, loans, catalog := newTestService(t)

		catalog.EXPECT().Exists(gomock.Any(), int64(5)).Return(true, nil)
		loans.EXPECT().Borrow(gomock.Any(), int64(1), []int64{5}).
			Return(nil, &repository.BookNotFoundError{BookIDs: []int64{5}})

		_, err := svc.RequestBorrow(ctx, 1, []int64{5})
		assert.ErrorIs(t, err, repository.ErrBookNotFound)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		svc, loans, catalog := newTestService(t)
		dbErr := errors.New("connection refused")

		catalog.EXPECT().Exists(gomock.Any(), int64(5)).Return(true, nil)
		loans.EXPECT().Borrow(gomock.Any(), int64(1), []int64{5}).Return(nil, dbErr)

		_, err := svc.RequestBorrow(ctx, 1, []int64{5})
		assert.ErrorIs(t, err, ErrStorage)
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("catalog failure is wrapped", func(t *testing.T) {
		svc, _, catalog := newTestService(t)

		catalog.EXPECT().Exists(gomock.Any(), int64(5)).Return(false, errors.New("timeout"))

		_, err := svc.RequestBorrow(ctx, 1, []int64{5})
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("metadata failure after commit degrades", func(t *testing.T) {
		svc, loans, catalog := newTestService(t)

		catalog.EXPECT().Exists(gomock.Any(), int64(5)).Return(true, nil)
		loans.EXPECT().Borrow(gomock.Any(), int64(1), []int64{5}).Return([]*repository.Loan{{ID: 1, BookID: 5}}, nil)
		catalog.EXPECT().Get(gomock.Any(), int64(5)).Return(nil, errors.New("timeout"))

		books, err := svc.RequestBorrow(ctx, 1, []int64{5})
		require.NoError(t, err)
		assert.Equal(t, []*repository.Book{{ID: 5}}, books)
	})
}

func TestService_RequestReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		svc, loans, _ := newTestService(t)
		want := []*repository.Loan{{ID: 1, UserID: 1, BookID: 11}}

		loans.EXPECT().Return(gomock.Any(), int64(1), []int64{11}).Return(want, nil)

		got, err := svc.RequestReturn(ctx, 1, []int64{11})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found is surfaced", func(t *testing.T) {
		svc, loans, _ := newTestService(t)

		loans.EXPECT().Return(gomock.Any(), int64(1), []int64{11, 12}).
			Return(nil, &repository.LoanNotFoundError{BookIDs: []int64{12}})

		_, err := svc.RequestReturn(ctx, 1, []int64{11, 12})
		var nf *repository.LoanNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []int64{12}, nf.BookIDs)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		svc, loans, _ := newTestService(t)

		loans.EXPECT().Return(gomock.Any(), int64(1), []int64{11}).Return(nil, errors.New("boom"))

		_, err := svc.RequestReturn(ctx, 1, []int64{11})
		assert.ErrorIs(t, err, ErrStorage)
	})
}

func TestService_Borrowings(t *testing.T) {
	ctx := context.Background()
	views := []*repository.LoanView{{LoanID: 2, BookID: 11}, {LoanID: 1, BookID: 10}}

	t.Run("history", func(t *testing.T) {
		svc, loans, _ := newTestService(t)
		loans.EXPECT().ListByUser(gomock.Any(), int64(1), false).Return(views, nil)

		got, err := svc.MyBorrowings(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, views, got)
	})

	t.Run("active", func(t *testing.T) {
		svc, loans, _ := newTestService(t)
		loans.EXPECT().ListByUser(gomock.Any(), int64(1), true).Return(nil, errors.New("boom"))

		_, err := svc.ActiveBorrowings(ctx, 1)
		assert.ErrorIs(t, err, ErrStorage)
	})
}

// memLedger mirrors the store's contract: one open loan per book,
// all-or-nothing batches, returns scoped to the owner.
type memLedger struct {
	mu     sync.Mutex
	nextID int64
	open   map[int64]*repository.Loan
}

func newMemLedger() *memLedger {
	return &memLedger{open: make(map[int64]*repository.Loan)}
}

func (m *memLedger) Borrow(_ context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var taken []int64
	for _, id := range bookIDs {
		if _, ok := m.open[id]; ok {
			taken = append(taken, id)
		}
	}
	if len(taken) > 0 {
		sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })
		return nil, &repository.ConflictError{BookIDs: taken}
	}

	loans := make([]*repository.Loan, 0, len(bookIDs))
	for _, id := range bookIDs {
		m.nextID++
		loan := &repository.Loan{ID: m.nextID, UserID: userID, BookID: id, BorrowedAt: time.Now()}
		m.open[id] = loan
		loans = append(loans, loan)
	}
	return loans, nil
}

func (m *memLedger) Return(_ context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []int64
	for _, id := range bookIDs {
		if l, ok := m.open[id]; !ok || l.UserID != userID {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &repository.LoanNotFoundError{BookIDs: missing}
	}

	now := time.Now()
	loans := make([]*repository.Loan, 0, len(bookIDs))
	for _, id := range bookIDs {
		l := m.open[id]
		l.ReturnedAt = &now
		delete(m.open, id)
		loans = append(loans, l)
	}
	return loans, nil
}

func (m *memLedger) ListByUser(context.Context, int64, bool) ([]*repository.LoanView, error) {
	return nil, nil
}

func (m *memLedger) isOpen(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[id]
	return ok
}

type allBooks struct{}

func (allBooks) Exists(context.Context, int64) (bool, error) { return true, nil }

func (allBooks) Get(_ context.Context, id int64) (*repository.Book, error) {
	return &repository.Book{ID: id}, nil
}

func TestService_BorrowReturnScenario(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	svc := NewService(ledger, allBooks{}, zap.NewNop(), 0)

	_, err := svc.RequestBorrow(ctx, 1, []int64{10, 11})
	require.NoError(t, err)
	assert.True(t, ledger.isOpen(10))
	assert.True(t, ledger.isOpen(11))

	_, err = svc.RequestBorrow(ctx, 2, []int64{11, 12})
	var conflict *repository.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int64{11}, conflict.BookIDs)
	assert.False(t, ledger.isOpen(12))

	_, err = svc.RequestReturn(ctx, 2, []int64{10})
	assert.ErrorIs(t, err, repository.ErrLoanNotFound)
	assert.True(t, ledger.isOpen(10))

	_, err = svc.RequestReturn(ctx, 1, []int64{11})
	require.NoError(t, err)

	_, err = svc.RequestBorrow(ctx, 2, []int64{11})
	require.NoError(t, err)

	_, err = svc.RequestBorrow(ctx, 2, []int64{11})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

// Exercises the service against the in-memory ledger. The same property on
// PostgreSQL (row locks plus loans_open_book_uidx) is covered by the
// integration-tagged tests in internal/repository/postgresql.
func TestService_ConcurrentBorrowSingleWinner(t *testing.T) {
	ctx := context.Background()
	ledger := newMemLedger()
	svc := NewService(ledger, allBooks{}, zap.NewNop(), 0)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := svc.RequestBorrow(ctx, user, []int64{7, user + 100})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}
