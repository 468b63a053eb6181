//go:generate mockgen -source ./service.go -destination=./mocks/mock_service.go -package=mock_borrowing
package borrowing

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/storage"
)

const (
	DefaultMaxBatch = 20

	metadataWorkers = 8
)

// CatalogLookup answers whether a book exists and returns its metadata.
type CatalogLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*repository.Book, error)
}

type Service struct {
	loans    storage.LoanRepository
	catalog  CatalogLookup
	log      *zap.Logger
	maxBatch int
}

func NewService(loans storage.LoanRepository, catalog CatalogLookup, log *zap.Logger, maxBatch int) *Service {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Service{
		loans:    loans,
		catalog:  catalog,
		log:      log,
		maxBatch: maxBatch,
	}
}

// RequestBorrow opens one loan per requested book for userID, all or none,
// and returns the borrowed books in request order.
func (s *Service) RequestBorrow(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Book, error) {
	if err := s.validate(userID, bookIDs); err != nil {
		return nil, err
	}

	for _, id := range bookIDs {
		ok, err := s.catalog.Exists(ctx, id)
		if err != nil {
			return nil, s.fail("borrow", err)
		}
		if !ok {
			return nil, &repository.BookNotFoundError{BookIDs: []int64{id}}
		}
	}

	loans, err := s.loans.Borrow(ctx, userID, bookIDs)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			metrics.BorrowConflictsTotal.Inc()
			s.log.Info("borrow rejected", zap.Int64("user_id", userID), zap.Error(err))
			return nil, err
		case errors.Is(err, repository.ErrBookNotFound):
			return nil, err
		}
		return nil, s.fail("borrow", err)
	}

	metrics.LoansBorrowedTotal.Add(float64(len(loans)))
	s.log.Info("books borrowed",
		zap.Int64("user_id", userID),
		zap.Int64s("book_ids", bookIDs),
	)

	return s.books(ctx, bookIDs), nil
}

// RequestReturn closes the caller's open loans for every requested book, all or none.
func (s *Service) RequestReturn(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error) {
	if err := s.validate(userID, bookIDs); err != nil {
		return nil, err
	}

	loans, err := s.loans.Return(ctx, userID, bookIDs)
	if err != nil {
		if errors.Is(err, repository.ErrLoanNotFound) {
			s.log.Info("return rejected", zap.Int64("user_id", userID), zap.Error(err))
			return nil, err
		}
		return nil, s.fail("return", err)
	}

	metrics.LoansReturnedTotal.Add(float64(len(loans)))
	s.log.Info("books returned",
		zap.Int64("user_id", userID),
		zap.Int64s("book_ids", bookIDs),
	)
	return loans, nil
}

// MyBorrowings is the caller's full loan history, newest first.
func (s *Service) MyBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error) {
	loans, err := s.loans.ListByUser(ctx, userID, false)
	if err != nil {
		return nil, s.fail("my_borrowings", err)
	}
	return loans, nil
}

// ActiveBorrowings lists the caller's open loans, newest first.
func (s *Service) ActiveBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error) {
	loans, err := s.loans.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, s.fail("active_borrowings", err)
	}
	return loans, nil
}

func (s *Service) validate(userID int64, bookIDs []int64) error {
	if userID <= 0 {
		return invalid("user id must be positive")
	}
	if len(bookIDs) == 0 {
		return invalid("please provide valid book ids")
	}
	if len(bookIDs) > s.maxBatch {
		return invalid("at most %d books per request", s.maxBatch)
	}

	seen := make(map[int64]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		if id <= 0 {
			return invalid("book id %d must be positive", id)
		}
		if _, ok := seen[id]; ok {
			return invalid("book id %d is repeated", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// books loads metadata for already committed loans. A failed lookup
// degrades to an id-only entry: the loans exist either way.
func (s *Service) books(ctx context.Context, bookIDs []int64) []*repository.Book {
	books := make([]*repository.Book, len(bookIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataWorkers)
	for i, id := range bookIDs {
		g.Go(func() error {
			book, err := s.catalog.Get(gctx, id)
			if err != nil {
				s.log.Warn("failed to load borrowed book", zap.Int64("book_id", id), zap.Error(err))
				book = &repository.Book{ID: id}
			}
			books[i] = book
			return nil
		})
	}
	_ = g.Wait()

	return books
}

func (s *Service) fail(operation string, err error) error {
	metrics.OperationErrorsTotal.WithLabelValues(operation).Inc()
	s.log.Error("operation failed", zap.String("operation", operation), zap.Error(err))
	return storageErr(err)
}
