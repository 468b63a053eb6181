package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/storage"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

const (
	DefaultMostBorrowed = 10
	MaxMostBorrowed     = 100
	MaxPageSize         = 100
)

// ErrBookHasLoans is returned when deleting a book that has loan history.
var ErrBookHasLoans = errors.New("book has borrowing history and cannot be deleted")

// BookInput is the editable part of a catalog entry.
type BookInput struct {
	Title         string `json:"title" validate:"required" label:"Title"`
	Author        string `json:"author" validate:"required" label:"Author"`
	Genre         string `json:"genre" validate:"required" label:"Genre"`
	PublishedYear int    `json:"published_year" validate:"gte=1800,notfuture" label:"Published year"`
}

type Service struct {
	books   storage.BookRepository
	cache   *cache.BookCache
	log     *zap.Logger
	timeNow func() time.Time
}

func NewService(books storage.BookRepository, log *zap.Logger) *Service {
	return &Service{books: books, log: log, timeNow: time.Now}
}

// WithCache serves Get from c. Writes through this service keep it current.
func (s *Service) WithCache(c *cache.BookCache) *Service {
	s.cache = c
	return s
}

func (s *Service) Create(ctx context.Context, in BookInput) (*repository.Book, error) {
	book, err := s.toBook(in)
	if err != nil {
		return nil, err
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, s.fail("create_book", err)
	}
	s.log.Info("book created", zap.Int64("book_id", book.ID))
	return book, nil
}

func (s *Service) Update(ctx context.Context, id int64, in BookInput) (*repository.Book, error) {
	book, err := s.toBook(in)
	if err != nil {
		return nil, err
	}
	book.ID = id

	if err := s.books.Update(ctx, book); err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, notFound(id)
		}
		return nil, s.fail("update_book", err)
	}
	s.cache.Set(book)
	return book, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.books.Delete(ctx, id)
	switch {
	case err == nil:
		s.cache.Delete(id)
		s.log.Info("book deleted", zap.Int64("book_id", id))
		return nil
	case errors.Is(err, repository.ErrObjectNotFound):
		return notFound(id)
	case errors.Is(err, repository.ErrReferenced):
		return ErrBookHasLoans
	}
	return s.fail("delete_book", err)
}

func (s *Service) Get(ctx context.Context, id int64) (*repository.Book, error) {
	if book, ok := s.cache.Get(id); ok {
		return book, nil
	}

	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, notFound(id)
		}
		return nil, s.fail("get_book", err)
	}
	s.cache.Set(book)
	return book, nil
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the catalog ordered by title. A non-empty search narrows it
// to books whose title or author contains the term.
func (s *Service) List(ctx context.Context, search string, limit, offset uint) ([]*repository.Book, error) {
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	books, err := s.books.List(ctx, repository.BookFilter{
		Search: strings.TrimSpace(search),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, s.fail("list_books", err)
	}
	return books, nil
}

func (s *Service) MostBorrowed(ctx context.Context, limit int) ([]*repository.BookStats, error) {
	switch {
	case limit <= 0:
		limit = DefaultMostBorrowed
	case limit > MaxMostBorrowed:
		limit = MaxMostBorrowed
	}

	stats, err := s.books.MostBorrowed(ctx, uint(limit))
	if err != nil {
		return nil, s.fail("most_borrowed", err)
	}
	return stats, nil
}

func (s *Service) toBook(in BookInput) (*repository.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	if err := validation.Struct(in, s.timeNow()); err != nil {
		return nil, err
	}
	return &repository.Book{
		Title:         in.Title,
		Author:        in.Author,
		Genre:         in.Genre,
		PublishedYear: in.PublishedYear,
	}, nil
}

func (s *Service) fail(operation string, err error) error {
	metrics.OperationErrorsTotal.WithLabelValues(operation).Inc()
	s.log.Error("catalog operation failed", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("%s: %w", operation, err)
}

func notFound(id int64) error {
	return &repository.BookNotFoundError{BookIDs: []int64{id}}
}
