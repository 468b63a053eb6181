package postgresql

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

var (
	dialect     = goqu.Dialect("postgres")
	bookColumns = []interface{}{"id", "title", "author", "genre", "published_year", "created_at", "updated_at"}
)

type BookRepo struct {
	db db.DB
}

func NewBookRepo(db db.DB) *BookRepo {
	return &BookRepo{db: db}
}

func (r *BookRepo) Create(ctx context.Context, book *repository.Book) error {
	err := r.db.Get(ctx, book, `
        INSERT INTO books (title, author, genre, published_year)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at
    `, book.Title, book.Author, book.Genre, book.PublishedYear)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (r *BookRepo) GetByID(ctx context.Context, id int64) (*repository.Book, error) {
	var book repository.Book
	err := r.db.Get(ctx, &book, `
        SELECT id, title, author, genre, published_year, created_at, updated_at
        FROM books WHERE id = $1
    `, id)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return &book, nil
}

func (r *BookRepo) Update(ctx context.Context, book *repository.Book) error {
	err := r.db.Get(ctx, book, `
        UPDATE books
        SET
            title = $1,
            author = $2,
            genre = $3,
            published_year = $4,
            updated_at = now()
        WHERE id = $5
        RETURNING created_at, updated_at
    `, book.Title, book.Author, book.Genre, book.PublishedYear, book.ID)
	if err != nil {
		if isNoRows(err) {
			return repository.ErrObjectNotFound
		}
		return fmt.Errorf("failed to update book %d: %w", book.ID, err)
	}
	return nil
}

// Delete removes a catalog entry. Books with loan history are kept.
func (r *BookRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM books WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrReferenced
		}
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

// List returns books ordered by title, optionally narrowed to a
// case-insensitive title/author substring match.
func (r *BookRepo) List(ctx context.Context, filter repository.BookFilter) ([]*repository.Book, error) {
	query, args, err := listBooksSQL(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build books query: %w", err)
	}

	var books []*repository.Book
	if err := r.db.Select(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

func (r *BookRepo) MostBorrowed(ctx context.Context, limit uint) ([]*repository.BookStats, error) {
	query, args, err := mostBorrowedSQL(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build most borrowed query: %w", err)
	}

	var stats []*repository.BookStats
	if err := r.db.Select(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get most borrowed books: %w", err)
	}
	return stats, nil
}

func listBooksSQL(filter repository.BookFilter) (string, []interface{}, error) {
	ds := dialect.From("books").
		Select(bookColumns...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc())

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		))
	}
	if filter.Limit > 0 {
		ds = ds.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		ds = ds.Offset(filter.Offset)
	}
	return ds.Prepared(true).ToSQL()
}

func mostBorrowedSQL(limit uint) (string, []interface{}, error) {
	cols := make([]interface{}, 0, len(bookColumns)+1)
	for _, c := range bookColumns {
		cols = append(cols, goqu.I("b."+c.(string)))
	}
	cols = append(cols, goqu.COUNT(goqu.I("l.id")).As("borrow_count"))

	return dialect.From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("loans").As("l"), goqu.On(goqu.I("l.book_id").Eq(goqu.I("b.id")))).
		Select(cols...).
		GroupBy(goqu.I("b.id")).
		Order(goqu.I("borrow_count").Desc(), goqu.I("b.id").Asc()).
		Limit(limit).
		Prepared(true).
		ToSQL()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
