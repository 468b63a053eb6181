//go:generate mockgen -source ./storage.go -destination=./mocks/mock_storage.go -package=mock_storage
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

// LoanRepository is the atomic borrow/return boundary over the loan ledger.
type LoanRepository interface {
	Borrow(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error)
	Return(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error)
	ListByUser(ctx context.Context, userID int64, activeOnly bool) ([]*repository.LoanView, error)
}

type BookRepository interface {
	Create(ctx context.Context, book *repository.Book) error
	GetByID(ctx context.Context, id int64) (*repository.Book, error)
	Update(ctx context.Context, book *repository.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter repository.BookFilter) ([]*repository.Book, error)
	MostBorrowed(ctx context.Context, limit uint) ([]*repository.BookStats, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, username, password string) (*repository.User, error)
	GetByUsername(ctx context.Context, username string) (*repository.User, error)
	ValidateUser(ctx context.Context, username, password string) (*repository.User, error)
}

type NoteRepository interface {
	Create(ctx context.Context, note *repository.Note) error
	ListByBook(ctx context.Context, userID, bookID int64) ([]*repository.Note, error)
	ListByUser(ctx context.Context, userID int64) ([]*repository.Note, error)
}

// OutboxWriter appends a task inside a caller-owned transaction.
type OutboxWriter interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
}

type OutboxTaskRepository interface {
	OutboxWriter
	Create(ctx context.Context, task *repository.OutboxTask) error
	GetProcessableTasksTx(ctx context.Context, tx db.Tx, limit, maxAttempts int) ([]*repository.OutboxTask, error)
	UpdateTaskStatusTx(ctx context.Context, tx db.Tx, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
}
