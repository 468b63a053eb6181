//go:build integration

package postgresql

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

// Run with: TEST_DATABASE_DSN=postgres://... go test -tags integration ./internal/repository/postgresql/
func newIntegrationDB(t *testing.T) *db.Database {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set")
	}

	ctx := context.Background()
	database, err := db.NewDb(ctx, dsn, 32)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, database.Migrate(ctx))
	return database
}

func createIntegrationUser(t *testing.T, users *UserRepo) *repository.User {
	t.Helper()

	user, err := users.CreateUser(context.Background(), "it_"+uuid.NewString()[:8], "Secret123")
	require.NoError(t, err)
	return user
}

func TestLoanRepo_Integration_ConcurrentBorrowSingleWinner(t *testing.T) {
	database := newIntegrationDB(t)
	ctx := context.Background()

	books := NewBookRepo(database)
	users := NewUserRepo(database)
	loans := NewLoanRepo(database, NewOutboxTaskRepo(database), "library.loans")

	book := &repository.Book{Title: "Contested", Author: "A", Genre: "g", PublishedYear: 2000}
	require.NoError(t, books.Create(ctx, book))

	const workers = 16
	borrowers := make([]*repository.User, workers)
	for i := range borrowers {
		borrowers[i] = createIntegrationUser(t, users)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
		others    []error
	)
	for _, user := range borrowers {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := loans.Borrow(ctx, userID, []int64{book.ID})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}(user.ID)
	}
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	var open int
	require.NoError(t, database.Get(ctx, &open,
		`SELECT count(*) FROM loans WHERE book_id = $1 AND returned_at IS NULL`, book.ID))
	assert.Equal(t, 1, open)
}

func TestLoanRepo_Integration_OpenLoanIndexRejectsSecondInsert(t *testing.T) {
	database := newIntegrationDB(t)
	ctx := context.Background()

	books := NewBookRepo(database)
	users := NewUserRepo(database)

	book := &repository.Book{Title: "Indexed", Author: "A", Genre: "g", PublishedYear: 2000}
	require.NoError(t, books.Create(ctx, book))
	first := createIntegrationUser(t, users)
	second := createIntegrationUser(t, users)

	const insert = `INSERT INTO loans (user_id, book_id) VALUES ($1, $2)`

	_, err := database.Exec(ctx, insert, first.ID, book.ID)
	require.NoError(t, err)

	// Bypasses the row lock taken by Borrow.
	_, err = database.Exec(ctx, insert, second.ID, book.ID)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}
