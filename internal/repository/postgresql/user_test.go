package postgresql

import (
	"context"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	mock_db "gitlab.ozon.dev/pupkingeorgij/library/internal/db/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

func newTestUserRepo(t *testing.T) (*UserRepo, *mock_db.MockDB) {
	ctrl := gomock.NewController(t)
	mockDB := mock_db.NewMockDB(ctrl)
	repo := NewUserRepo(mockDB)
	repo.cost = bcrypt.MinCost
	return repo, mockDB
}

func TestUserRepo_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("stores bcrypt hash", func(t *testing.T) {
		repo, mockDB := newTestUserRepo(t)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), "alice", gomock.Any()).
			DoAndReturn(func(_ context.Context, dest interface{}, _ string, args ...interface{}) error {
				hash := args[1].(string)
				assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Secret123")))
				u := dest.(*repository.User)
				u.ID, u.Username, u.PasswordHash = 1, "alice", hash
				return nil
			})

		user, err := repo.CreateUser(ctx, "alice", "Secret123")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.NotEqual(t, "Secret123", user.PasswordHash)
	})

	t.Run("duplicate username", func(t *testing.T) {
		repo, mockDB := newTestUserRepo(t)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), "alice", gomock.Any()).
			Return(&pgconn.PgError{Code: uniqueViolation})

		_, err := repo.CreateUser(ctx, "alice", "Secret123")
		assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	})
}

func TestUserRepo_ValidateUser(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	fillUser := func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
		*dest.(*repository.User) = repository.User{ID: 5, Username: "bob", PasswordHash: string(hash)}
		return nil
	}

	tests := []struct {
		name     string
		password string
		dbErr    error
		wantErr  error
	}{
		{name: "valid", password: "Secret123"},
		{name: "wrong password", password: "Secret124", wantErr: repository.ErrInvalidPassword},
		{name: "unknown user", password: "Secret123", dbErr: pgx.ErrNoRows, wantErr: repository.ErrObjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mockDB := newTestUserRepo(t)

			call := mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), "bob")
			if tt.dbErr != nil {
				call.Return(tt.dbErr)
			} else {
				call.DoAndReturn(fillUser)
			}

			user, err := repo.ValidateUser(ctx, "bob", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(5), user.ID)
		})
	}
}
