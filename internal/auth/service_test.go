package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/library/internal/storage/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

func newTestService(t *testing.T) (*Service, *mock_storage.MockUserRepository) {
	ctrl := gomock.NewController(t)
	users := mock_storage.NewMockUserRepository(ctrl)
	return NewService(users, "test-secret", time.Hour, zap.NewNop()), users
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		repoErr  error
		wantErr  error
	}{
		{name: "success", username: "alice", password: "Secret123"},
		{name: "bad username", username: "a!", password: "Secret123", wantErr: validation.ErrInvalid},
		{name: "weak password", username: "alice", password: "secret", wantErr: validation.ErrInvalid},
		{name: "taken", username: "alice", password: "Secret123", repoErr: repository.ErrAlreadyExists, wantErr: ErrUserExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users := newTestService(t)

			if !errors.Is(tt.wantErr, validation.ErrInvalid) {
				var user *repository.User
				if tt.repoErr == nil {
					user = &repository.User{ID: 1, Username: tt.username}
				}
				users.EXPECT().CreateUser(gomock.Any(), tt.username, tt.password).Return(user, tt.repoErr)
			}

			user, err := svc.Register(ctx, tt.username, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), user.ID)
		})
	}
}

func TestService_LoginAndVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("token round trip", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().ValidateUser(gomock.Any(), "alice", "Secret123").
			Return(&repository.User{ID: 7, Username: "alice"}, nil)

		token, user, err := svc.Login(ctx, "alice", "Secret123")
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)

		id, err := svc.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	})

	for _, repoErr := range []error{repository.ErrObjectNotFound, repository.ErrInvalidPassword} {
		t.Run("rejects "+repoErr.Error(), func(t *testing.T) {
			svc, users := newTestService(t)
			users.EXPECT().ValidateUser(gomock.Any(), "alice", "Secret123").Return(nil, repoErr)

			_, _, err := svc.Login(ctx, "alice", "Secret123")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}

	t.Run("missing password", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, _, err := svc.Login(ctx, "alice", "")
		assert.ErrorIs(t, err, validation.ErrInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().ValidateUser(gomock.Any(), "alice", "Secret123").
			Return(&repository.User{ID: 7, Username: "alice"}, nil)

		token, _, err := svc.Login(ctx, "alice", "Secret123")
		require.NoError(t, err)

		svc.timeNow = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_EnsureUser(t *testing.T) {
	ctx := context.Background()

	t.Run("already present", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().GetByUsername(gomock.Any(), "admin").Return(&repository.User{ID: 1}, nil)

		assert.NoError(t, svc.EnsureUser(ctx, "admin", "Admin1234"))
	})

	t.Run("created", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().GetByUsername(gomock.Any(), "admin").Return(nil, repository.ErrObjectNotFound)
		users.EXPECT().CreateUser(gomock.Any(), "admin", "Admin1234").Return(&repository.User{ID: 1}, nil)

		assert.NoError(t, svc.EnsureUser(ctx, "admin", "Admin1234"))
	})

	t.Run("lost creation race", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().GetByUsername(gomock.Any(), "admin").Return(nil, repository.ErrObjectNotFound)
		users.EXPECT().CreateUser(gomock.Any(), "admin", "Admin1234").Return(nil, repository.ErrAlreadyExists)

		assert.NoError(t, svc.EnsureUser(ctx, "admin", "Admin1234"))
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc, users := newTestService(t)
		users.EXPECT().GetByUsername(gomock.Any(), "admin").Return(nil, errors.New("down"))

		assert.Error(t, svc.EnsureUser(ctx, "admin", "Admin1234"))
	})
}
