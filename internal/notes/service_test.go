package notes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_borrowing "gitlab.ozon.dev/pupkingeorgij/library/internal/borrowing/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/library/internal/storage/mocks"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

func newTestService(t *testing.T) (*Service, *mock_storage.MockNoteRepository, *mock_borrowing.MockCatalogLookup) {
	ctrl := gomock.NewController(t)
	repo := mock_storage.NewMockNoteRepository(ctrl)
	books := mock_borrowing.NewMockCatalogLookup(ctrl)
	c, err := NewCipher("test-secret")
	require.NoError(t, err)
	return NewService(repo, books, c, zap.NewNop()), repo, books
}

func TestService_AddAndRead(t *testing.T) {
	ctx := context.Background()
	svc, repo, books := newTestService(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var stored []byte
	books.EXPECT().Exists(gomock.Any(), int64(5)).Return(true, nil).Times(2)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *repository.Note) error {
		stored = n.Ciphertext
		n.ID, n.CreatedAt = 1, created
		return nil
	})

	note, err := svc.Add(ctx, 3, 5, "  loved it ")
	require.NoError(t, err)
	assert.Equal(t, "loved it", note.Note)
	assert.NotContains(t, string(stored), "loved it")

	repo.EXPECT().ListByBook(gomock.Any(), int64(3), int64(5)).Return([]*repository.Note{
		{ID: 1, UserID: 3, BookID: 5, BookTitle: "Dune", Ciphertext: stored, CreatedAt: created},
	}, nil)

	got, err := svc.ForBook(ctx, 3, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "loved it", got[0].Note)
	assert.Equal(t, "Dune", got[0].BookTitle)
}

func TestService_Add_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("blank note", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Add(ctx, 1, 5, "   ")
		assert.ErrorIs(t, err, validation.ErrInvalid)
	})

	t.Run("missing book", func(t *testing.T) {
		svc, _, books := newTestService(t)
		books.EXPECT().Exists(gomock.Any(), int64(5)).Return(false, nil)

		_, err := svc.Add(ctx, 1, 5, "text")
		assert.ErrorIs(t, err, repository.ErrBookNotFound)
	})
}

func TestService_All_Undecryptable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.EXPECT().ListByUser(gomock.Any(), int64(1)).Return([]*repository.Note{{ID: 9, Ciphertext: []byte("garbage-garbage-garbage-garbage")}}, nil)

	_, err := svc.All(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCorrupted)
}
