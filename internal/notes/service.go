package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/storage"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

type BookChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Note is a decrypted note as returned to its owner.
type Note struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"book_id"`
	BookTitle string    `json:"book_title,omitempty"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	notes  storage.NoteRepository
	books  BookChecker
	cipher *Cipher
	log    *zap.Logger
}

func NewService(notes storage.NoteRepository, books BookChecker, cipher *Cipher, log *zap.Logger) *Service {
	return &Service{notes: notes, books: books, cipher: cipher, log: log}
}

func (s *Service) Add(ctx context.Context, userID, bookID int64, text string) (*Note, error) {
	text = strings.TrimSpace(text)
	if err := validation.Var("Note content", text, "required"); err != nil {
		return nil, err
	}
	if err := s.checkBook(ctx, bookID); err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Seal(userID, text)
	if err != nil {
		return nil, err
	}

	row := &repository.Note{UserID: userID, BookID: bookID, Ciphertext: sealed}
	if err := s.notes.Create(ctx, row); err != nil {
		return nil, err
	}

	s.log.Debug("note created", zap.Int64("user_id", userID), zap.Int64("book_id", bookID))
	return &Note{ID: row.ID, BookID: bookID, Note: text, CreatedAt: row.CreatedAt}, nil
}

func (s *Service) ForBook(ctx context.Context, userID, bookID int64) ([]*Note, error) {
	if err := s.checkBook(ctx, bookID); err != nil {
		return nil, err
	}
	rows, err := s.notes.ListByBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	return s.open(userID, rows)
}

func (s *Service) All(ctx context.Context, userID int64) ([]*Note, error) {
	rows, err := s.notes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.open(userID, rows)
}

func (s *Service) checkBook(ctx context.Context, bookID int64) error {
	ok, err := s.books.Exists(ctx, bookID)
	if err != nil {
		return fmt.Errorf("failed to check book %d: %w", bookID, err)
	}
	if !ok {
		return &repository.BookNotFoundError{BookIDs: []int64{bookID}}
	}
	return nil
}

func (s *Service) open(userID int64, rows []*repository.Note) ([]*Note, error) {
	out := make([]*Note, 0, len(rows))
	for _, r := range rows {
		text, err := s.cipher.Open(userID, r.Ciphertext)
		if err != nil {
			s.log.Error("failed to decrypt note", zap.Int64("note_id", r.ID), zap.Error(err))
			return nil, errors.Join(fmt.Errorf("note %d", r.ID), err)
		}
		out = append(out, &Note{
			ID:        r.ID,
			BookID:    r.BookID,
			BookTitle: r.BookTitle,
			Note:      text,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
