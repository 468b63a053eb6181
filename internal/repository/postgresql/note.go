package postgresql

import (
	"context"
	"fmt"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

const (
	userNotesQuery = `
        SELECT n.id, n.user_id, n.book_id, b.title AS book_title, n.ciphertext, n.created_at
        FROM user_notes n
        JOIN books b ON b.id = n.book_id
        WHERE n.user_id = $1`
	notesOrder = " ORDER BY n.created_at DESC, n.id DESC"
)

type NoteRepo struct {
	db db.DB
}

func NewNoteRepo(db db.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func (r *NoteRepo) Create(ctx context.Context, note *repository.Note) error {
	err := r.db.Get(ctx, note, `
        INSERT INTO user_notes (user_id, book_id, ciphertext)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `, note.UserID, note.BookID, note.Ciphertext)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &repository.BookNotFoundError{BookIDs: []int64{note.BookID}}
		}
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *NoteRepo) ListByBook(ctx context.Context, userID, bookID int64) ([]*repository.Note, error) {
	var notes []*repository.Note
	if err := r.db.Select(ctx, &notes, userNotesQuery+" AND n.book_id = $2"+notesOrder, userID, bookID); err != nil {
		return nil, fmt.Errorf("failed to get book notes: %w", err)
	}
	return notes, nil
}

func (r *NoteRepo) ListByUser(ctx context.Context, userID int64) ([]*repository.Note, error) {
	var notes []*repository.Note
	if err := r.db.Select(ctx, &notes, userNotesQuery+notesOrder, userID); err != nil {
		return nil, fmt.Errorf("failed to get user notes: %w", err)
	}
	return notes, nil
}
