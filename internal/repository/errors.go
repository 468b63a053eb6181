package repository

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrObjectNotFound  = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrReferenced      = errors.New("still referenced")
	ErrInvalidPassword = errors.New("invalid password")

	// ErrBookNotFound is returned when a referenced book is absent from the catalog.
	ErrBookNotFound = errors.New("book not found")
	// ErrConflict is returned when a borrow names books that are already on loan.
	ErrConflict = errors.New("books already borrowed")
	// ErrLoanNotFound is returned when a return names books the requester has no open loan for.
	ErrLoanNotFound = errors.New("no active borrowings found for these books")
)

// ConflictError lists the requested books that already have an open loan.
type ConflictError struct {
	BookIDs []int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("books with ids %s are already borrowed", joinIDs(e.BookIDs))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// LoanNotFoundError lists the requested books without an open loan owned by the requester.
type LoanNotFoundError struct {
	BookIDs []int64
}

func (e *LoanNotFoundError) Error() string {
	return fmt.Sprintf("no active borrowings found for books with ids %s", joinIDs(e.BookIDs))
}

func (e *LoanNotFoundError) Is(target error) bool {
	return target == ErrLoanNotFound
}

// BookNotFoundError lists the referenced books that do not exist.
type BookNotFoundError struct {
	BookIDs []int64
}

func (e *BookNotFoundError) Error() string {
	if len(e.BookIDs) == 1 {
		return fmt.Sprintf("book with id %d not found", e.BookIDs[0])
	}
	return fmt.Sprintf("books with ids %s not found", joinIDs(e.BookIDs))
}

func (e *BookNotFoundError) Is(target error) bool {
	return target == ErrBookNotFound
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
