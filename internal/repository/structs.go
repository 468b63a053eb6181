package repository

import (
	"time"
)

type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type Book struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Author        string    `db:"author" json:"author"`
	Genre         string    `db:"genre" json:"genre"`
	PublishedYear int       `db:"published_year" json:"published_year"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// BookStats is a catalog entry with the number of loans ever recorded for it.
type BookStats struct {
	Book
	BorrowCount int64 `db:"borrow_count" json:"borrow_count"`
}

// BookFilter narrows catalog listings. An empty Search lists everything.
type BookFilter struct {
	Search string
	Limit  uint
	Offset uint
}

// Loan is one row of the loan ledger. ReturnedAt is nil while the book is on loan.
type Loan struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BookID     int64      `db:"book_id" json:"book_id"`
	BorrowedAt time.Time  `db:"borrowed_at" json:"borrowed_at"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

func (l Loan) Open() bool {
	return l.ReturnedAt == nil
}

// LoanView joins a loan with the catalog fields shown in borrowing history.
type LoanView struct {
	LoanID        int64      `db:"loan_id" json:"loan_id"`
	BookID        int64      `db:"book_id" json:"book_id"`
	Title         string     `db:"title" json:"title"`
	Author        string     `db:"author" json:"author"`
	Genre         string     `db:"genre" json:"genre"`
	PublishedYear int        `db:"published_year" json:"published_year"`
	BorrowedAt    time.Time  `db:"borrowed_at" json:"borrowed_at"`
	ReturnedAt    *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

type Note struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	BookID     int64     `db:"book_id"`
	BookTitle  string    `db:"book_title"`
	Ciphertext []byte    `db:"ciphertext"`
	CreatedAt  time.Time `db:"created_at"`
}
