package postgresql

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/storage"
)

const (
	lockBooksQuery = `
        SELECT id FROM books
        WHERE id = ANY($1)
        ORDER BY id
        FOR NO KEY UPDATE
    `
	openLoansQuery = `
        SELECT id, user_id, book_id, borrowed_at, returned_at
        FROM loans
        WHERE book_id = ANY($1) AND returned_at IS NULL
        ORDER BY book_id
    `
	insertLoansQuery = `
        INSERT INTO loans (user_id, book_id, borrowed_at)
        SELECT $1::bigint, t.book_id, $3::timestamptz
        FROM unnest($2::bigint[]) AS t(book_id)
        RETURNING id, user_id, book_id, borrowed_at, returned_at
    `
	userOpenLoansQuery = `
        SELECT id, user_id, book_id, borrowed_at, returned_at
        FROM loans
        WHERE user_id = $1 AND book_id = ANY($2) AND returned_at IS NULL
        ORDER BY book_id
        FOR UPDATE
    `
	closeLoansQuery = `
        UPDATE loans
        SET returned_at = GREATEST($2::timestamptz, borrowed_at)
        WHERE id = ANY($1) AND returned_at IS NULL
        RETURNING id, user_id, book_id, borrowed_at, returned_at
    `
	userLoansQuery = `
        SELECT l.id AS loan_id, b.id AS book_id, b.title, b.author, b.genre, b.published_year,
               l.borrowed_at, l.returned_at
        FROM loans l
        JOIN books b ON b.id = l.book_id
        WHERE l.user_id = $1
    `
)

// LoanRepo owns the borrow and return transactions over the loan ledger.
// Every batch runs in one READ COMMITTED transaction; exclusivity comes from
// row locks on the catalog entries and the partial unique index on open loans.
type LoanRepo struct {
	db      db.DB
	outbox  storage.OutboxWriter
	topic   string
	timeNow func() time.Time
}

func NewLoanRepo(db db.DB, outbox storage.OutboxWriter, topic string) *LoanRepo {
	return &LoanRepo{
		db:      db,
		outbox:  outbox,
		topic:   topic,
		timeNow: time.Now,
	}
}

func (r *LoanRepo) Borrow(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error) {
	ids := sortedIDs(bookIDs)

	tx, err := r.db.BeginTx(ctx, db.ReadCommitted)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	var found []int64
	if err := tx.Select(ctx, &found, lockBooksQuery, ids); err != nil {
		return nil, fmt.Errorf("failed to lock books: %w", err)
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return nil, &repository.BookNotFoundError{BookIDs: missing}
	}

	var open []*repository.Loan
	if err := tx.Select(ctx, &open, openLoansQuery, ids); err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}
	if len(open) > 0 {
		return nil, &repository.ConflictError{BookIDs: loanBookIDs(open)}
	}

	now := r.timeNow().UTC()
	var loans []*repository.Loan
	if err := tx.Select(ctx, &loans, insertLoansQuery, userID, ids, now); err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback(ctx)
			return nil, r.conflictAfterRace(ctx, ids)
		}
		return nil, fmt.Errorf("failed to insert loans: %w", err)
	}
	sortLoans(loans)

	if err := r.enqueueTx(ctx, tx, events.LoanBorrowed, userID, loans, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return loans, nil
}

func (r *LoanRepo) Return(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error) {
	ids := sortedIDs(bookIDs)

	tx, err := r.db.BeginTx(ctx, db.ReadCommitted)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	var open []*repository.Loan
	if err := tx.Select(ctx, &open, userOpenLoansQuery, userID, ids); err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}
	if missing := missingIDs(ids, loanBookIDs(open)); len(missing) > 0 {
		return nil, &repository.LoanNotFoundError{BookIDs: missing}
	}

	loanIDs := make([]int64, len(open))
	for i, loan := range open {
		loanIDs[i] = loan.ID
	}

	now := r.timeNow().UTC()
	var closed []*repository.Loan
	if err := tx.Select(ctx, &closed, closeLoansQuery, loanIDs, now); err != nil {
		return nil, fmt.Errorf("failed to close loans: %w", err)
	}
	if len(closed) != len(open) {
		return nil, fmt.Errorf("closed %d of %d loans", len(closed), len(open))
	}
	sortLoans(closed)

	if err := r.enqueueTx(ctx, tx, events.LoanReturned, userID, closed, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return closed, nil
}

func (r *LoanRepo) ListByUser(ctx context.Context, userID int64, activeOnly bool) ([]*repository.LoanView, error) {
	query := userLoansQuery
	if activeOnly {
		query += " AND l.returned_at IS NULL"
	}
	query += " ORDER BY l.borrowed_at DESC, l.id DESC"

	var loans []*repository.LoanView
	if err := r.db.Select(ctx, &loans, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get user loans: %w", err)
	}
	return loans, nil
}

// conflictAfterRace reports which books won the race against this batch once
// the unique index has rejected the insert. If the winner has already
// returned its books, every requested id is reported.
func (r *LoanRepo) conflictAfterRace(ctx context.Context, ids []int64) error {
	var open []*repository.Loan
	if err := r.db.Select(ctx, &open, openLoansQuery, ids); err != nil {
		return fmt.Errorf("failed to resolve conflicting books after unique violation: %w", err)
	}
	if len(open) == 0 {
		return &repository.ConflictError{BookIDs: ids}
	}
	return &repository.ConflictError{BookIDs: loanBookIDs(open)}
}

func (r *LoanRepo) enqueueTx(ctx context.Context, tx db.Tx, eventType events.LoanEventType, userID int64, loans []*repository.Loan, at time.Time) error {
	event := events.NewLoanEvent(eventType, userID, loans, at)
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	task := &repository.OutboxTask{
		ID:      event.EventID,
		Payload: payload,
		Topic:   r.topic,
	}
	if err := r.outbox.CreateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", eventType, err)
	}
	return nil
}

func sortedIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// missingIDs returns the ids of want absent from got, preserving want's order.
func missingIDs(want, got []int64) []int64 {
	seen := make(map[int64]struct{}, len(got))
	for _, id := range got {
		seen[id] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func loanBookIDs(loans []*repository.Loan) []int64 {
	ids := make([]int64, len(loans))
	for i, loan := range loans {
		ids[i] = loan.BookID
	}
	return ids
}

func sortLoans(loans []*repository.Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].BookID < loans[j].BookID })
}
