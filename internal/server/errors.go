package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/borrowing"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/catalog"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/validation"
)

type errorBody struct {
	Error   string  `json:"error"`
	BookIDs []int64 `json:"book_ids,omitempty"`
}

// respondServiceError maps domain errors to status codes. Anything
// unrecognised is logged and reported as a bare 500.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict *repository.ConflictError
		noLoan   *repository.LoanNotFoundError
		noBook   *repository.BookNotFoundError
	)

	switch {
	case errors.As(err, &conflict):
		respondJSON(w, http.StatusConflict, errorBody{Error: conflict.Error(), BookIDs: conflict.BookIDs})
	case errors.As(err, &noLoan):
		respondJSON(w, http.StatusNotFound, errorBody{Error: noLoan.Error(), BookIDs: noLoan.BookIDs})
	case errors.As(err, &noBook):
		respondJSON(w, http.StatusNotFound, errorBody{Error: noBook.Error(), BookIDs: noBook.BookIDs})
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, borrowing.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrBookHasLoans), errors.Is(err, auth.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
