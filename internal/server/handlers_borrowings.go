package server

import (
	"net/http"
)

type bookIDsRequest struct {
	BookIDs []int64 `json:"bookIds"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req bookIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Please provide valid book IDs")
		return
	}

	books, err := s.borrowing.RequestBorrow(r.Context(), userID, req.BookIDs)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Books borrowed successfully",
		"books":   books,
	})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req bookIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Please provide valid book IDs")
		return
	}

	loans, err := s.borrowing.RequestReturn(r.Context(), userID, req.BookIDs)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Books returned successfully",
		"loans":   loans,
	})
}

func (s *Server) handleMyBorrowings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	loans, err := s.borrowing.MyBorrowings(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"borrowings": loans})
}

func (s *Server) handleActiveBorrowings(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	loans, err := s.borrowing.ActiveBorrowings(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"borrowings": loans})
}
