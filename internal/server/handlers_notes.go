package server

import (
	"net/http"
)

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	bookID, ok := pathID(r, "bookId")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	note, err := s.notes.Add(r.Context(), userID, bookID, req.Note)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Note created successfully",
		"noteId":  note.ID,
	})
}

func (s *Server) handleBookNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	bookID, ok := pathID(r, "bookId")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	list, err := s.notes.ForBook(r.Context(), userID, bookID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notes": list})
}

func (s *Server) handleMyNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	list, err := s.notes.All(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notes": list})
}
