package server

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/events"
)

const maxAuditBody = 4 << 10

// Note texts stay out of the audit trail.
var privateRoutes = map[string]bool{
	"addNote":   true,
	"bookNotes": true,
	"myNotes":   true,
}

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AuditManager == nil {
			next.ServeHTTP(w, r)
			return
		}

		entry := events.AuditEntry{
			Timestamp: time.Now().UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   routeName(r),
		}
		if userID, ok := userIDFrom(r); ok {
			entry.UserID = userID
		}
		if id, err := strconv.ParseInt(mux.Vars(r)["bookId"], 10, 64); err == nil {
			entry.BookIDs = []int64{id}
		}

		if r.Body != nil && r.Method != http.MethodGet {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))

			var req bookIDsRequest
			if err := json.Unmarshal(requestBody, &req); err == nil && len(req.BookIDs) > 0 {
				entry.BookIDs = req.BookIDs
			}
			if !privateRoutes[entry.Handler] {
				entry.Request = truncate(requestBody)
			}
		}

		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.StatusCode()
		if !privateRoutes[entry.Handler] {
			entry.Response = truncate(wrw.Body())
		}

		s.AuditManager.LogEntry(entry)
	})
}

// routeName is the route's registered name, or its path template.
func routeName(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown"
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	return "unknown"
}

func truncate(b []byte) string {
	if len(b) > maxAuditBody {
		return string(b[:maxAuditBody])
	}
	return string(b)
}
