//go:generate mockgen -source ./server.go -destination=./mocks/mock_server.go -package=mock_server
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/catalog"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/notes"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type BorrowingService interface {
	RequestBorrow(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Book, error)
	RequestReturn(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error)
	MyBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error)
	ActiveBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error)
}

type CatalogService interface {
	Create(ctx context.Context, in catalog.BookInput) (*repository.Book, error)
	Update(ctx context.Context, id int64, in catalog.BookInput) (*repository.Book, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*repository.Book, error)
	List(ctx context.Context, search string, limit, offset uint) ([]*repository.Book, error)
	MostBorrowed(ctx context.Context, limit int) ([]*repository.BookStats, error)
}

type AuthService interface {
	Register(ctx context.Context, username, password string) (*repository.User, error)
	Login(ctx context.Context, username, password string) (string, *repository.User, error)
	VerifyToken(token string) (int64, error)
}

type NotesService interface {
	Add(ctx context.Context, userID, bookID int64, text string) (*notes.Note, error)
	ForBook(ctx context.Context, userID, bookID int64) ([]*notes.Note, error)
	All(ctx context.Context, userID int64) ([]*notes.Note, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Borrowing BorrowingService
	Catalog   CatalogService
	Auth      AuthService
	Notes     NotesService
	DB        Pinger
	Audit     *AuditManager
	Log       *zap.Logger
}

type Server struct {
	borrowing    BorrowingService
	catalog      CatalogService
	auth         AuthService
	notes        NotesService
	db           Pinger
	log          *zap.Logger
	server       *http.Server
	AuditManager *AuditManager
}

func New(deps Deps) *Server {
	return &Server{
		borrowing:    deps.Borrowing,
		catalog:      deps.Catalog,
		auth:         deps.Auth,
		notes:        deps.Notes,
		db:           deps.DB,
		log:          deps.Log,
		AuditManager: deps.Audit,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// In-flight requests are still audited while Shutdown drains them.
	if s.AuditManager != nil {
		s.AuditManager.Start(context.WithoutCancel(ctx))
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", zap.String("port", port))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	if s.AuditManager != nil {
		s.AuditManager.Shutdown(ctx)
	}
	s.log.Info("http server shutdown completed")
	return nil
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	authR := api.PathPrefix("/auth").Subrouter()
	authR.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	authR.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	books := api.PathPrefix("/books").Subrouter()
	books.HandleFunc("", s.handleListBooks).Methods(http.MethodGet)
	books.HandleFunc("", s.handleCreateBook).Methods(http.MethodPost)
	books.HandleFunc("/most-borrowed", s.handleMostBorrowed).Methods(http.MethodGet)
	books.HandleFunc("/{id:[0-9]+}", s.handleGetBook).Methods(http.MethodGet)
	books.HandleFunc("/{id:[0-9]+}", s.handleUpdateBook).Methods(http.MethodPut)
	books.HandleFunc("/{id:[0-9]+}", s.handleDeleteBook).Methods(http.MethodDelete)

	borrowings := api.PathPrefix("/borrowings").Subrouter()
	borrowings.Use(s.authMiddleware, s.auditLogMiddleware)
	borrowings.HandleFunc("/borrow", s.handleBorrow).Methods(http.MethodPost).Name("borrow")
	borrowings.HandleFunc("/return", s.handleReturn).Methods(http.MethodPost).Name("return")
	borrowings.HandleFunc("/my-borrowings", s.handleMyBorrowings).Methods(http.MethodGet).Name("myBorrowings")
	borrowings.HandleFunc("/active-borrowings", s.handleActiveBorrowings).Methods(http.MethodGet).Name("activeBorrowings")

	notesR := api.PathPrefix("/notes").Subrouter()
	notesR.Use(s.authMiddleware, s.auditLogMiddleware)
	notesR.HandleFunc("/books/{bookId:[0-9]+}/notes", s.handleAddNote).Methods(http.MethodPost).Name("addNote")
	notesR.HandleFunc("/books/{bookId:[0-9]+}/notes", s.handleBookNotes).Methods(http.MethodGet).Name("bookNotes")
	notesR.HandleFunc("/my-notes", s.handleMyNotes).Methods(http.MethodGet).Name("myNotes")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
