package grpcserver

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/borrowing"
	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

var _ BorrowingServer = (*Server)(nil)

type Borrowing interface {
	RequestBorrow(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Book, error)
	RequestReturn(ctx context.Context, userID int64, bookIDs []int64) ([]*repository.Loan, error)
	MyBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error)
	ActiveBorrowings(ctx context.Context, userID int64) ([]*repository.LoanView, error)
}

type TokenVerifier interface {
	VerifyToken(token string) (int64, error)
}

type Server struct {
	address   string
	borrowing Borrowing
	tokens    TokenVerifier
	logger    *zap.Logger
}

func NewServer(address string, borrowing Borrowing, tokens TokenVerifier, logger *zap.Logger) *Server {
	return &Server{
		address:   address,
		borrowing: borrowing,
		tokens:    tokens,
		logger:    logger.With(zap.String("module", "grpc_server")),
	}
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, lis)
}

func (s *Server) serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.authInterceptor))
	RegisterBorrowingServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info("Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info("Starting gRPC server", zap.String("address", lis.Addr().String()))
	return srv.Serve(lis)
}

func (s *Server) Borrow(ctx context.Context, req *BorrowRequest) (*BorrowResponse, error) {
	l := s.logger.With(zap.String("rpc_method", "Borrow"), zap.Int64s("book_ids", req.BookIDs))
	l.Debug("RPC call received")

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	books, err := s.borrowing.RequestBorrow(ctx, userID, req.BookIDs)
	if err != nil {
		return nil, s.toStatus(l, err)
	}

	l.Info("Books borrowed", zap.Int64("user_id", userID))
	return &BorrowResponse{Books: books}, nil
}

func (s *Server) Return(ctx context.Context, req *ReturnRequest) (*ReturnResponse, error) {
	l := s.logger.With(zap.String("rpc_method", "Return"), zap.Int64s("book_ids", req.BookIDs))
	l.Debug("RPC call received")

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	loans, err := s.borrowing.RequestReturn(ctx, userID, req.BookIDs)
	if err != nil {
		return nil, s.toStatus(l, err)
	}

	l.Info("Books returned", zap.Int64("user_id", userID))
	return &ReturnResponse{Loans: loans}, nil
}

func (s *Server) ListLoans(ctx context.Context, req *ListLoansRequest) (*ListLoansResponse, error) {
	l := s.logger.With(zap.String("rpc_method", "ListLoans"), zap.Bool("active_only", req.ActiveOnly))
	l.Debug("RPC call received")

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	var (
		loans []*repository.LoanView
		err   error
	)
	if req.ActiveOnly {
		loans, err = s.borrowing.ActiveBorrowings(ctx, userID)
	} else {
		loans, err = s.borrowing.MyBorrowings(ctx, userID)
	}
	if err != nil {
		return nil, s.toStatus(l, err)
	}

	return &ListLoansResponse{Loans: loans}, nil
}

func (s *Server) toStatus(l *zap.Logger, err error) error {
	var (
		conflict *repository.ConflictError
		noLoan   *repository.LoanNotFoundError
		noBook   *repository.BookNotFoundError
	)

	switch {
	case errors.As(err, &conflict):
		l.Warn("Borrow conflict", zap.Int64s("conflicting", conflict.BookIDs))
		return status.Error(codes.AlreadyExists, conflict.Error())
	case errors.As(err, &noLoan):
		return status.Error(codes.NotFound, noLoan.Error())
	case errors.As(err, &noBook):
		return status.Error(codes.NotFound, noBook.Error())
	case errors.Is(err, borrowing.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		l.Error("RPC failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
