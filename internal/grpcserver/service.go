package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

const ServiceName = "library.v1.BorrowingService"

type BorrowRequest struct {
	BookIDs []int64 `json:"bookIds"`
}

type BorrowResponse struct {
	Books []*repository.Book `json:"books"`
}

type ReturnRequest struct {
	BookIDs []int64 `json:"bookIds"`
}

type ReturnResponse struct {
	Loans []*repository.Loan `json:"loans"`
}

type ListLoansRequest struct {
	ActiveOnly bool `json:"activeOnly"`
}

type ListLoansResponse struct {
	Loans []*repository.LoanView `json:"loans"`
}

// BorrowingServer is the server API of library.v1.BorrowingService.
type BorrowingServer interface {
	Borrow(ctx context.Context, req *BorrowRequest) (*BorrowResponse, error)
	Return(ctx context.Context, req *ReturnRequest) (*ReturnResponse, error)
	ListLoans(ctx context.Context, req *ListLoansRequest) (*ListLoansResponse, error)
}

var borrowingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BorrowingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Borrow", Handler: borrowHandler},
		{MethodName: "Return", Handler: returnHandler},
		{MethodName: "ListLoans", Handler: listLoansHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "library/v1/borrowing",
}

func RegisterBorrowingServer(r grpc.ServiceRegistrar, srv BorrowingServer) {
	r.RegisterService(&borrowingServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func borrowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BorrowRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BorrowingServer).Borrow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Borrow")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BorrowingServer).Borrow(ctx, req.(*BorrowRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func returnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReturnRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BorrowingServer).Return(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Return")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BorrowingServer).Return(ctx, req.(*ReturnRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listLoansHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListLoansRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BorrowingServer).ListLoans(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ListLoans")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BorrowingServer).ListLoans(ctx, req.(*ListLoansRequest))
	}
	return interceptor(ctx, in, info, handler)
}
