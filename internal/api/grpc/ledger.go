package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/service"
)

// LedgerService is the gRPC service name of the read-only ledger API.
const LedgerService = "clubledger.Ledger"

const getBalanceMethod = "/" + LedgerService + "/GetBalance"

// LedgerServer answers balance lookups for the caller resolved by the auth
// interceptor. Messages are well-known wrapper types: the request carries the
// child id, the response the balance in sessions.
type LedgerServer interface {
	GetBalance(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

type LedgerHandler struct {
	ledgerSvc service.LedgerService
}

func NewLedgerHandler(ledgerSvc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

func (h *LedgerHandler) GetBalance(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	actor, err := GetActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "child id is required")
	}
	balance, err := h.ledgerSvc.GetBalance(ctx, actor, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(balance)), nil
}

// toStatus maps the domain error kinds onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrTransientStore):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func getBalanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBalanceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).GetBalance(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ledgerServiceDesc is registered by hand; there is no generated stub.
var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerService,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: getBalanceHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}
