package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "viralforge.affiliate.v1.AffiliateLedgerInternalService"

type AffiliateLedgerInternalService interface {
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAttribution(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type AffiliateLedgerServer struct {
	grpc_health_v1.UnimplementedHealthServer
	service *application.Service
}

func NewAffiliateLedgerServer(service *application.Service) *AffiliateLedgerServer {
	return &AffiliateLedgerServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc *AffiliateLedgerServer) {
	grpc_health_v1.RegisterHealthServer(server, svc)
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AffiliateLedgerInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetBalance", Handler: unaryHandler("GetBalance", svc.GetBalance)},
			{MethodName: "ResolveAttribution", Handler: unaryHandler("ResolveAttribution", svc.ResolveAttribution)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "contracts/proto/affiliate/v1/affiliate_ledger_internal.proto",
	}, svc)
}

func (s *AffiliateLedgerServer) Check(context.Context, *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *AffiliateLedgerServer) Watch(_ *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return stream.Send(&grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING})
}

func (s *AffiliateLedgerServer) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	affiliateID := stringField(req, "affiliate_id")
	if affiliateID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing affiliate_id")
	}
	balance, err := s.service.Ledger.BalanceOf(ctx, affiliateID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"affiliate_id":   balance.AffiliateID,
		"available":      balance.Available.StringFixed(domain.MoneyScale),
		"total_earned":   balance.TotalEarned.StringFixed(domain.MoneyScale),
		"pending_earned": balance.PendingEarned.StringFixed(domain.MoneyScale),
		"total_debited":  balance.TotalDebited.StringFixed(domain.MoneyScale),
		"reserved":       balance.Reserved.StringFixed(domain.MoneyScale),
		"currency":       balance.Currency,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// ResolveAttribution runs the resolver in signup mode: it may record a first
// referral for the user but never locks one in.
func (s *AffiliateLedgerServer) ResolveAttribution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(req, "user_id")
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing user_id")
	}
	attr, err := s.service.Resolver.Resolve(ctx, application.ResolveInput{
		UserID:        userID,
		CandidateCode: stringField(req, "referral_code"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"attributed":   attr.Found(),
		"affiliate_id": attr.AffiliateID,
		"locked":       attr.Locked,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	v := req.GetFields()[name]
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "resource not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
