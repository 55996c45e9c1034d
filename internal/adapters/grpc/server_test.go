package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/affiliate-ledger/internal/adapters/memory"
	"github.com/viralforge/affiliate-ledger/internal/application"
)

func newService(t *testing.T) *application.Service {
	t.Helper()
	repos := memory.NewRepositories()
	return application.NewService(application.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		EventStore:  repos.Events,
		Users:       repos.Users,
		Affiliates:  repos.Affiliates,
		Links:       repos.Links,
		Clicks:      repos.Clicks,
		Referrals:   repos.Referrals,
		Payments:    repos.Payments,
		Ledger:      repos.Ledger,
		Payouts:     repos.Payouts,
		AuditLogs:   repos.AuditLogs,
		Idempotency: repos.Idempotency,
		Outbox:      repos.Outbox,
	})
}

func dial(t *testing.T, svc *application.Service) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Register(server, NewAffiliateLedgerServer(svc))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := &structpb.Struct{}
	err = conn.Invoke(context.Background(), "/"+serviceName+"/"+method, in, out)
	return out, err
}

func TestGetBalanceAndResolveAttribution(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	aff, err := svc.ApplyAffiliate(ctx, application.Actor{SubjectID: "owner-1"}, "creator")
	require.NoError(t, err)
	_, err = svc.ReviewAffiliate(ctx, application.Actor{SubjectID: "admin-1", Role: "admin"}, aff.AffiliateID, true, "")
	require.NoError(t, err)
	_, err = svc.RegisterSignup(ctx, application.Actor{SubjectID: "user-1"}, application.SignupInput{})
	require.NoError(t, err)

	conn := dial(t, svc)

	resolved, err := call(t, conn, "ResolveAttribution", map[string]any{"user_id": "user-1", "referral_code": "creator"})
	require.NoError(t, err)
	assert.True(t, resolved.GetFields()["attributed"].GetBoolValue())
	assert.Equal(t, aff.AffiliateID, resolved.GetFields()["affiliate_id"].GetStringValue())
	assert.False(t, resolved.GetFields()["locked"].GetBoolValue())

	_, err = svc.Ingestion.Ingest(ctx, application.IngestInput{ProviderEventID: "evt-1", UserID: "user-1", Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)

	balance, err := call(t, conn, "GetBalance", map[string]any{"affiliate_id": aff.AffiliateID})
	require.NoError(t, err)
	assert.Equal(t, "4.00", balance.GetFields()["available"].GetStringValue())
	assert.Equal(t, "USD", balance.GetFields()["currency"].GetStringValue())

	_, err = call(t, conn, "GetBalance", map[string]any{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, health.GetStatus())
}
