package grpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "clubledger-backend/internal/api/grpc"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository/memory"
	"clubledger-backend/internal/security"
	"clubledger-backend/internal/service"
)

const getBalance = "/clubledger.Ledger/GetBalance"

type ledgerEnv struct {
	conn    *grpc.ClientConn
	tokens  security.TokenManager
	childID string
	probe   *api.HealthProbe
}

func startLedgerServer(t *testing.T) *ledgerEnv {
	t.Helper()

	store := memory.NewStore()
	store.AddUser(domain.User{ID: "parent-1", Email: "anna@example.com", FirstName: "Anna", Role: domain.RoleParent})
	store.AddUser(domain.User{ID: "parent-2", Email: "oleg@example.com", FirstName: "Oleg", Role: domain.RoleParent})
	child := store.AddChild(domain.Child{ParentID: "parent-1", FirstName: "Misha", Balance: 4})

	tm := security.NewTokenManager("test-secret")
	srv, probe := api.NewServer(tm, service.NewLedgerService(store), store, time.Minute)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &ledgerEnv{conn: conn, tokens: tm, childID: child.ID, probe: probe}
}

func (e *ledgerEnv) withToken(t *testing.T, actor domain.Actor) context.Context {
	t.Helper()
	token, err := e.tokens.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestLedgerServer_GetBalance(t *testing.T) {
	env := startLedgerServer(t)

	t.Run("OwnChild", func(t *testing.T) {
		out := new(wrapperspb.Int64Value)
		ctx := env.withToken(t, domain.Actor{UserID: "parent-1", Role: domain.RoleParent})
		err := env.conn.Invoke(ctx, getBalance, wrapperspb.String(env.childID), out)
		require.NoError(t, err)
		assert.Equal(t, int64(4), out.GetValue())
	})

	t.Run("ForgedIdentityIgnored", func(t *testing.T) {
		// the token says parent-2; the smuggled user-id must not win
		ctx := env.withToken(t, domain.Actor{UserID: "parent-2", Role: domain.RoleParent})
		ctx = metadata.AppendToOutgoingContext(ctx, "user-id", "parent-1")
		err := env.conn.Invoke(ctx, getBalance, wrapperspb.String(env.childID), new(wrapperspb.Int64Value))
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("UnknownChild", func(t *testing.T) {
		ctx := env.withToken(t, domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin})
		err := env.conn.Invoke(ctx, getBalance, wrapperspb.String("missing"), new(wrapperspb.Int64Value))
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("EmptyChildID", func(t *testing.T) {
		ctx := env.withToken(t, domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin})
		err := env.conn.Invoke(ctx, getBalance, wrapperspb.String(""), new(wrapperspb.Int64Value))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		err := env.conn.Invoke(context.Background(), getBalance, wrapperspb.String(env.childID), new(wrapperspb.Int64Value))
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestLedgerServer_HealthReportsRegisteredService(t *testing.T) {
	env := startLedgerServer(t)
	env.probe.Check(context.Background())

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: api.LedgerService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
