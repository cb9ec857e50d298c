package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"clubledger-backend/internal/api/grpc/interceptor"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/security"
	"clubledger-backend/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProbe keeps the gRPC health status in step with the store.
type HealthProbe struct {
	server   *health.Server
	store    Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewHealthProbe(server *health.Server, store Pinger, interval time.Duration) *HealthProbe {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthProbe{server: server, store: store, interval: interval, timeout: 2 * time.Second}
}

// Check pings the store once and publishes the result.
func (p *HealthProbe) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := p.store.Ping(ctx); err != nil {
		logger.Warn("Store health check failed", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.server.SetServingStatus("", st)
	p.server.SetServingStatus(LedgerService, st)
	return st
}

// Run checks on every interval until ctx is done, then reports NOT_SERVING.
func (p *HealthProbe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			p.server.Shutdown()
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// NewServer builds the gRPC server with the ledger, health and reflection
// services registered.
func NewServer(tm security.TokenManager, ledgerSvc service.LedgerService, store Pinger, probeInterval time.Duration) (*grpc.Server, *HealthProbe) {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.NewAuthInterceptor(tm).Unary()),
	)

	RegisterLedgerServer(s, NewLedgerHandler(ledgerSvc))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)

	return s, NewHealthProbe(hs, store, probeInterval)
}
