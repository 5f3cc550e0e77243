package ops

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"jobmate/jobsync/internal/logger"
)

// ServiceName is the grpc.health.v1 service jobsync reports on, next to the
// overall "" service.
const ServiceName = "jobsync"

// GRPCServer exposes grpc.health.v1. The reported status follows the
// database: NOT_SERVING while pings fail.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	db     Pinger
	log    *logger.Logger
}

// NewGRPCServer builds the server. Nothing listens until Serve.
func NewGRPCServer(db Pinger, log *logger.Logger) *GRPCServer {
	log = log.With("component", "grpc")
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(recoverInterceptor(log)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &GRPCServer{srv: srv, health: hs, db: db, log: log}
}

// Serve accepts on lis until ctx is cancelled, then stops gracefully.
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		g.log.Info("shutting down gRPC server")
		g.health.Shutdown()
		g.srv.GracefulStop()
	}()
	g.log.Info("gRPC health listening", "addr", lis.Addr().String())
	if err := g.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "gRPC server error")
	}
	return nil
}

// Watch pings the database every interval and updates the health status
// until ctx is cancelled.
func (g *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		g.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Check pings once and records the result.
func (g *GRPCServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := g.db.Ping(ctx); err != nil {
		g.log.Warn("database ping failed, reporting NOT_SERVING", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus(ServiceName, st)
	return st
}

// recoverInterceptor turns handler panics into codes.Internal.
func recoverInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("gRPC handler panicked", "method", info.FullMethod, "panic", rec)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
