package server

import (
	"context"
	"net"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/middleware"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AssetsServiceName is the health service name probes can ask for besides "".
const AssetsServiceName = "placement.assets.v1.AssetService"

// AdminServer is the internal gRPC endpoint for health probes. Serving
// status follows the owner store.
type AdminServer struct {
	grpc   *grpc.Server
	health *readinessHealth
	logger *zap.Logger
}

// readinessHealth refreshes serving status on every Check.
type readinessHealth struct {
	*health.Server
	ready  Pinger
	logger *zap.Logger
}

func (h *readinessHealth) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	h.refresh(ctx)
	return h.Server.Check(ctx, req)
}

func (h *readinessHealth) refresh(ctx context.Context) {
	if h.ready == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.ready.Ping(ctx); err != nil {
		h.logger.Warn("owner store not reachable", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.SetServingStatus("", status)
	h.SetServingStatus(AssetsServiceName, status)
}

func NewAdminServer(ready Pinger, logger *zap.Logger, metrics *grpcprom.ServerMetrics) *AdminServer {
	unary := []grpc.UnaryServerInterceptor{
		middleware.RecoveryInterceptor(logger),
		middleware.UnaryLoggingInterceptor(logger),
	}
	stream := []grpc.StreamServerInterceptor{
		middleware.StreamLoggingInterceptor(logger),
	}
	if metrics != nil {
		unary = append([]grpc.UnaryServerInterceptor{metrics.UnaryServerInterceptor()}, unary...)
		stream = append([]grpc.StreamServerInterceptor{metrics.StreamServerInterceptor()}, stream...)
	}

	s := grpc.NewServer(
		grpc.StatsHandler(observability.GRPCStatsHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	hs := &readinessHealth{Server: health.NewServer(), ready: ready, logger: logger}
	hs.SetServingStatus(AssetsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	if metrics != nil {
		metrics.InitializeMetrics(s)
	}

	return &AdminServer{grpc: s, health: hs, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (a *AdminServer) Serve(lis net.Listener) error {
	a.logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))
	return a.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls until ctx ends.
func (a *AdminServer) Stop(ctx context.Context) {
	a.health.Shutdown()

	done := make(chan struct{})
	go func() {
		a.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("admin gRPC graceful stop timed out, forcing")
		a.grpc.Stop()
	}
}
