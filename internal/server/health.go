package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-checked service name for the catalog store.
// The empty name reports the same status for the server as a whole.
const ServiceName = "catalog.SensitivityCatalog"

const pingTimeout = 3 * time.Second

// Pinger is implemented by store.SensitivityCatalogStore.
type Pinger interface {
	Ping(ctx context.Context) error
	Target() string
}

// HealthServer implements grpc.health.v1.Health, reporting SERVING while the
// catalog database is reachable.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	store  Pinger
	logger *zap.Logger
}

// NewHealthServer creates a HealthServer backed by the given store.
func NewHealthServer(store Pinger, logger *zap.Logger) *HealthServer {
	return &HealthServer{store: store, logger: logger}
}

// Check implements the Health.Check RPC.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed",
			zap.String("target", s.store.Target()),
			zap.Error(err),
		)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
