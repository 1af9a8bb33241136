package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/villain-cms/villain/pkg/core/health"
)

// HealthServer implements grpc.health.v1 on top of a health.Registry. The
// empty service name reports the overall status, any other name reports a
// single registered check.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	registry *health.Registry
}

// NewHealthServer creates a health service for registry.
func NewHealthServer(registry *health.Registry) *HealthServer {
	return &HealthServer{registry: registry}
}

// Check runs the registry checks.
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	report := h.registry.Check(ctx)

	service := req.GetService()
	if service == "" {
		return &grpc_health_v1.HealthCheckResponse{Status: servingStatus(report.Status)}, nil
	}
	check, ok := report.Find(service)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", service)
	}
	return &grpc_health_v1.HealthCheckResponse{Status: servingStatus(check.Status)}, nil
}

// Degraded still serves traffic.
func servingStatus(s health.Status) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch s {
	case health.StatusHealthy, health.StatusDegraded:
		return grpc_health_v1.HealthCheckResponse_SERVING
	case health.StatusUnhealthy:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	default:
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
}
