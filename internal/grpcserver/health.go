package grpcserver

import (
	"net"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ReconcilerService = "clictopay.Reconciler"

// HealthServer exposes the standard gRPC health service for the reconcile
// worker. Both the overall ("") and the reconciler service status are kept
// in step.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewHealthServer() *HealthServer {
	gs := grpc.NewServer(
		grpc.UnaryInterceptor(gp.UnaryServerInterceptor),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// Default gRPC metrics
	gp.Register(gs)

	s := &HealthServer{grpc: gs, health: hs}
	s.SetServing(false)
	return s
}

func (s *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ReconcilerService, status)
}

func (s *HealthServer) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *HealthServer) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
