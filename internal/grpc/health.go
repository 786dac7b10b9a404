package grpc

import (
	"errors"
	"net"

	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"portalsim/engine/internal/logging"
)

// SimulationService is the service name whose status follows the simulation loop.
const SimulationService = "portalsim.Simulation"

// HealthServer exposes the standard gRPC health protocol for the daemon.
type HealthServer struct {
	server *googlegrpc.Server
	health *health.Server
	logger *logging.Logger
}

// NewHealthServer registers a health service that starts out NOT_SERVING.
func NewHealthServer(logger *logging.Logger, opts ...googlegrpc.ServerOption) *HealthServer {
	if logger == nil {
		logger = logging.L()
	}
	h := &HealthServer{
		server: googlegrpc.NewServer(opts...),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetServing(false)
	return h
}

// SetServing flips both the overall status and the simulation service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(SimulationService, status)
	h.logger.Debug("health status changed", logging.String("status", status.String()))
}

// Serve blocks accepting connections on lis until Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info("grpc health listening", logging.String("address", lis.Addr().String()))
	if err := h.server.Serve(lis); err != nil && !errors.Is(err, googlegrpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
