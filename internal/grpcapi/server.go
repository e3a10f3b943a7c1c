// Package grpcapi serves the standard gRPC health protocol for the gate so
// load balancers and orchestrators can probe it without touching the HTTP
// access endpoint.
package grpcapi

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/stuvusIT/entman/internal/entman/service"
)

// ServiceName is the name the gate's status is published under, in
// addition to the overall "" service.
const ServiceName = "entman.v1.AccessGate"

// Probe reports whether the gate can currently serve requests.
type Probe func(ctx context.Context) error

// HistoryProbe checks that the history store is reachable.
func HistoryProbe(h *service.HistoryService) Probe {
	return h.Ping
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	probe      Probe
	logger     *zap.Logger
}

func NewServer(probe Probe, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	s := &Server{grpcServer: grpcServer, health: hs, probe: probe, logger: logger}
	s.setServing(true)
	return s
}

func (s *Server) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Check runs the probe once and publishes the result.
func (s *Server) Check(ctx context.Context) {
	if s.probe == nil {
		return
	}
	err := s.probe(ctx)
	if err != nil {
		s.logger.Warn("health probe failed", zap.Error(err))
	}
	s.setServing(err == nil)
}

// Watch re-runs the probe every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			s.Check(pctx)
			cancel()
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop marks the gate NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
