// Package health exposes the standard gRPC health service so orchestrators can
// probe the bridge.
package health

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported alongside the overall ("") status.
const ServiceName = "bridge"

// Server wraps a grpc.Server carrying only the health service.
type Server struct {
	addr string
	log  *zap.Logger

	mu     sync.Mutex
	lis    net.Listener
	grpc   *grpc.Server
	health *health.Server
}

func New(addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{addr: addr, log: log, grpc: gs, health: hs}
}

// Start listens and serves in the background, reporting SERVING.
func (s *Server) Start(_ context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "health listen %s", s.addr)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.SetServing(true)
	go func() {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("health server stopped", zap.Error(err))
		}
	}()
	s.log.Info("health server listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop flips to NOT_SERVING and stops the server, giving in-flight checks
// until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.SetServing(false)
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	return nil
}
