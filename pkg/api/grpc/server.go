package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reflecting the engine's run state.
const ServiceName = "dago.direct.Engine"

// StateSource reports the engine's run state.
type StateSource interface {
	State() domain.RunState
}

// Server represents the gRPC API server
type Server struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	engine   StateSource
	interval time.Duration
	logger   *zap.Logger
}

// Config holds gRPC server configuration
type Config struct {
	Port int
	// Listener overrides Port when set.
	Listener net.Listener
	Engine   StateSource
	// PollInterval is how often the engine state is mirrored into the health service.
	PollInterval time.Duration
	Logger       *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(cfg *Config) (*Server, error) {
	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return nil, fmt.Errorf("failed to create listener: %w", err)
		}
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	s := &Server{
		server:   grpcServer,
		listener: listener,
		health:   healthServer,
		engine:   cfg.Engine,
		interval: interval,
		logger:   cfg.Logger,
	}
	s.SetRunState(domain.RunStateIdle)

	return s, nil
}

// SetRunState mirrors a run state into the health service: Failed is
// NOT_SERVING, every other state is SERVING.
func (s *Server) SetRunState(state domain.RunState) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == domain.RunStateFailed {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Track keeps the health service in sync with the engine until ctx ends.
func (s *Server) Track(ctx context.Context) {
	if s.engine == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := domain.RunState("")
	for {
		if state := s.engine.State(); state != last {
			s.SetRunState(state)
			s.logger.Debug("health status updated", zap.String("state", string(state)))
			last = state
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start starts the gRPC server
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("addr", s.listener.Addr().String()))

	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.logger.Info("gRPC server shut down complete")
	return nil
}
