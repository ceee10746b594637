// Package handler reports bot readiness over the standard gRPC health service.
package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "rsvp-bot"

const checkTimeout = 3 * time.Second

// Pinger checks storage reachability (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the admin policy engine (e.g. *policy.Authorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server keeps the gRPC health status in line with the bot's dependencies.
type Server struct {
	pinger Pinger
	policy PolicyChecker
	health *health.Server
	logger *slog.Logger
}

// NewServer returns a Server. pinger and policy may be nil; a nil dependency is not checked.
// The status is SERVING until the first Check says otherwise.
func NewServer(pinger Pinger, policy PolicyChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{pinger: pinger, policy: policy, health: health.NewServer(), logger: logger}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Register adds the health service to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(reg, s.health)
}

// Check runs every dependency check once, publishes the result and returns it.
// A failing dependency sets NOT_SERVING; it is logged, never returned as an error.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			s.logger.Warn("health: database ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.logger.Warn("health: policy engine check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.set(st)
	return st
}

// Run checks every interval until ctx is done, then marks the service NOT_SERVING for good.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
