// Package server runs the bot's gRPC endpoint, which carries only the health service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "rsvp-bot/internal/health/handler"
	"rsvp-bot/internal/server/interceptors"
)

// healthCheckMethod is not request-logged.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// New returns a gRPC server with OTel instrumentation, request logging and the health service registered.
func New(health *healthhandler.Server, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(logger, map[string]bool{healthCheckMethod: true})),
	)
	if health != nil {
		health.Register(s)
	}
	return s
}

// Serve listens on addr and serves s until ctx is done, then stops gracefully.
func Serve(ctx context.Context, addr string, s *grpc.Server, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return ServeListener(ctx, lis, s, logger)
}

// ServeListener is Serve on an existing listener. The listener is closed when ServeListener returns.
func ServeListener(ctx context.Context, lis net.Listener, s *grpc.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc: health endpoint listening", "addr", lis.Addr().String())
		errCh <- s.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		s.GracefulStop()
		<-errCh
		logger.Info("grpc: health endpoint stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
