// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     grpc
// Description: gRPC server exposing the standard health protocol
// License:     MIT
// ============================================================================

package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/health"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// ShutdownTimeout bounds the graceful stop in ListenAndServe.
const ShutdownTimeout = 10 * time.Second

// Options configure a Server. The zero value is usable.
type Options struct {
	Logger *logging.Logger
	// Reflection registers the reflection service for grpcurl and friends.
	Reflection bool
	// Keepalive pings idle clients after this long; zero keeps the gRPC default.
	Keepalive time.Duration
	// Extra server options, appended after the interceptor chains.
	ServerOptions []grpc.ServerOption
}

// Server answers grpc.health.v1 probes from a health.Registry.
type Server struct {
	server *grpc.Server
	logger *logging.Logger
}

// NewServer creates a server with the recovery, request-id, logging and
// error interceptors and registers the health service.
func NewServer(registry *health.Registry, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			RequestIDInterceptor(),
			LoggingInterceptor(logger),
			ErrorInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(logger),
			StreamRequestIDInterceptor(),
			StreamLoggingInterceptor(logger),
		),
	}
	if opts.Keepalive > 0 {
		serverOpts = append(serverOpts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    opts.Keepalive,
			Timeout: opts.Keepalive / 3,
		}))
	}
	serverOpts = append(serverOpts, opts.ServerOptions...)

	s := grpc.NewServer(serverOpts...)
	grpc_health_v1.RegisterHealthServer(s, NewHealthServer(registry))
	if opts.Reflection {
		reflection.Register(s)
	}
	return &Server{server: s, logger: logger}
}

// GRPCServer exposes the underlying server for registering more services.
func (s *Server) GRPCServer() *grpc.Server {
	return s.server
}

// ListenAndServe serves on addr until ctx is done, then stops gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return verrors.Wrapf(err, "listen on %s", addr).WithCode(verrors.CodeConfiguration)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server listening", "address", lis.Addr().String())
		errc <- s.server.Serve(lis)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.Shutdown(sctx)
	if err := <-errc; !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown stops gracefully, or forcibly once ctx is done.
func (s *Server) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}
