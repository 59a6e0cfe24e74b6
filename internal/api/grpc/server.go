// Package grpc runs the gRPC listener. It serves the standard health
// protocol, reporting SERVING once the schema is up to date, and
// reflection for grpcurl.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/apien/apien/internal/logger"
)

// ServiceName is the health-checked service name for lookups. The empty
// name reports overall server health and follows it.
const ServiceName = "apien.Lookup"

// Server wraps a grpc.Server with a health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *logger.Logger
}

// NewServer creates a server reporting NOT_SERVING until SetServing(true).
func NewServer(log *logger.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		health: health.NewServer(),
		log:    log.Component("grpc"),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logUnary))
	s.grpc = grpc.NewServer(opts...)

	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

// SetServing flips the reported health of the lookup service.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve accepts connections on lis until Close.
func (s *Server) Serve(lis net.Listener) error {
	s.log.LogServerStart("grpc", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Close reports NOT_SERVING to watchers and stops after pending RPCs
// finish.
func (s *Server) Close() error {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	return nil
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	requestID := extractRequestID(ctx)
	resp, err := handler(ctx, req)

	s.log.Debug().
		Str("request_id", requestID).
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("duration_ms", time.Since(start)).
		Msg("rpc completed")
	return resp, err
}

func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
