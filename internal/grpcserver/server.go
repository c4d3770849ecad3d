package grpcserver

import (
	"net"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/interceptors"
	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// Server - служебный gRPC интерфейс: health-check для оркестратора и reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *logger.Logger
}

// New создает сервер. До SetServing(true) health отвечает NOT_SERVING.
func New(log *logger.Logger) *Server {
	log = log.Named("grpc")

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.NewLoggingInterceptor(log).Unary(),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Reflection для дебаггинга через grpcurl
	reflection.Register(grpcServer)

	return &Server{
		grpc:   grpcServer,
		health: healthServer,
		log:    log,
	}
}

// SetServing переключает общий статус health-check.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.log.Infow("gRPC health status changed", "status", status.String())
}

// Serve блокируется до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infow("Starting gRPC server", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// GracefulStop переводит health в NOT_SERVING и дожидается текущих RPC.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.log.Infow("gRPC server gracefully stopped")
}
