package grpcx

import (
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RelayService — имя сервиса в health-проверках.
const RelayService = "coop.Relay"

// Server — служебный gRPC: health + reflection. Игровой трафик идёт только по WS.
type Server struct {
	grpc   *grpc.Server
	health *health.Server

	stopOnce sync.Once
}

func NewServer() *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(RelayService, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpc: gs, health: hs}
}

// Serve блокируется до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc listen", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Shutdown переводит health в NOT_SERVING и дожидается активных вызовов.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}

// Draining переводит только health в NOT_SERVING; соединения остаются открытыми.
func (s *Server) Draining() {
	s.health.Shutdown()
}
