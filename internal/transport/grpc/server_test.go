package grpcx

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_Serving(t *testing.T) {
	_, c := startServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, RelayService))
}

func TestHealth_Draining(t *testing.T) {
	srv, c := startServer(t)

	srv.Draining()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, RelayService))
}

func TestShutdown_Idempotent(t *testing.T) {
	srv, _ := startServer(t)
	srv.Shutdown()
	srv.Shutdown()
}
