package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"portalsim/engine/internal/logging"
)

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	server := NewHealthServer(logging.NewTestLogger())
	done := make(chan error, 1)
	go func() { done <- server.Serve(lis) }()

	conn, err := googlegrpc.NewClient("passthrough:///bufnet",
		googlegrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		googlegrpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Stop()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return server, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServerFollowsSimulation(t *testing.T) {
	server, client := startHealth(t)

	if got := check(t, client, SimulationService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before start, got %v", got)
	}

	server.SetServing(true)
	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING overall, got %v", got)
	}
	if got := check(t, client, SimulationService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING simulation, got %v", got)
	}

	server.SetServing(false)
	if got := check(t, client, SimulationService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after stop, got %v", got)
	}
}
