package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "rsvp-bot/internal/health/handler"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestHealthRegister(t *testing.T) {
	reg := &mockServiceRegistrar{}
	healthhandler.NewServer(nil, nil, nil).Register(reg)
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}

func TestNew_WithoutHealth(t *testing.T) {
	s := New(nil, nil)
	if len(s.GetServiceInfo()) != 0 {
		t.Errorf("services = %v, want none", s.GetServiceInfo())
	}
}

func TestServeListener_HealthRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(healthhandler.NewServer(nil, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, lis, s, nil) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: healthhandler.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not return after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	if err := Serve(context.Background(), "not-an-address", New(nil, nil), nil); err == nil {
		t.Fatal("Serve with a bad address should fail")
	}
}
