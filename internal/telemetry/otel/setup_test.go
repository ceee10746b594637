package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "test-service", false)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Errorf("NewProviders(%q) left a provider nil: %+v", endpoint, providers)
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
		// Shutdown should be callable multiple times
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("second shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewProviders(ctx, tc.endpoint, "test-service", false); err == nil {
				t.Errorf("NewProviders(%q) should return error", tc.endpoint)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		endpoint     string
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://localhost:4317", "localhost:4317", true},
		{"https://collector:4317", "collector:4317", false},
		{"http://localhost:4317/v1/traces", "localhost:4317", true},
		{"http://localhost:4317?param=value", "localhost:4317", true},
	}
	for _, tc := range testCases {
		t.Run(tc.endpoint, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tc.endpoint)
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if target != tc.wantTarget {
				t.Errorf("target = %q, want %q", target, tc.wantTarget)
			}
			if insecure != tc.wantInsecure {
				t.Errorf("insecure = %v, want %v", insecure, tc.wantInsecure)
			}
		})
	}
}

func TestNewProviders_WithEndpoint(t *testing.T) {
	// OTLP gRPC exporters connect lazily, so construction succeeds without a collector.
	ctx := context.Background()
	providers, err := NewProviders(ctx, "http://localhost:4317", "test-service", false)
	if err != nil {
		t.Skipf("exporter construction failed in this environment: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Error("all providers should be set")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_ = providers.Shutdown(cancelled)
}

func TestSetGlobal_WithProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "test-service", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	}()

	providers.SetGlobal()

	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() == oldMeterProvider {
		t.Error("MeterProvider should be updated")
	}
}

func TestSetGlobal_PartialProviders(t *testing.T) {
	ctx := context.Background()
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(ctx) }()

	providers := &Providers{TracerProvider: tp, Shutdown: func(context.Context) error { return nil }}

	oldTracerProvider := otel.GetTracerProvider()
	oldMeterProvider := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTracerProvider)
		otel.SetMeterProvider(oldMeterProvider)
	}()

	providers.SetGlobal()

	if otel.GetTracerProvider() == oldTracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != oldMeterProvider {
		t.Error("MeterProvider should not be updated when nil")
	}
}
