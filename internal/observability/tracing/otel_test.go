package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig("doctor-panel"))
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if p.tp != nil {
		t.Error("disabled tracing installed a provider")
	}
	fields := otel.GetTextMapPropagator().Fields()
	found := false
	for _, f := range fields {
		if f == "traceparent" {
			found = true
		}
	}
	if !found {
		t.Errorf("propagator fields = %v, want traceparent", fields)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if !strings.Contains(desc, tt.want) {
			t.Errorf("samplerFor(%v) = %q, want it to contain %q", tt.rate, desc, tt.want)
		}
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on nil provider = %v", err)
	}
}
