package observe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Setup swaps global providers, so these tests do not run in parallel.

func TestSetup_ExportsToRegisterer(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := Setup(context.Background(), ProviderConfig{
		ServiceName: "murmur-test",
		Registerer:  reg,
	})
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() = %v", err)
	}
	m.RecordAgentTurn(context.Background(), "ok", time.Second)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() = %v", err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "murmur_agent_turns") {
			found = true
		}
	}
	if !found {
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		t.Errorf("agent turn counter not gathered; got %v", names)
	}
}

func TestSetup_SpansReachExporter(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Setup(context.Background(), ProviderConfig{
		Registerer:   prometheus.NewRegistry(),
		SpanExporter: exp,
	})
	if err != nil {
		t.Fatalf("Setup() = %v", err)
	}

	_, span := StartSpan(context.Background(), "warmup")
	span.SetAttributes(attribute.String("k", "v"))
	span.End()

	// Shutdown flushes the batcher.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() = %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "warmup" {
		t.Fatalf("exported spans = %v, want one named warmup", spans)
	}
	var svc string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			svc = kv.Value.AsString()
		}
	}
	if svc != "murmur" {
		t.Errorf("service.name = %q, want murmur", svc)
	}
}
