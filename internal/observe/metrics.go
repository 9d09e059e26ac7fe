// Package observe provides observability primitives for murmur:
// OpenTelemetry metrics, tracing, trace-aware slog loggers and the HTTP
// middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exported via the
// Prometheus bridge set up by [Setup]. [DefaultMetrics] returns a
// process-wide instance bound to the global MeterProvider; tests should use
// [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all murmur metrics.
const meterName = "github.com/MrWong99/murmur"

// Metrics holds every instrument the application records.
type Metrics struct {
	// AgentTurnDuration covers one full Process call inside the agent worker,
	// tool rounds included.
	AgentTurnDuration metric.Float64Histogram

	// LLMDuration tracks a single model round-trip.
	LLMDuration metric.Float64Histogram

	// STTDuration tracks one audio transcription.
	STTDuration metric.Float64Histogram

	// ToolExecutionDuration tracks one MCP tool call.
	ToolExecutionDuration metric.Float64Histogram

	// AgentTurns counts agent turns by status (ok, error, not_ready).
	AgentTurns metric.Int64Counter

	// ToolCalls counts tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// DictateMessages counts envelopes by direction (in, out) and type.
	DictateMessages metric.Int64Counter

	// ActiveConnections is the number of open dictation channels.
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP handling time by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span fast tool calls up to long browsing turns.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.AgentTurnDuration, err = histogram("murmur.agent.turn.duration", "Latency of a complete agent turn."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("murmur.llm.duration", "Latency of a single LLM round-trip."); err != nil {
		return nil, err
	}
	if met.STTDuration, err = histogram("murmur.stt.duration", "Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("murmur.tool_execution.duration", "Latency of MCP tool execution."); err != nil {
		return nil, err
	}

	if met.AgentTurns, err = m.Int64Counter("murmur.agent.turns",
		metric.WithDescription("Agent turns by status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("murmur.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("murmur.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("murmur.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.DictateMessages, err = m.Int64Counter("murmur.dictate.messages",
		metric.WithDescription("Dictation channel envelopes by direction and type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("murmur.active_connections",
		metric.WithDescription("Open dictation channel connections."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("murmur.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] bound to
// [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordAgentTurn records one agent turn. d is ignored for not_ready turns.
func (m *Metrics) RecordAgentTurn(ctx context.Context, status string, d time.Duration) {
	m.AgentTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if d > 0 {
		m.AgentTurnDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordMessage counts one dictation envelope.
func (m *Metrics) RecordMessage(ctx context.Context, direction, msgType string) {
	m.DictateMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("type", msgType),
	))
}
