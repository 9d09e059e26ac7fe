// Package react implements the tool-using reasoning loop behind the agent
// runtime: ask the model, run the tools it calls through an [mcp.Host], feed
// the results back, and repeat until the model answers without tool calls.
//
// The loop is stateless; callers own conversation history and pass it to
// every [Agent.Run].
package react

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/murmur/internal/mcp"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// ErrMaxRounds is returned when the model still asks for tools after the
// configured number of tool rounds.
var ErrMaxRounds = errors.New("react: tool round limit reached")

const defaultMaxRounds = 10

// Option configures an [Agent].
type Option func(*Agent)

// WithSystemPrompt sets the system prompt sent with every completion.
func WithSystemPrompt(p string) Option {
	return func(a *Agent) { a.systemPrompt = p }
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithMaxRounds caps the number of tool rounds per run. Values below 1 are
// ignored. Default: 10.
func WithMaxRounds(n int) Option {
	return func(a *Agent) {
		if n >= 1 {
			a.maxRounds = n
		}
	}
}

// WithStreaming makes the agent use streaming completions. Answers are then
// returned as [Fragments].
func WithStreaming(on bool) Option {
	return func(a *Agent) { a.stream = on }
}

// WithMetrics records LLM latency and provider request counts on m under
// the given provider name.
func WithMetrics(m *observe.Metrics, provider string) Option {
	return func(a *Agent) {
		a.metrics = m
		a.providerName = provider
	}
}

// Agent runs the reasoning loop. It holds no per-conversation state and is
// safe for concurrent use if its provider and host are.
type Agent struct {
	provider llm.Provider
	host     mcp.Host
	tools    []llm.ToolDefinition

	systemPrompt string
	temperature  float64
	maxRounds    int
	stream       bool

	metrics      *observe.Metrics
	providerName string
}

// New builds an Agent offering tools to the model. host may be nil only
// when tools is empty.
func New(provider llm.Provider, host mcp.Host, tools []llm.ToolDefinition, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("react: provider must not be nil")
	}
	if host == nil && len(tools) > 0 {
		return nil, errors.New("react: tools given without a host to execute them")
	}

	a := &Agent{
		provider:  provider,
		host:      host,
		tools:     append([]llm.ToolDefinition(nil), tools...),
		maxRounds: defaultMaxRounds,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Tools returns the tool definitions offered to the model.
func (a *Agent) Tools() []llm.ToolDefinition {
	return append([]llm.ToolDefinition(nil), a.tools...)
}

// Run answers the conversation in history. history is not modified.
//
// Tool failures (unknown tools, transport errors, application errors) are
// reported to the model as tool messages and do not end the run. Model
// failures and context cancellation do.
func (a *Agent) Run(ctx context.Context, history []llm.Message) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "react.run",
		trace.WithAttributes(
			attribute.Int("react.history", len(history)),
			attribute.Int("react.tools", len(a.tools)),
		),
	)
	defer span.End()

	res, err := a.run(ctx, history)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("react.rounds", res.Rounds),
		attribute.Int("react.tool_calls", res.ToolCalls),
	)
	return res, nil
}

func (a *Agent) run(ctx context.Context, history []llm.Message) (*Result, error) {
	msgs := make([]llm.Message, len(history), len(history)+4)
	copy(msgs, history)

	res := &Result{}
	for round := 0; ; round++ {
		content, calls, err := a.complete(ctx, msgs)
		if err != nil {
			return nil, err
		}

		res.Messages = append(res.Messages, Message{Role: llm.RoleAssistant, Content: content})
		if len(calls) == 0 {
			return res, nil
		}
		if round >= a.maxRounds {
			return nil, fmt.Errorf("%w (%d)", ErrMaxRounds, a.maxRounds)
		}
		res.Rounds++

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   String(content),
			ToolCalls: calls,
		})

		for _, call := range calls {
			out := a.executeTool(ctx, call)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("react: %w", err)
			}
			res.ToolCalls++
			res.Messages = append(res.Messages, Message{Role: llm.RoleTool, Content: Text(out)})
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Content:    out,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
	}
}

// executeTool returns the text fed back to the model for call.
func (a *Agent) executeTool(ctx context.Context, call llm.ToolCall) string {
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	r, err := a.host.ExecuteTool(ctx, call.Name, args)
	switch {
	case err != nil:
		observe.Logger(ctx).Warn("tool call failed", "tool", call.Name, "err", err)
		return "Error: " + err.Error()
	case r == nil:
		return ""
	case r.IsError:
		return "Error: " + r.Content
	}
	return r.Content
}

func (a *Agent) request(msgs []llm.Message) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:     msgs,
		Tools:        a.tools,
		Temperature:  a.temperature,
		SystemPrompt: a.systemPrompt,
	}
}

// complete performs one model call and records its telemetry.
func (a *Agent) complete(ctx context.Context, msgs []llm.Message) (Content, []llm.ToolCall, error) {
	start := time.Now()
	var (
		content Content
		calls   []llm.ToolCall
		err     error
	)
	if a.stream {
		content, calls, err = a.completeStream(ctx, msgs)
	} else {
		content, calls, err = a.completeOnce(ctx, msgs)
	}

	if a.metrics != nil {
		mode := "complete"
		if a.stream {
			mode = "stream"
		}
		a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("mode", mode)))
		status := "ok"
		if err != nil {
			status = "error"
			a.metrics.RecordProviderError(ctx, a.providerName, "llm")
		}
		a.metrics.RecordProviderRequest(ctx, a.providerName, "llm", status)
	}
	return content, calls, err
}

func (a *Agent) completeOnce(ctx context.Context, msgs []llm.Message) (Content, []llm.ToolCall, error) {
	resp, err := a.provider.Complete(ctx, a.request(msgs))
	if err != nil {
		return nil, nil, fmt.Errorf("react: completion: %w", err)
	}
	if resp == nil {
		return nil, nil, errors.New("react: completion: empty response")
	}
	return Text(resp.Content), resp.ToolCalls, nil
}

func (a *Agent) completeStream(ctx context.Context, msgs []llm.Message) (Content, []llm.ToolCall, error) {
	ch, err := a.provider.StreamCompletion(ctx, a.request(msgs))
	if err != nil {
		return nil, nil, fmt.Errorf("react: stream: %w", err)
	}

	var (
		frags Fragments
		calls []llm.ToolCall
	)
	for chunk := range ch {
		if chunk.FinishReason == llm.FinishReasonError {
			return nil, nil, fmt.Errorf("react: stream: %s", chunk.Text)
		}
		if chunk.Text != "" {
			frags = append(frags, chunk.Text)
		}
		calls = append(calls, chunk.ToolCalls...)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("react: stream: %w", err)
	}
	if frags == nil {
		frags = Fragments{}
	}
	return frags, calls, nil
}
