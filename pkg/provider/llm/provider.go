// Package llm defines the Provider interface for Large Language Model backends.
//
// A Provider wraps a remote or local chat model (OpenAI, a local Ollama
// instance, any backend reachable through any-llm-go) and exposes a uniform
// surface to the reasoning agent: one-shot completions, streamed completions
// and static capability metadata. Tool calling is part of the contract; the
// caller decides whether to offer tools based on Capabilities.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion are closed by the implementation when the stream ends or
// the context is cancelled.
package llm

import "context"

// FinishReasonError is the Chunk.FinishReason value used to report a failure
// that happened after a stream was opened. Chunk.Text carries the error text.
const FinishReasonError = "error"

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// Messages is the ordered conversation. It must not be empty.
	Messages []Message

	// Tools offered to the model. Ignored by providers whose model does not
	// support tool calling.
	Tools []ToolDefinition

	// Temperature in [0, 2]. Zero requests the most deterministic decoding the
	// backend offers.
	Temperature float64

	// MaxTokens caps the generated tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is injected ahead of Messages as a system-role message.
	SystemPrompt string
}

// Chunk is one fragment of a streamed completion.
type Chunk struct {
	// Text is the incremental text. May be empty on tool-call or finish chunks.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", "tool_calls",
	// or FinishReasonError).
	FinishReason string

	// ToolCalls holds fully accumulated tool calls, emitted on the final chunk.
	ToolCalls []ToolCall
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the assistant text. Empty when the model only requested tools.
	Content string

	// ToolCalls the caller must execute and answer with tool-role messages.
	ToolCalls []ToolCall

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion starts a streamed completion. The returned channel is
	// never nil when err is nil and must be drained by the caller. Failures
	// after the stream opened arrive as a Chunk with FinishReasonError.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}
