// Package mock provides a test double for the llm.Provider interface.
//
// Responses can be fixed (CompleteResponse) or scripted per call
// (CompleteResponses, consumed in order) so that multi-round tool-calling
// loops can be driven deterministically:
//
//	p := &mock.Provider{CompleteResponses: []*llm.CompletionResponse{
//	    {ToolCalls: []llm.ToolCall{{ID: "1", Name: "browser_navigate", Arguments: "{}"}}},
//	    {Content: "The page title is Example Domain."},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// Call records a single invocation of Complete or StreamCompletion.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider. Zero values return
// zero results and nil errors.
type Provider struct {
	mu sync.Mutex

	// StreamChunks are emitted on the channel returned by StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamErr, if set, is returned from StreamCompletion.
	StreamErr error

	// CompleteResponses are returned by successive Complete calls. Once
	// exhausted, CompleteResponse is returned.
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is the fallback response for Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if set, is returned from Complete.
	CompleteErr error

	// CompleteFunc, if set, overrides every other Complete field.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	StreamCalls   []Call
	CompleteCalls []Call
}

// StreamCompletion records the call and emits StreamChunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := append([]llm.Chunk(nil), p.StreamChunks...)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn == nil {
		defer p.mu.Unlock()
		if p.CompleteErr != nil {
			return nil, p.CompleteErr
		}
		if len(p.CompleteResponses) > 0 {
			resp := p.CompleteResponses[0]
			p.CompleteResponses = p.CompleteResponses[1:]
			return resp, nil
		}
		return p.CompleteResponse, nil
	}
	p.mu.Unlock()
	return fn(ctx, req)
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// CompleteCallCount returns the number of Complete calls so far.
func (p *Provider) CompleteCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// StreamCallCount returns the number of StreamCompletion calls so far.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// LastCompleteRequest returns the most recent Complete request.
func (p *Provider) LastCompleteRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}
