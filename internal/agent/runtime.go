// Package agent bridges many short-lived callers to one long-lived,
// tool-using reasoning agent.
//
// A [Runtime] owns a single worker goroutine. Everything that touches the
// reasoning agent or its conversation memory runs as a job on that worker,
// so callers get a blocking Process call while memory is read and appended
// strictly one turn at a time. A [Service] constructs the Runtime lazily and
// shields callers from its failures.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/murmur/internal/agent/react"
	"github.com/MrWong99/murmur/internal/mcp"
	"github.com/MrWong99/murmur/internal/mcp/tools"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/provider/llm"
)

// NotReadyMessage is returned by [Runtime.Process] before initialisation
// has succeeded.
const NotReadyMessage = "Sorry, I'm still starting up. Please wait a moment and try again."

// ErrClosed is reported once [Runtime.Close] has been called.
var ErrClosed = errors.New("agent: runtime closed")

// ErrorReply is the apologetic reply used whenever a turn fails.
func ErrorReply(err error) string {
	return "Sorry, I encountered an error: " + err.Error()
}

// Turn is one successful exchange held in conversation memory.
type Turn struct {
	Input  string
	Output string
}

// RuntimeConfig holds everything a [Runtime] needs. LLM and Host are
// required; every MCP server in Servers is registered on Host during
// construction.
type RuntimeConfig struct {
	LLM llm.Provider

	// ProviderName labels LLM metrics.
	ProviderName string

	Host    mcp.Host
	Servers []mcp.ServerConfig

	// Builtins are in-process tools registered on Host when it supports
	// them, as mcphost.Host does.
	Builtins []tools.Tool

	SystemPrompt  string
	Temperature   float64
	MaxToolRounds int
	Stream        bool

	// Metrics is optional.
	Metrics *observe.Metrics
}

// builtinRegistrar is implemented by hosts that accept in-process tools.
type builtinRegistrar interface {
	RegisterBuiltin(tools.Tool) error
}

type job func(ctx context.Context)

// Runtime is the process-wide agent. Create it with [NewRuntime].
type Runtime struct {
	cfg RuntimeConfig

	jobs chan job
	done chan struct{}

	// mu guards closed and sends on jobs.
	mu     sync.RWMutex
	closed bool

	ready     atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// Owned by the worker goroutine.
	reasoner *react.Agent
	memory   []Turn
}

// NewRuntime starts the worker and runs initialisation on it before
// returning. Initialisation failures are logged and leave the runtime not
// ready; NewRuntime itself never fails. ctx only supplies values (logger,
// trace) and the deadline of initialisation; it does not bound the
// runtime's lifetime.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) *Runtime {
	r := &Runtime{
		cfg:  cfg,
		jobs: make(chan job),
		done: make(chan struct{}),
	}
	go r.loop(context.WithoutCancel(ctx))

	initDone := make(chan struct{})
	r.jobs <- func(context.Context) {
		defer close(initDone)
		if err := r.init(ctx); err != nil {
			observe.Logger(ctx).Error("agent runtime initialisation failed", "err", err)
			return
		}
		r.ready.Store(true)
		observe.Logger(ctx).Info("agent runtime ready", "tools", len(r.reasoner.Tools()))
	}
	<-initDone
	return r
}

func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)
	for j := range r.jobs {
		j(ctx)
	}
}

// init connects MCP servers, enumerates tools and builds the reasoning agent.
func (r *Runtime) init(ctx context.Context) error {
	if r.cfg.LLM == nil {
		return errors.New("agent: no LLM provider configured")
	}
	if r.cfg.Host == nil {
		return errors.New("agent: no tool host configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range r.cfg.Servers {
		g.Go(func() error {
			if err := r.cfg.Host.RegisterServer(gctx, sc); err != nil {
				return fmt.Errorf("agent: register mcp server %q: %w", sc.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(r.cfg.Builtins) > 0 {
		reg, ok := r.cfg.Host.(builtinRegistrar)
		if !ok {
			slog.Warn("agent: tool host does not accept builtin tools, skipping", "count", len(r.cfg.Builtins))
		} else {
			for _, t := range r.cfg.Builtins {
				if err := reg.RegisterBuiltin(t); err != nil {
					return fmt.Errorf("agent: register builtin %q: %w", t.Definition.Name, err)
				}
			}
		}
	}

	opts := []react.Option{
		react.WithSystemPrompt(r.cfg.SystemPrompt),
		react.WithTemperature(r.cfg.Temperature),
		react.WithMaxRounds(r.cfg.MaxToolRounds),
		react.WithStreaming(r.cfg.Stream),
	}
	if r.cfg.Metrics != nil {
		opts = append(opts, react.WithMetrics(r.cfg.Metrics, r.cfg.ProviderName))
	}
	reasoner, err := react.New(r.cfg.LLM, r.cfg.Host, r.cfg.Host.AvailableTools(), opts...)
	if err != nil {
		return fmt.Errorf("agent: build reasoning agent: %w", err)
	}
	r.reasoner = reasoner
	return nil
}

// submit queues j on the worker. It reports false when the runtime is closed.
func (r *Runtime) submit(j job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.jobs <- j
	return true
}

// IsReady reports whether initialisation succeeded. It never blocks and,
// once true, stays true.
func (r *Runtime) IsReady() bool {
	return r.ready.Load()
}

// Process answers text and blocks until the turn is done. It never fails:
// errors come back as an apologetic reply and the failed exchange is not
// remembered. Empty text is forwarded as is.
func (r *Runtime) Process(text string) string {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrorReply(ErrClosed)
	}
	if !r.IsReady() {
		return NotReadyMessage
	}

	type outcome struct {
		text string
		err  error
	}
	reply := make(chan outcome, 1)
	if !r.submit(func(ctx context.Context) {
		out, err := r.turn(ctx, text)
		reply <- outcome{out, err}
	}) {
		return ErrorReply(ErrClosed)
	}

	res := <-reply
	if res.err != nil {
		return ErrorReply(res.err)
	}
	return res.text
}

// turn runs on the worker goroutine.
func (r *Runtime) turn(ctx context.Context, input string) (answer string, err error) {
	ctx, span := observe.StartSpan(ctx, "agent.process",
		trace.WithAttributes(attribute.Int("agent.memory_turns", len(r.memory))),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent: panic during turn: %v", p)
		}
		status := "ok"
		if err != nil {
			status = "error"
			observe.FailSpan(span, err)
			observe.Logger(ctx).Warn("agent turn failed", "err", err)
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordAgentTurn(ctx, status, time.Since(start))
		}
	}()

	res, err := r.reasoner.Run(ctx, r.buildMessages(input))
	if err != nil {
		return "", err
	}
	answer, err = react.FinalText(res)
	if err != nil {
		return "", err
	}

	r.memory = append(r.memory, Turn{Input: input, Output: answer})
	return answer, nil
}

// buildMessages lays out prior turns followed by the new input. The system
// prompt travels separately in the completion request.
func (r *Runtime) buildMessages(input string) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(r.memory)+1)
	for _, t := range r.memory {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Input},
			llm.Message{Role: llm.RoleAssistant, Content: t.Output},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: input})
}

// History returns a snapshot of conversation memory, oldest first. It waits
// for queued turns ahead of it. After Close it returns nil.
func (r *Runtime) History() []Turn {
	out := make(chan []Turn, 1)
	if !r.submit(func(context.Context) {
		out <- append([]Turn(nil), r.memory...)
	}) {
		return nil
	}
	return <-out
}

// Close stops accepting work, lets queued turns finish, stops the worker
// and closes the tool host. It is idempotent.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.jobs)
		r.mu.Unlock()

		<-r.done
		if r.cfg.Host != nil {
			if err := r.cfg.Host.Close(); err != nil {
				r.closeErr = fmt.Errorf("agent: close tool host: %w", err)
			}
		}
	})
	return r.closeErr
}
