// Package app wires all murmur subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithMCPHost,
// WithMetrics). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/murmur/internal/agent"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/dictate"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/mcp"
	"github.com/MrWong99/murmur/internal/mcp/mcphost"
	"github.com/MrWong99/murmur/internal/mcp/tools/transcripttool"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/transcript"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New, torn down in Shutdown.
	metrics  *observe.Metrics
	level    *slog.LevelVar
	mcpHost  mcp.Host
	log      *transcript.Log
	service  *agent.Service
	dictate  *dictate.Handler
	router   http.Handler
	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown, after the HTTP server and
	// the dictation handler have stopped.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMCPHost injects a tool host instead of creating an mcphost.Host.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithMetrics injects the metrics instruments instead of using
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.Reload] change the log level of the handler that
// was built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders] or is assembled by hand in tests.
//
// The agent runtime is constructed in the background; New does not wait for
// MCP servers to connect. ctx bounds that initialisation.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Close)

	// ── 1. Transcript log ────────────────────────────────────────────────
	a.log = transcript.NewLog()

	// ── 2. Tool host ─────────────────────────────────────────────────────
	a.initMCP()

	// ── 3. Agent service ─────────────────────────────────────────────────
	a.initAgent(ctx)

	// ── 4. Dictation channel ─────────────────────────────────────────────
	a.initDictate()

	// ── 5. Router + HTTP server ──────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMCP creates the tool host if one wasn't injected. Servers are
// registered by the agent runtime during its initialisation.
func (a *App) initMCP() {
	if a.mcpHost != nil {
		return
	}
	host := mcphost.New(mcphost.WithMetrics(a.metrics))
	a.mcpHost = host
	a.closers = append(a.closers, host.Close)
}

// initAgent creates the agent service and starts runtime construction.
func (a *App) initAgent(ctx context.Context) {
	servers := make([]mcp.ServerConfig, 0, len(a.cfg.MCP.Servers))
	for _, s := range a.cfg.MCP.Servers {
		servers = append(servers, s.ToServerConfig())
	}

	rc := agent.RuntimeConfig{
		LLM:           a.providers.LLM,
		ProviderName:  a.providers.LLMName,
		Host:          a.mcpHost,
		Servers:       servers,
		Builtins:      transcripttool.NewTools(a.log),
		SystemPrompt:  a.cfg.Agent.SystemPrompt,
		MaxToolRounds: a.cfg.Agent.MaxToolRounds,
		Stream:        a.cfg.Agent.Stream,
		Metrics:       a.metrics,
	}
	if a.cfg.Agent.Temperature != nil {
		rc.Temperature = *a.cfg.Agent.Temperature
	}

	a.service = agent.NewService(func() *agent.Runtime {
		return agent.NewRuntime(ctx, rc)
	})
	a.service.Warm()

	// The service closes first so the runtime stops using the host and the
	// providers before they are released.
	a.closers = append([]func() error{a.service.Close}, a.closers...)
}

// initDictate creates the websocket handler.
func (a *App) initDictate() {
	opts := []dictate.Option{
		dictate.WithIdentities(a.cfg.Agent.HumanIdentity, a.cfg.Agent.AgentIdentity),
		dictate.WithMetrics(a.metrics),
		dictate.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
	}
	if a.providers.STT != nil {
		opts = append(opts, dictate.WithTranscriber(a.providers.STT, newCorrector(a.cfg.Transcript.Vocabulary)))
	}
	a.dictate = dictate.NewHandler(a.service, a.log, opts...)
}

// initHTTP builds the router and the HTTP server.
func (a *App) initHTTP() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(a.metrics))

	r.Handle("/ws/dictate", a.dictate)
	r.Handle("/ws/echo", dictate.EchoHandler(a.cfg.Server.AllowedOrigins))
	health.New([]health.Checker{health.AgentChecker(a.service)}).Register(r)
	r.Handle("/metrics", promhttp.Handler())

	a.router = r
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newCorrector returns nil for an empty vocabulary so audio transcripts pass
// through untouched.
func newCorrector(vocabulary []string) *transcript.Corrector {
	if len(vocabulary) == 0 {
		return nil
	}
	return transcript.NewCorrector(vocabulary)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Transcript returns the shared transcript log.
func (a *App) Transcript() *transcript.Log {
	return a.log
}

// Agent returns the agent service.
func (a *App) Agent() *agent.Service {
	return a.service
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// On cancellation it returns ctx.Err(); call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen on %q: %w", a.server.Addr, err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		errc <- err
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of a config change: the log level
// and the transcription vocabulary. Everything else is logged as requiring a
// restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VocabularyChanged {
		a.dictate.SetCorrector(newCorrector(d.NewVocabulary))
		slog.Info("transcription vocabulary reloaded", "terms", len(d.NewVocabulary))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, closes every dictation connection, waits
// for in-flight agent replies and then runs the closers. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
			shutdownErr = err
		}
		if err := a.dictate.Shutdown(ctx); err != nil {
			slog.Warn("dictation handler shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
