package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/murmur/internal/app"
	"github.com/MrWong99/murmur/internal/config"
	mcpmock "github.com/MrWong99/murmur/internal/mcp/mock"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/transcript"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	llmmock "github.com/MrWong99/murmur/pkg/provider/llm/mock"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// testConfig returns a defaulted config with one stdio MCP server.
func testConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai"},
		},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "browser", Command: "browser-mcp --headless"},
			},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// testProviders returns a mock LLM that always answers with answer.
func testProviders(answer string) (*app.Providers, *llmmock.Provider) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: answer},
	}
	return &app.Providers{LLM: p, LLMName: "mock"}, p
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// newTestApp builds an App with a mock tool host and serves its router.
func newTestApp(t *testing.T, answer string, opts ...app.Option) (*app.App, *httptest.Server, *mcpmock.Host) {
	t.Helper()
	host := &mcpmock.Host{}
	providers, _ := testProviders(answer)
	opts = append([]app.Option{app.WithMCPHost(host), app.WithMetrics(testMetrics(t))}, opts...)

	a, err := app.New(context.Background(), testConfig(), providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, srv, host
}

func waitReady(t *testing.T, a *app.App) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !a.Agent().IsReady() {
		if time.Now().After(deadline) {
			t.Fatal("agent did not become ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type envelope struct {
	Type string          `json:"type"`
	Corr *string         `json:"corr"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (envelope, transcript.Entry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope %s: %v", b, err)
	}
	var e transcript.Entry
	if env.Type == "transcript" {
		if err := json.Unmarshal(env.Data, &e); err != nil {
			t.Fatalf("unmarshal entry %s: %v", env.Data, err)
		}
	}
	return env, e
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresLLM(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("New() with no LLM returned nil error")
	}
	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("New() with nil providers returned nil error")
	}
}

func TestNew_WarmsAgentAndRegistersServers(t *testing.T) {
	t.Parallel()

	a, _, host := newTestApp(t, "done")
	waitReady(t, a)

	servers := host.Registered()
	if len(servers) != 1 {
		t.Fatalf("registered servers = %d, want 1", len(servers))
	}
	if s := servers[0]; s.Name != "browser" || s.Command != "browser-mcp --headless" {
		t.Errorf("registered %+v, want the browser server from config", s)
	}
}

// ─── HTTP surface ────────────────────────────────────────────────────────────

func TestApp_DictateRoundTrip(t *testing.T) {
	t.Parallel()

	a, srv, _ := newTestApp(t, "Opened example.com.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/dictate", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	msg := `{"type":"transcript","corr":"c1","data":{"sender":"User","text":"open example.com"}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	echo, e := readEnvelope(t, conn)
	if echo.Type != "transcript" || e.Sender != "User" || e.Text != "open example.com" {
		t.Fatalf("echo = %+v / %+v, want the user's transcript", echo, e)
	}

	reply, e := readEnvelope(t, conn)
	if reply.Type != "transcript" || e.Sender != "Dictate" {
		t.Fatalf("reply = %+v / %+v, want an agent transcript", reply, e)
	}
	if e.Text != "Opened example.com." {
		t.Errorf("reply text = %q, want %q", e.Text, "Opened example.com.")
	}
	if reply.Corr == nil || *reply.Corr != "c1" {
		t.Errorf("reply corr = %v, want c1", reply.Corr)
	}

	if got := a.Transcript().Len(); got != 2 {
		t.Errorf("transcript entries = %d, want 2", got)
	}
}

func TestApp_EchoEndpoint(t *testing.T) {
	t.Parallel()

	_, srv, _ := newTestApp(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/echo", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hi!" {
		t.Errorf("echo = %q, want %q", b, "hi!")
	}
}

func TestApp_HealthEndpoints(t *testing.T) {
	t.Parallel()

	a, srv, _ := newTestApp(t, "")
	waitReady(t, a)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestApp_ReadyzBeforeAgentReady(t *testing.T) {
	t.Parallel()

	host := &mcpmock.Host{RegisterServerErr: errors.New("browser unavailable")}
	providers, _ := testProviders("")
	a, err := app.New(context.Background(), testConfig(), providers,
		app.WithMCPHost(host), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	// Construction finishes even though initialisation fails.
	_ = a.Agent().Get()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz status = %d, want 503", rec.Code)
	}
}

func TestApp_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, srv, _ := newTestApp(t, "")

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "# HELP") {
		t.Error("metrics body has no exposition text")
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	a, _, _ := newTestApp(t, "", app.WithLevelVar(level))

	old := testConfig()
	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Transcript.Vocabulary = []string{"Playwright"}
	updated.Server.ListenAddr = ":9999"

	a.Reload(old, updated)

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want debug", got)
	}
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	providers, _ := testProviders("")
	a, err := app.New(context.Background(), testConfig(), providers,
		app.WithMCPHost(&mcpmock.Host{}),
		app.WithMetrics(testMetrics(t)),
		app.WithListener(ln),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET /healthz: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() = %v", err)
	}

	if got := a.Agent().ProcessText("hello"); got == "" {
		t.Error("ProcessText after shutdown returned empty reply")
	}
}
