package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	agentmock "github.com/MrWong99/murmur/internal/agent/mock"
)

func pass(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func fail(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

// serve routes a GET through a chi router with h registered.
func serve(t *testing.T, ctx context.Context, h *Handler, path string) (int, Report) {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	// Liveness ignores failing checkers.
	code, rep := serve(t, context.Background(), New([]Checker{fail("agent", "down")}), "/healthz")
	if code != http.StatusOK || rep.Status != "ok" || len(rep.Checks) != 0 {
		t.Errorf("GET /healthz = %d %+v, want 200 ok without checks", code, rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{pass("agent"), pass("tools")},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"agent": "ok", "tools": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{fail("agent", "still starting"), pass("tools")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"agent": "fail: still starting", "tools": "ok"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{fail("agent", "timeout"), fail("tools", "npx: not found")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"agent": "fail: timeout", "tools": "fail: npx: not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, rep := serve(t, context.Background(), New(tt.checkers), "/readyz")
			if code != tt.wantCode {
				t.Errorf("status code = %d, want %d", code, tt.wantCode)
			}
			if rep.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", rep.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("checks[%q] = %q, want %q", name, got, want)
				}
			}
			if len(rep.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", rep.Checks, tt.wantChecks)
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	blocking := Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, rep := serve(t, ctx, New([]Checker{blocking}), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if got := rep.Checks["slow"]; got != "fail: "+context.Canceled.Error() {
		t.Errorf("checks[slow] = %q", got)
	}
}

func TestCheck_Timeout(t *testing.T) {
	t.Parallel()

	blocking := Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	h := New([]Checker{blocking}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	rep := h.Check(context.Background())
	if rep.OK() {
		t.Fatal("Check() passed, want timeout failure")
	}
	if got := rep.Checks["slow"]; got != "fail: "+context.DeadlineExceeded.Error() {
		t.Errorf("checks[slow] = %q", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Check took %v, want it bounded by the timeout", elapsed)
	}
}

func TestCheck_Concurrent(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	wait := func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
	h := New([]Checker{{Name: "a", Check: wait}, {Name: "b", Check: wait}})

	done := make(chan Report, 1)
	go func() { done <- h.Check(context.Background()) }()

	// Both checks must be in flight before either is released.
	<-started
	<-started
	close(release)
	if rep := <-done; !rep.OK() {
		t.Errorf("Check() = %+v, want ok", rep)
	}
}

func TestAgentChecker(t *testing.T) {
	t.Parallel()

	svc := &agentmock.Service{}
	h := New([]Checker{AgentChecker(svc)})

	rep := h.Check(context.Background())
	if rep.OK() || rep.Checks["agent"] != "fail: "+ErrNotReady.Error() {
		t.Fatalf("before ready: %+v", rep)
	}

	svc.SetReady(true)
	if rep := h.Check(context.Background()); !rep.OK() {
		t.Errorf("after ready: %+v", rep)
	}
}
