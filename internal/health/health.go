// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every registered [Checker] and answers 200 only when all of them
// pass, 503 otherwise. Both reply with a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = 5 * time.Second

// ErrNotReady is reported by [AgentChecker] while the agent is starting.
var ErrNotReady = errors.New("agent is still starting")

// Checker probes one dependency. Check returns nil when it is usable and must
// honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Readiness is implemented by the agent service.
type Readiness interface {
	IsReady() bool
}

// AgentChecker passes once the agent has finished starting. Probing never
// triggers construction.
func AgentChecker(r Readiness) Checker {
	return Checker{
		Name: "agent",
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !r.IsReady() {
				return ErrNotReady
			}
			return nil
		},
	}
}

// Report is the JSON body of both probes. Checks maps a checker name to "ok"
// or "fail: <error>".
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == "ok" }

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a Handler evaluating checkers on each readiness request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts /healthz and /readyz on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, Report{Status: "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusServiceUnavailable
	}
	writeReport(w, status, rep)
}

// Check runs every checker concurrently, each under the handler timeout.
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rep.Checks[c.Name] = "ok"
				return nil
			}
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			return nil
		})
	}
	_ = g.Wait()

	if !rep.OK() {
		slog.Debug("readiness check failed", "checks", rep.Checks)
	}
	return rep
}

func writeReport(w http.ResponseWriter, status int, rep Report) {
	b, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
