package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Providers holds the backends the application talks to. LLM is required.
// STT is nil when audio transcription is not configured.
type Providers struct {
	LLM llm.Provider

	// LLMName labels LLM metrics.
	LLMName string

	STT stt.Transcriber

	// closers release backends that hold resources, such as loaded models.
	closers []func() error
}

// BuildProviders instantiates every provider named in cfg using reg. A
// primary with configured fallbacks is wrapped in a resilience group so a
// failing backend is bypassed.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{LLMName: cfg.Providers.LLM.Name}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.track(primary)
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.LLMFallback) == 0 {
		ps.LLM = primary
	} else {
		group := resilience.NewLLMFallback(primary, label(cfg.Providers.LLM), resilience.FallbackConfig{})
		for i, entry := range cfg.Providers.LLMFallback {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("app: create llm fallback %d (%q): %w", i, entry.Name, err)
			}
			ps.track(p)
			group.AddFallback(label(entry), p)
		}
		slog.Info("llm failover enabled", "order", group.Names())
		ps.LLM = group
	}

	if cfg.Providers.STT.Name == "" {
		return ps, nil
	}

	t, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		ps.Close()
		return nil, fmt.Errorf("app: create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.track(t)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)

	if len(cfg.Providers.STTFallback) == 0 {
		ps.STT = t
		return ps, nil
	}
	group := resilience.NewSTTFallback(t, label(cfg.Providers.STT), resilience.FallbackConfig{})
	for i, entry := range cfg.Providers.STTFallback {
		fb, err := reg.CreateSTT(entry)
		if err != nil {
			ps.Close()
			return nil, fmt.Errorf("app: create stt fallback %d (%q): %w", i, entry.Name, err)
		}
		ps.track(fb)
		group.AddFallback(label(entry), fb)
	}
	ps.STT = group
	return ps, nil
}

// Close releases every backend that holds resources. It is safe to call on a
// Providers value built by hand.
func (ps *Providers) Close() error {
	var firstErr error
	for _, c := range ps.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ps.closers = nil
	return firstErr
}

func (ps *Providers) track(v any) {
	if c, ok := v.(io.Closer); ok {
		ps.closers = append(ps.closers, c.Close)
	}
}

// label names a fallback entry in logs and breaker state changes. Two entries
// may share a provider name, so the model is included when set.
func label(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
