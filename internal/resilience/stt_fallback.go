package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with failover across several
// speech-to-text backends.
//
// [stt.ErrNoSpeech] is a valid answer about the audio rather than a backend
// fault: it is returned as is and never trips a breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
// Any IsFailure set in cfg is combined with the no-speech rule.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	base := cfg.CircuitBreaker.IsFailure
	if base == nil {
		base = DefaultIsFailure
	}
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		return !errors.Is(err, stt.ErrNoSpeech) && base(err)
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs audio through the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, audio)
	})
}
