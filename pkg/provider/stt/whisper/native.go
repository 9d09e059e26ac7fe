// NativeProvider links whisper.cpp through its cgo bindings. The static
// library (libwhisper.a) and whisper.h must be reachable through
// LIBRARY_PATH and C_INCLUDE_PATH at build time.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeProvider implements stt.Transcriber with an in-process whisper.cpp
// model. The model is loaded once and shared; every Transcribe call gets its
// own inference context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative loads the ggml model at modelPath. The caller must Close the
// provider when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs inference on a 16 kHz WAV file or raw 16 kHz mono PCM.
// Compressed containers are rejected; use the HTTP provider with a server
// started with --convert for those.
func (p *NativeProvider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	samples, err := p.samples(audio)
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("whisper: %w", stt.ErrNoSpeech)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return "", fmt.Errorf("whisper: %w", stt.ErrNoSpeech)
	}
	return text, nil
}

// samples converts audio into mono float32 samples at whisper's native rate.
func (p *NativeProvider) samples(audio []byte) ([]float32, error) {
	switch format := stt.DetectFormat(audio); format {
	case stt.FormatPCM:
		return pcmToFloat32(audio), nil
	case stt.FormatWAV:
		info, err := decodeWAV(audio)
		if err != nil {
			return nil, fmt.Errorf("whisper: decode wav: %w", err)
		}
		if info.bitsPerSample != bitsPerSample {
			return nil, fmt.Errorf("whisper: unsupported bit depth %d (want 16)", info.bitsPerSample)
		}
		if info.sampleRate != defaultSampleRate {
			return nil, fmt.Errorf("whisper: unsupported sample rate %d (want %d)", info.sampleRate, defaultSampleRate)
		}
		return pcmToFloat32Mono(info.data, info.channels), nil
	default:
		return nil, fmt.Errorf("whisper: %s audio is not supported by the native provider", format)
	}
}
