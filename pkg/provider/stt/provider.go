// Package stt defines the speech-to-text abstraction used by the audio path of
// the dictation channel.
//
// Clients record an utterance, send it as one base64 blob, and expect one
// transcript back, so the contract is batch rather than streaming: a
// Transcriber receives a complete audio buffer and returns its text.
package stt

import (
	"bytes"
	"context"
	"errors"
)

// ErrNoSpeech is returned when the audio decoded cleanly but contained no
// recognisable speech.
var ErrNoSpeech = errors.New("stt: no speech detected in audio data")

// Transcriber converts a complete audio clip to text.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation.
type Transcriber interface {
	// Transcribe returns the trimmed transcript of audio. It returns an error
	// wrapping ErrNoSpeech when the result is empty.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Format identifies the container of an audio buffer.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
	FormatOgg  Format = "ogg"

	// FormatPCM is raw 16-bit signed little-endian mono PCM. It is assumed
	// whenever no container signature matches.
	FormatPCM Format = "pcm"
)

var (
	sigRIFF = []byte("RIFF")
	sigWAVE = []byte("WAVE")
	sigEBML = []byte{0x1A, 0x45, 0xDF, 0xA3}
	sigOgg  = []byte("OggS")
)

// DetectFormat sniffs the container signature at the start of audio.
func DetectFormat(audio []byte) Format {
	switch {
	case len(audio) >= 12 && bytes.Equal(audio[0:4], sigRIFF) && bytes.Equal(audio[8:12], sigWAVE):
		return FormatWAV
	case bytes.HasPrefix(audio, sigEBML):
		return FormatWebM
	case bytes.HasPrefix(audio, sigOgg):
		return FormatOgg
	default:
		return FormatPCM
	}
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	if f == FormatPCM {
		return "wav"
	}
	return string(f)
}
