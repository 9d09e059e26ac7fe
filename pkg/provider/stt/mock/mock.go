// Package mock provides a test double for stt.Transcriber.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a mock stt.Transcriber. It returns Text/Err and records the
// audio buffers it was given.
type Transcriber struct {
	mu sync.Mutex

	Text string
	Err  error

	Calls [][]byte
}

// Transcribe records audio and returns Text, Err.
func (m *Transcriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]byte(nil), audio...))
	return m.Text, m.Err
}

// CallCount returns how many times Transcribe was called.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
