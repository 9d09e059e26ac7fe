// Package transcript holds the process-wide record of exchanged dictation
// messages and the vocabulary correction applied to speech-derived text.
//
// [Log] is an append-only, in-memory, insertion-ordered store shared by every
// dictation connection and by the detached agent tasks. It is never evicted
// and does not survive a restart.
package transcript

import (
	"sync"
	"time"
)

// TimestampLayout is the format of [Entry.Timestamp].
const TimestampLayout = time.RFC3339Nano

// Entry is one stored message. Entries are never mutated after Store
// returns them.
type Entry struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Option configures a [Log].
type Option func(*Log)

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewLog returns an empty Log.
func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Store appends a new entry stamped with the current local time and returns
// it. Empty text and any sender are accepted.
func (l *Log) Store(text, sender string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Sender:    sender,
		Text:      text,
		Timestamp: l.now().Local().Format(TimestampLayout),
	}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
