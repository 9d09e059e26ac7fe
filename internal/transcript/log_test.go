package transcript_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/murmur/internal/transcript"
)

func TestLog_StoreReturnsEntry(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 14, 15, 9, 26, 535897000, time.Local)
	l := transcript.NewLog(transcript.WithClock(func() time.Time { return fixed }))

	e := l.Store("hello", "User")
	if e.Sender != "User" || e.Text != "hello" {
		t.Errorf("Store() = %+v", e)
	}
	if want := fixed.Format(transcript.TimestampLayout); e.Timestamp != want {
		t.Errorf("Timestamp = %q, want %q", e.Timestamp, want)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC 3339: %v", e.Timestamp, err)
	}
}

func TestLog_PreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	l := transcript.NewLog()
	for i := range 5 {
		l.Store(fmt.Sprintf("msg-%d", i), "User")
	}

	got := l.Entries()
	if len(got) != 5 {
		t.Fatalf("len(Entries()) = %d, want 5", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("msg-%d", i); e.Text != want {
			t.Errorf("Entries()[%d].Text = %q, want %q", i, e.Text, want)
		}
	}
}

func TestLog_AcceptsEmptyTextAndAnySender(t *testing.T) {
	t.Parallel()

	l := transcript.NewLog()
	e := l.Store("", "")
	if e.Text != "" || e.Sender != "" {
		t.Errorf("Store(\"\", \"\") = %+v", e)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestLog_EntriesIsCopy(t *testing.T) {
	t.Parallel()

	l := transcript.NewLog()
	l.Store("original", "User")

	snapshot := l.Entries()
	snapshot[0].Text = "mutated"

	if got := l.Entries()[0].Text; got != "original" {
		t.Errorf("stored entry changed through snapshot: %q", got)
	}
}

func TestLog_ConcurrentStore(t *testing.T) {
	t.Parallel()

	l := transcript.NewLog()
	var wg sync.WaitGroup
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				l.Store(fmt.Sprintf("%d-%d", w, i), "User")
			}
		}()
	}
	wg.Wait()

	if got := l.Len(); got != 500 {
		t.Errorf("Len() = %d, want 500", got)
	}
}
