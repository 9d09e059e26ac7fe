package transcripttool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/murmur/internal/transcript"
)

func seededLog(t *testing.T, entries ...[2]string) *transcript.Log {
	t.Helper()
	l := transcript.NewLog()
	for _, e := range entries {
		l.Store(e[1], e[0])
	}
	return l
}

func decode(t *testing.T, out string) []transcript.Entry {
	t.Helper()
	var entries []transcript.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("failed to unmarshal: %v\noutput: %s", err, out)
	}
	return entries
}

// ─────────────────────────────────────────────────────────────────────────────
// search_transcript
// ─────────────────────────────────────────────────────────────────────────────

func TestSearch_MatchesCaseInsensitive(t *testing.T) {
	t.Parallel()
	l := seededLog(t,
		[2]string{"User", "Open the Weather page"},
		[2]string{"Agent", "Opened weather.com"},
		[2]string{"Dictate", "buy milk"},
	)

	out, err := makeSearchHandler(l)(context.Background(), `{"query":"weather"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decode(t, out)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(got), got)
	}
	if got[0].Sender != "User" || got[1].Sender != "Agent" {
		t.Errorf("entries not in chronological order: %+v", got)
	}
}

func TestSearch_SenderFilter(t *testing.T) {
	t.Parallel()
	l := seededLog(t,
		[2]string{"User", "note one"},
		[2]string{"Dictate", "note two"},
	)

	out, err := makeSearchHandler(l)(context.Background(), `{"query":"note","sender":"Dictate"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decode(t, out)
	if len(got) != 1 || got[0].Text != "note two" {
		t.Errorf("got %+v, want only the Dictate entry", got)
	}
}

func TestSearch_LimitKeepsNewest(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()
	for i := range 5 {
		l.Store(fmt.Sprintf("item %d", i), "User")
	}

	out, err := makeSearchHandler(l)(context.Background(), `{"query":"item","limit":2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decode(t, out)
	if len(got) != 2 || got[0].Text != "item 3" || got[1].Text != "item 4" {
		t.Errorf("got %+v, want items 3 and 4", got)
	}
}

func TestSearch_NoMatchIsEmptyArray(t *testing.T) {
	t.Parallel()
	out, err := makeSearchHandler(transcript.NewLog())(context.Background(), `{"query":"x"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "[]" {
		t.Errorf("out = %q, want []", out)
	}
}

func TestSearch_InvalidArgs(t *testing.T) {
	t.Parallel()
	h := makeSearchHandler(transcript.NewLog())

	for _, args := range []string{`{"query":""}`, `{}`, `not json`} {
		if _, err := h(context.Background(), args); err == nil {
			t.Errorf("args %q: expected error, got nil", args)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// recent_transcript
// ─────────────────────────────────────────────────────────────────────────────

func TestRecent_Limit(t *testing.T) {
	t.Parallel()
	l := transcript.NewLog()
	for i := range 15 {
		l.Store(fmt.Sprintf("m%d", i), "User")
	}

	tests := []struct {
		args string
		want int
		last string
	}{
		{`{"limit":3}`, 3, "m14"},
		{`{}`, defaultLimit, "m14"},
		{``, defaultLimit, "m14"},
		{`{"limit":500}`, 15, "m14"},
	}
	for _, tt := range tests {
		out, err := makeRecentHandler(l)(context.Background(), tt.args)
		if err != nil {
			t.Fatalf("args %q: unexpected error: %v", tt.args, err)
		}
		got := decode(t, out)
		if len(got) != tt.want {
			t.Errorf("args %q: got %d entries, want %d", tt.args, len(got), tt.want)
			continue
		}
		if got[len(got)-1].Text != tt.last {
			t.Errorf("args %q: last entry = %q, want %q", tt.args, got[len(got)-1].Text, tt.last)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// NewTools
// ─────────────────────────────────────────────────────────────────────────────

func TestNewTools(t *testing.T) {
	t.Parallel()
	ts := NewTools(transcript.NewLog())

	if len(ts) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(ts))
	}
	names := []string{ts[0].Definition.Name, ts[1].Definition.Name}
	if strings.Join(names, ",") != "search_transcript,recent_transcript" {
		t.Errorf("tool names = %v", names)
	}
	for _, tool := range ts {
		if tool.Handler == nil {
			t.Errorf("tool %q has nil handler", tool.Definition.Name)
		}
		if tool.Definition.Parameters["type"] != "object" {
			t.Errorf("tool %q parameters are not an object schema", tool.Definition.Name)
		}
		// Both tools take the same argument name for the entry cap.
		props, _ := tool.Definition.Parameters["properties"].(map[string]any)
		if _, ok := props["limit"]; !ok {
			t.Errorf("tool %q has no limit parameter", tool.Definition.Name)
		}
	}
}
