package react

import (
	"errors"
	"testing"
)

func TestFinalText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  *Result
		want    string
		wantErr error
	}{
		{"nil result", nil, "", ErrEmptyAnswer},
		{"no messages", &Result{}, "", ErrEmptyAnswer},
		{"text", &Result{Messages: []Message{{Content: Text("done")}}}, "done", nil},
		{
			name:   "fragments joined without separator",
			result: &Result{Messages: []Message{{Content: Fragments{"Hel", "lo", " there"}}}},
			want:   "Hello there",
		},
		{
			name: "last message wins",
			result: &Result{Messages: []Message{
				{Content: Text("thinking")},
				{Content: Text("tool output")},
				{Content: Text("answer")},
			}},
			want: "answer",
		},
		{"empty text is a valid answer", &Result{Messages: []Message{{Content: Text("")}}}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FinalText(tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FinalText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFinalText_NilContent(t *testing.T) {
	t.Parallel()
	if _, err := FinalText(&Result{Messages: []Message{{}}}); err == nil {
		t.Error("expected error for nil content")
	}
}
