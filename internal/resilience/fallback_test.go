package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// script returns an fn for Execute that fails for the listed entries and
// records the order entries were tried in.
func script(tried *[]string, failing map[string]error) func(string) (string, error) {
	return func(v string) (string, error) {
		*tried = append(*tried, v)
		if err := failing[v]; err != nil {
			return "", err
		}
		return "from " + v, nil
	}
}

func newTrio(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("openai", "openai", cfg)
	fg.AddFallback("ollama", "ollama")
	fg.AddFallback("groq", "groq")
	return fg
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()

	errAnswer := errors.New("content filtered")

	tests := []struct {
		name      string
		isFailure func(error) bool
		failing   map[string]error
		want      string
		wantTried []string
		wantErr   []error
		notErr    error
	}{
		{
			name:      "primary answers",
			want:      "from openai",
			wantTried: []string{"openai"},
		},
		{
			name:      "falls through in order",
			failing:   map[string]error{"openai": errTest, "ollama": errTest},
			want:      "from groq",
			wantTried: []string{"openai", "ollama", "groq"},
		},
		{
			name:      "all fail wraps last error",
			failing:   map[string]error{"openai": errTest, "ollama": errTest, "groq": errAnswer},
			wantTried: []string{"openai", "ollama", "groq"},
			wantErr:   []error{ErrAllFailed, errAnswer},
		},
		{
			name:      "non-failure stops failover",
			isFailure: func(err error) bool { return !errors.Is(err, errAnswer) },
			failing:   map[string]error{"openai": errAnswer},
			wantTried: []string{"openai"},
			wantErr:   []error{errAnswer},
			notErr:    ErrAllFailed,
		},
		{
			name:      "cancellation is not a failure",
			failing:   map[string]error{"openai": context.Canceled},
			wantTried: []string{"openai"},
			wantErr:   []error{context.Canceled},
			notErr:    ErrAllFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fg := newTrio(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{IsFailure: tt.isFailure}})
			var tried []string
			got, err := ExecuteWithResult(context.Background(), fg, script(&tried, tt.failing))

			if len(tt.wantErr) == 0 && err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("err = %v, want it to match %v", err, want)
				}
			}
			if tt.notErr != nil && errors.Is(err, tt.notErr) {
				t.Errorf("err = %v, must not match %v", err, tt.notErr)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(tried, tt.wantTried) {
				t.Errorf("tried %v, want %v", tried, tt.wantTried)
			}
		})
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	fg := newTrio(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}})
	down := map[string]error{"openai": errTest}

	for range 2 {
		var tried []string
		if _, err := ExecuteWithResult(context.Background(), fg, script(&tried, down)); err != nil {
			t.Fatalf("warm-up: %v", err)
		}
	}

	var tried []string
	got, err := ExecuteWithResult(context.Background(), fg, script(&tried, nil))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != "from ollama" || !slices.Equal(tried, []string{"ollama"}) {
		t.Errorf("got %q after trying %v, want ollama only", got, tried)
	}
}

func TestFallbackGroup_DoneContextTriesNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tried []string
	err := newTrio(FallbackConfig{}).Execute(ctx, func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if !errors.Is(err, context.Canceled) || len(tried) != 0 {
		t.Errorf("Execute() = %v after trying %v, want context.Canceled and nothing tried", err, tried)
	}
}

func TestFallbackGroup_NamesAndPrimary(t *testing.T) {
	t.Parallel()

	fg := newTrio(FallbackConfig{})
	if got := fg.Names(); !slices.Equal(got, []string{"openai", "ollama", "groq"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := fg.Primary(); got != "openai" {
		t.Errorf("Primary() = %q, want openai", got)
	}
}
