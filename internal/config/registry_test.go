package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	llmmock "github.com/MrWong99/murmur/pkg/provider/llm/mock"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
)

func TestRegistry_CreatePassesEntry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"}
	if _, err := reg.CreateLLM(entry); err != nil {
		t.Fatalf("CreateLLM() = %v", err)
	}
	if got.Model != entry.Model || got.APIKey != entry.APIKey {
		t.Errorf("factory got %+v, want %+v", got, entry)
	}
}

func TestRegistry_Unregistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "gemini"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(gemini) = %v, want ErrProviderNotRegistered", err)
	}
	// LLM names do not leak into the STT namespace.
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "openai"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT(openai) = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("model file missing")
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper-native", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, boom })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper-native"}); !errors.Is(err, boom) {
		t.Errorf("CreateSTT() = %v, want %v", err, boom)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	first := &sttmock.Transcriber{Text: "first"}
	second := &sttmock.Transcriber{Text: "second"}
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return first, nil })
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return second, nil })

	got, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"})
	if err != nil {
		t.Fatalf("CreateSTT() = %v", err)
	}
	if got != second {
		t.Error("second registration did not replace the first")
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	for _, n := range []string{"openai", "anyllm"} {
		reg.RegisterLLM(n, func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	}
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return &sttmock.Transcriber{}, nil })

	if got, want := reg.Names("llm"), []string{"anyllm", "openai"}; !slices.Equal(got, want) {
		t.Errorf("Names(llm) = %v, want %v", got, want)
	}
	if got, want := reg.Names("stt"), []string{"whisper"}; !slices.Equal(got, want) {
		t.Errorf("Names(stt) = %v, want %v", got, want)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts) = %v, want empty", got)
	}
}
