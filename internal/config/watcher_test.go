package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/murmur/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
mcp:
  servers:
    - name: playwright
      command: npx @playwright/mcp@latest
transcript:
  vocabulary: [Playwright]
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
mcp:
  servers:
    - name: playwright
      command: npx @playwright/mcp@latest
transcript:
  vocabulary: [Playwright, GitHub]
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// startWatcher writes initial to a temp config file and runs a watcher on it
// until the test ends. Every delivered pair is sent on the returned channel.
func startWatcher(t *testing.T, initial string) (string, *config.Watcher, <-chan [2]*config.Config) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, initial)

	changes := make(chan [2]*config.Config, 8)
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		changes <- [2]*config.Config{old, new}
	}, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() = %v", err)
		}
	})
	return cfgPath, w, changes
}

func expectNoChange(t *testing.T, changes <-chan [2]*config.Config) {
	t.Helper()
	select {
	case c := <-changes:
		t.Fatalf("unexpected change delivered: %+v -> %+v", c[0].Server, c[1].Server)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	_, w, _ := startWatcher(t, watcherValidYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DeliversValidEdit(t *testing.T) {
	t.Parallel()

	cfgPath, w, changes := startWatcher(t, watcherValidYAML)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	var got [2]*config.Config
	select {
	case got = <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("change was not delivered")
	}

	if got[0].Server.LogLevel != config.LogInfo || got[1].Server.LogLevel != config.LogDebug {
		t.Errorf("log_level %q -> %q, want info -> debug", got[0].Server.LogLevel, got[1].Server.LogLevel)
	}
	if cur := w.Current(); cur != got[1] {
		t.Error("Current() is not the delivered config")
	}

	d := config.Diff(got[0], got[1])
	if !d.LogLevelChanged || !d.VocabularyChanged || len(d.RestartRequired) != 0 {
		t.Errorf("Diff = %+v, want log level and vocabulary only", d)
	}
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	t.Parallel()

	cfgPath, _, changes := startWatcher(t, watcherValidYAML)

	tmp := cfgPath + ".swp"
	writeFile(t, tmp, watcherUpdatedYAML)
	if err := os.Rename(tmp, cfgPath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case got := <-changes:
		if got[1].Server.LogLevel != config.LogDebug {
			t.Errorf("new log_level = %q, want debug", got[1].Server.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change was not delivered after rename")
	}
}

func TestWatcher_InvalidEditKeepsOldConfig(t *testing.T) {
	t.Parallel()

	cfgPath, w, changes := startWatcher(t, watcherValidYAML)
	writeFile(t, cfgPath, watcherInvalidYAML)

	expectNoChange(t, changes)
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want previous %q", cur.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_SameContentIgnored(t *testing.T) {
	t.Parallel()

	cfgPath, _, changes := startWatcher(t, watcherValidYAML)
	writeFile(t, cfgPath, watcherValidYAML)

	expectNoChange(t, changes)
}

func TestWatcher_SiblingFilesIgnored(t *testing.T) {
	t.Parallel()

	cfgPath, _, changes := startWatcher(t, watcherValidYAML)
	writeFile(t, filepath.Join(filepath.Dir(cfgPath), "other.yaml"), watcherUpdatedYAML)

	expectNoChange(t, changes)
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher() on a missing file returned nil error")
	}
}
