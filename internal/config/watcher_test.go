package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxtype/internal/config"
)

const watchBaseYAML = `
server:
  listen_addr: "127.0.0.1:4573"
  log_level: info
providers:
  chat:
    name: openrouter
`

const watchRetunedYAML = `
server:
  listen_addr: "127.0.0.1:4573"
  log_level: warn
providers:
  chat:
    name: local
paste:
  settle_ms: 120
`

// A YAML list where a scalar belongs fails decoding outright.
const watchBrokenYAML = `
server:
  log_level: [oops]
`

type reload struct {
	prev, next *config.Config
}

// startWatcher spins up a fast-polling watcher on path and funnels every
// notify call into the returned channel.
func startWatcher(t *testing.T, path string) (*config.Watcher, <-chan reload) {
	t.Helper()
	events := make(chan reload, 8)
	w, err := config.NewWatcher(path, func(prev, next *config.Config) {
		events <- reload{prev: prev, next: next}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, events
}

func awaitReload(t *testing.T, events <-chan reload) reload {
	t.Helper()
	select {
	case r := <-events:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed within 5s")
		return reload{}
	}
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcher_ServesInitialConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxtype.yaml")
	writeConfigFile(t, path, watchBaseYAML)

	w, _ := startWatcher(t, path)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current returned nil after construction")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.Chat.Name != "openrouter" {
		t.Errorf("chat provider = %q, want openrouter", cfg.Providers.Chat.Name)
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err == nil {
		t.Fatal("want error for missing file, got nil")
	}
}

func TestWatcher_ReportsChangedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxtype.yaml")
	writeConfigFile(t, path, watchBaseYAML)

	w, events := startWatcher(t, path)
	writeConfigFile(t, path, watchRetunedYAML)

	r := awaitReload(t, events)
	if r.prev == nil || r.next == nil {
		t.Fatal("notify received a nil config")
	}
	if r.prev.Server.LogLevel != config.LogInfo {
		t.Errorf("prev log level = %q, want %q", r.prev.Server.LogLevel, config.LogInfo)
	}
	if r.next.Server.LogLevel != config.LogWarn {
		t.Errorf("next log level = %q, want %q", r.next.Server.LogLevel, config.LogWarn)
	}
	if r.next.Paste.SettleMS != 120 {
		t.Errorf("next settle_ms = %d, want 120", r.next.Paste.SettleMS)
	}
	if got := w.Current(); got != r.next {
		t.Error("Current does not serve the config handed to notify")
	}
}

func TestWatcher_BrokenFileKeepsLastGood(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxtype.yaml")
	writeConfigFile(t, path, watchBaseYAML)

	w, events := startWatcher(t, path)

	// Break the file, let a few polls see it, then fix it. The watcher
	// must sit out the broken stretch without notifying.
	writeConfigFile(t, path, watchBrokenYAML)
	time.Sleep(100 * time.Millisecond)

	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current changed during broken stretch: log level = %q", cur.Server.LogLevel)
	}

	writeConfigFile(t, path, watchRetunedYAML)
	r := awaitReload(t, events)

	// prev must be the original config: the broken file never applied.
	if r.prev.Server.LogLevel != config.LogInfo {
		t.Errorf("prev log level = %q, want %q", r.prev.Server.LogLevel, config.LogInfo)
	}
	if r.next.Server.LogLevel != config.LogWarn {
		t.Errorf("next log level = %q, want %q", r.next.Server.LogLevel, config.LogWarn)
	}
	select {
	case extra := <-events:
		t.Errorf("unexpected second reload: next log level %q", extra.next.Server.LogLevel)
	default:
	}
}

func TestWatcher_TouchedButIdenticalFileStaysQuiet(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxtype.yaml")
	writeConfigFile(t, path, watchBaseYAML)

	_, events := startWatcher(t, path)

	// Bump the mtime without changing content, give the poller time to
	// look at it, then make a real change to flush the pipeline.
	stamp := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, path, watchRetunedYAML)

	r := awaitReload(t, events)
	if r.next.Server.LogLevel != config.LogWarn {
		t.Errorf("first reload is not the content change: log level = %q", r.next.Server.LogLevel)
	}
	select {
	case <-events:
		t.Error("touch-only change produced a reload")
	default:
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxtype.yaml")
	writeConfigFile(t, path, watchBaseYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	for range 3 {
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
