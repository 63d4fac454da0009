package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher re-checks the config file.
const defaultPollInterval = 5 * time.Second

// Watcher keeps a running daemon in sync with its config file. It polls the
// file, re-parses it when the content changes, and reports every valid new
// config through the notify callback. A file that stops parsing leaves the
// last good config in place until it is fixed.
//
// Detection is by polling, which keeps working when an editor replaces the
// file by rename instead of writing in place.
type Watcher struct {
	path     string
	interval time.Duration
	notify   func(prev, next *Config)

	mu      sync.Mutex
	current *Config
	fp      fingerprint
	bad     int

	done chan struct{}
	once sync.Once
}

// fingerprint is one observed state of the config file. Size and mtime serve
// the cheap no-change check; the hash decides whether content changed.
type fingerprint struct {
	size    int64
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll interval. Values <= 0 keep the default of 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config file at path and starts polling it for changes.
// notify, when non-nil, runs on the watcher goroutine with the previous and
// the newly loaded config each time the file content changes and still
// parses. [Watcher.Close] stops the polling.
func NewWatcher(path string, notify func(prev, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		notify:   notify,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current = cfg
	w.fp = fp

	go w.run()
	return w, nil
}

// Current returns the last successfully loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops the polling goroutine. Safe to call repeatedly.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

func (w *Watcher) run() {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.tick()
		}
	}
}

// tick is one poll step. Only a stat when the file looks untouched; a full
// read, parse and hash when it does not.
func (w *Watcher) tick() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.fail(fmt.Errorf("stat: %w", err))
		return
	}

	w.mu.Lock()
	untouched := info.Size() == w.fp.size && info.ModTime().Equal(w.fp.modTime)
	if untouched {
		w.bad = 0
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, fp, err := w.read()
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	w.bad = 0
	if fp.sum == w.fp.sum {
		// Touched but identical. Record the new stat so the cheap check
		// holds again.
		w.fp = fp
		w.mu.Unlock()
		return
	}
	prev := w.current
	w.current = cfg
	w.fp = fp
	w.mu.Unlock()

	slog.Info("config: file reloaded", "path", w.path)
	if w.notify != nil {
		// Outside the lock so the callback may call Current.
		w.notify(prev, cfg)
	}
}

// fail tracks a streak of broken polls. A half-written file from a
// non-atomic save fixes itself by the next tick, so only a streak warns,
// and only once.
func (w *Watcher) fail(err error) {
	w.mu.Lock()
	w.bad++
	streak := w.bad
	w.mu.Unlock()

	if streak == 2 {
		slog.Warn("config: reload failing, keeping last good config", "path", w.path, "error", err)
		return
	}
	slog.Debug("config: reload attempt failed", "path", w.path, "error", err)
}

// read parses the file and fingerprints the bytes it parsed. Stat runs
// first: a write landing between stat and read leaves a stale mtime in the
// fingerprint, and the next poll re-reads instead of missing the change.
func (w *Watcher) read() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	fp := fingerprint{
		size:    info.Size(),
		modTime: info.ModTime(),
		sum:     sha256.Sum256(data),
	}
	return cfg, fp, nil
}
