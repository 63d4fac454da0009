// Package paste inserts final text into the focused application.
//
// Insertion goes through the OS clipboard: write the text, give the
// clipboard time to settle, simulate the platform paste chord, then give
// the target application time to process it. The two delays are part of the
// contract; without the second one a caller hiding the capture indicator
// right after [Sequencer.Insert] would visually race the paste landing.
//
// The OS capabilities themselves are ports ([Clipboard],
// [KeystrokeInjector]) supplied by the embedding process.
package paste

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Clipboard is the shared OS clipboard.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// KeystrokeInjector simulates the platform paste chord (Ctrl+V, or Cmd+V on
// macOS) in the focused application.
type KeystrokeInjector interface {
	// InjectPaste returns [ErrUnsupported] when the platform cannot
	// synthesize input events.
	InjectPaste() error
}

// ErrUnsupported is returned by a port that cannot perform its operation on
// this platform or in this build.
var ErrUnsupported = errors.New("paste: unsupported on this platform")

const (
	// DefaultSettleDelay lets the clipboard settle before the paste chord.
	// Covers the fast path where refinement was skipped and the clipboard
	// write happens almost immediately after capture ends.
	DefaultSettleDelay = 300 * time.Millisecond

	// DefaultProcessDelay lets the target application process the paste
	// before Insert returns.
	DefaultProcessDelay = 500 * time.Millisecond
)

// UnsupportedClipboard is a [Clipboard] for builds without an OS clipboard
// adapter. Every operation fails with [ErrUnsupported].
type UnsupportedClipboard struct{}

func (UnsupportedClipboard) ReadText() (string, error) { return "", ErrUnsupported }
func (UnsupportedClipboard) WriteText(string) error    { return ErrUnsupported }

// UnsupportedInjector is a [KeystrokeInjector] for builds without an OS
// input adapter. InjectPaste always fails with [ErrUnsupported], leaving
// inserted text on the clipboard.
type UnsupportedInjector struct{}

func (UnsupportedInjector) InjectPaste() error { return ErrUnsupported }

// Option is a functional option for configuring a [Sequencer].
type Option func(*Sequencer)

// WithDelays overrides the settle and process delays. Mainly for tests.
func WithDelays(settle, process time.Duration) Option {
	return func(s *Sequencer) {
		s.settle = settle
		s.process = process
	}
}

// Sequencer orders the clipboard write, the injected paste chord, and the
// surrounding delays. Safe for concurrent use, though a single dictation
// session never runs two insertions in parallel.
type Sequencer struct {
	clipboard Clipboard
	injector  KeystrokeInjector
	settle    time.Duration
	process   time.Duration
}

// NewSequencer returns a [Sequencer] using the given ports.
func NewSequencer(clipboard Clipboard, injector KeystrokeInjector, opts ...Option) *Sequencer {
	s := &Sequencer{
		clipboard: clipboard,
		injector:  injector,
		settle:    DefaultSettleDelay,
		process:   DefaultProcessDelay,
	}
	for _, op := range opts {
		op(s)
	}
	return s
}

// Insert writes text to the clipboard and simulates the paste chord.
//
// The returned bool is true when injection was attempted and the OS layer
// reported success; false means the text is on the clipboard but the user
// must paste manually. An error is returned when the clipboard write itself
// fails, since then there is nothing for the user to paste, or when ctx is
// cancelled mid-sequence.
func (s *Sequencer) Insert(ctx context.Context, text string) (bool, error) {
	if err := s.clipboard.WriteText(text); err != nil {
		return false, fmt.Errorf("paste: write clipboard: %w", err)
	}

	if err := wait(ctx, s.settle); err != nil {
		return false, err
	}

	injected := true
	if err := s.injector.InjectPaste(); err != nil {
		slog.Warn("paste: keystroke injection failed, text left on clipboard", "error", err)
		injected = false
	}

	if err := wait(ctx, s.process); err != nil {
		return injected, err
	}
	return injected, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
