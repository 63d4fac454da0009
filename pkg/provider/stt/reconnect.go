package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector monitors a streaming transcription session and automatically
// reopens it on disconnection, so a flaky network does not end the user's
// dictation.
//
// Callers obtain the initial session via [Reconnector.Connect], then call
// [Reconnector.Monitor] to start a background goroutine that watches for
// drops. When a drop is detected (via [Reconnector.NotifyDisconnect]), the
// monitor attempts to reopen the stream with exponential backoff and invokes
// the configured OnReconnect callback on success. Audio sent between the
// drop and the reconnect is lost; the vendor keeps no buffer for us.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	provider    Provider
	cfg         StreamConfig
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(SessionHandle)

	mu           sync.Mutex
	session      SessionHandle
	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when a disconnect is detected
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Provider is the STT backend used to open sessions.
	Provider Provider

	// Stream is the stream configuration used for every (re)connect.
	Stream StreamConfig

	// MaxRetries is the maximum number of reconnection attempts before
	// giving up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection with the new
	// session. May be nil.
	OnReconnect func(SessionHandle)
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		provider:     cfg.Provider,
		cfg:          cfg.Stream,
		maxRetries:   maxRetries,
		backoff:      backoff,
		maxBackoff:   maxBackoff,
		onReconnect:  cfg.OnReconnect,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
}

// Connect opens the initial streaming session.
func (r *Reconnector) Connect(ctx context.Context) (SessionHandle, error) {
	sess, err := r.provider.StartStream(ctx, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("stt: reconnector initial connect: %w", err)
	}

	r.mu.Lock()
	r.session = sess
	r.mu.Unlock()

	return sess, nil
}

// Monitor starts monitoring the session in a background goroutine.
// If a disconnection is signalled via [Reconnector.NotifyDisconnect], it
// attempts reconnection with exponential backoff.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect signals the monitor that the stream has been lost and
// reconnection should be attempted. Safe to call multiple times; only the
// first call per reconnection cycle has effect.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
		// Already signalled; avoid blocking.
	}
}

// Stop halts monitoring and closes the current session.
// Safe to call multiple times.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	sess := r.session
	r.session = nil
	r.mu.Unlock()

	if sess != nil {
		return sess.Close()
	}
	return nil
}

// Session returns the current active session. May return nil during
// reconnection.
func (r *Reconnector) Session() SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// monitorLoop waits for disconnect notifications and attempts reconnection.
func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

// attemptReconnect tries to reopen the stream with exponential backoff.
func (r *Reconnector) attemptReconnect(ctx context.Context) {
	currentBackoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("stt: attempting stream reconnection",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		sess, err := r.provider.StartStream(ctx, r.cfg)
		if err == nil {
			r.mu.Lock()
			oldSess := r.session
			r.session = sess
			r.mu.Unlock()

			// Close the old (failed) session to release its resources.
			if oldSess != nil {
				_ = oldSess.Close()
			}

			slog.Info("stt: stream reconnection successful", "attempt", attempt)

			if r.onReconnect != nil {
				r.onReconnect(sess)
			}
			return
		}

		slog.Warn("stt: stream reconnection attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("stt: stream reconnection failed after max retries",
		"max_retries", r.maxRetries,
	)
}
