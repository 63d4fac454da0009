// Package resilience keeps the dictation pipeline responsive while individual
// backends misbehave.
//
// Every utterance touches remote services twice: the transcription stream
// that produces the raw text and the chat completion that refines it. A
// backend that keeps timing out would otherwise add its full timeout to every
// single dictation. [Breaker] cuts that short by rejecting calls to a backend
// with a recent failure streak, and [Chain] composes several backends with
// one breaker each so a tripped primary is bypassed in favour of the next
// healthy candidate.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] without invoking the call when
// the breaker is rejecting traffic.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState identifies the operating mode of a [Breaker].
type BreakerState uint8

const (
	// BreakerClosed lets every call through. This is the initial state.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call until the cooldown elapses.
	BreakerOpen

	// BreakerProbing admits a limited number of trial calls after the
	// cooldown. Their outcome decides between closing and re-opening.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. The zero value selects the defaults noted
// on each field.
type BreakerConfig struct {
	// Name labels the guarded backend in log output, typically the provider
	// name ("deepgram", "openrouter").
	Name string

	// TripAfter is how many consecutive failures open the breaker. Default 5.
	TripAfter int

	// Cooldown is how long an open breaker rejects calls before it starts
	// probing again. The clock restarts on every recorded failure. Default 30s.
	Cooldown time.Duration

	// ProbeBudget is how many trial calls the probing state admits, and also
	// how many of them must succeed before the breaker closes. Default 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker guarding calls to one backend.
type Breaker struct {
	name        string
	tripAfter   int
	cooldown    time.Duration
	probeBudget int

	mu         sync.Mutex
	state      BreakerState
	failStreak int
	lastFailAt time.Time
	probesSent int
	probesOK   int
}

// NewBreaker builds a [Breaker] from cfg, substituting defaults for zero
// fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
	}
}

// Do invokes fn if the breaker admits the call and feeds the outcome back
// into the state machine. When the call is rejected, [ErrBreakerOpen] is
// returned and fn is never invoked; otherwise fn's own error is returned
// unchanged.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed, reporting whether it counts as a
// probe. It performs the open-to-probing transition when the cooldown has
// elapsed.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return false, nil

	case BreakerOpen:
		if time.Since(b.lastFailAt) < b.cooldown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probesSent = 0
		b.probesOK = 0
		slog.Info("resilience: breaker probing backend", "backend", b.name)
		fallthrough

	case BreakerProbing:
		if b.probesSent >= b.probeBudget {
			return false, ErrBreakerOpen
		}
		b.probesSent++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.lastFailAt = time.Now()
		if probe {
			// One failed probe is enough evidence that the backend is still
			// down; stop probing for another cooldown.
			b.state = BreakerOpen
			slog.Warn("resilience: probe failed, breaker re-opened", "backend", b.name)
			return
		}
		b.failStreak++
		if b.state == BreakerClosed && b.failStreak >= b.tripAfter {
			b.state = BreakerOpen
			slog.Warn("resilience: breaker tripped",
				"backend", b.name,
				"consecutive_failures", b.failStreak,
			)
		}
		return
	}

	if probe {
		b.probesOK++
		if b.probesOK >= b.probeBudget {
			b.state = BreakerClosed
			b.failStreak = 0
			slog.Info("resilience: breaker closed after successful probes", "backend", b.name)
		}
		return
	}
	b.failStreak = 0
}

// State returns the breaker's current mode. An open breaker whose cooldown
// has elapsed reports [BreakerProbing] even though the transition itself
// happens on the next [Breaker.Do].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.lastFailAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker back to [BreakerClosed] and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failStreak = 0
	b.probesSent = 0
	b.probesOK = 0
	slog.Debug("resilience: breaker reset", "backend", b.name)
}
