package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every backend in a [Chain] either failed or
// was skipped because its breaker is open.
var ErrExhausted = errors.New("resilience: all backends failed")

// FallbackConfig configures a failover chain. The breaker settings apply to
// every backend; the Name field is replaced per backend.
type FallbackConfig struct {
	Breaker BreakerConfig
}

// link pairs one backend with its dedicated breaker.
type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds an ordered list of interchangeable backends, each guarded by
// its own [Breaker]. [Try] walks the chain front to back, so the first
// backend added is the preferred one and the rest are fallbacks.
//
// Backends must all be registered before the chain is used; Add is not safe
// to call concurrently with Try.
type Chain[T any] struct {
	cfg   FallbackConfig
	links []link[T]
}

// NewChain creates an empty chain. Register the preferred backend first with
// [Chain.Add].
func NewChain[T any](cfg FallbackConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a backend to the end of the chain under the given name. The
// name labels the backend in logs and in its breaker.
func (c *Chain[T]) Add(name string, backend T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.links = append(c.links, link[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bc),
	})
}

// Try invokes fn against each chain backend in order until one call
// succeeds, skipping backends whose breaker is open. The first success wins;
// when no backend succeeds the last error is folded into [ErrExhausted].
//
// Try is a free function because methods cannot introduce the result type
// parameter R.
func Try[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.links {
		l := &c.links[i]
		var res R
		err := l.breaker.Do(func() error {
			var callErr error
			res, callErr = fn(l.backend)
			return callErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("resilience: skipping backend, breaker open", "backend", l.name)
			continue
		}
		slog.Warn("resilience: backend failed, trying next",
			"backend", l.name,
			"error", err,
		)
	}
	if lastErr == nil {
		return zero, fmt.Errorf("%w: no backends registered", ErrExhausted)
	}
	return zero, fmt.Errorf("%w: %d tried, last error: %v", ErrExhausted, len(c.links), lastErr)
}
