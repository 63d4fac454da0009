// Package refine turns raw dictated text into final, insertable text.
//
// The pipeline has three stages, applied in order:
//
//  1. [symbols.Replacer]: spoken symbol names become literal glyphs.
//  2. AI refinement through a [chat.Client], optional and gated by the
//     user's behavior preferences, which are re-read on every call.
//  3. [Validate]: accepts the model output or falls back to rule-cleaned
//     text when the model chatted instead of refining.
//
// Provider failures (transport, auth, malformed responses) surface as errors
// carrying a *[chat.ProviderError]; they are configuration problems the user
// must see, not content problems the validator may paper over.
package refine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voxtype/internal/observe"
	"github.com/MrWong99/voxtype/internal/prefs"
	"github.com/MrWong99/voxtype/internal/symbols"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dictation is latency-sensitive: a refinement that arrives after the user
// has moved on is worthless, so the network budget stays in seconds.
const defaultTimeout = 5 * time.Second

// PrefsSource is the read-only view of user preferences the pipeline needs.
// Implementations must serve the latest persisted values on every call;
// the pipeline never caches them.
type PrefsSource interface {
	// Behavior returns the current behavior preferences.
	Behavior() (prefs.Behavior, error)

	// ModelID returns the model identifier configured for provider,
	// falling back to the provider's default when unset.
	ModelID(provider chat.Name) string
}

// Clients resolves a backend name to a ready-to-use client. Implementations
// re-read credentials as needed so that key changes take effect without a
// restart.
type Clients interface {
	ClientFor(name chat.Name) (chat.Client, error)
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithTimeout bounds each provider round trip. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithPrimary sets the backend used when the stored provider preference is
// unrecognized. Default: [chat.OpenRouter].
func WithPrimary(name chat.Name) Option {
	return func(o *Orchestrator) {
		o.primary = name
	}
}

// WithReplacer overrides the symbol replacer. Default: [symbols.Default].
func WithReplacer(r *symbols.Replacer) Option {
	return func(o *Orchestrator) {
		o.replacer = r
	}
}

// WithMetrics overrides the instrument set provider round trips are counted
// on. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator sequences the refinement stages. It is safe for concurrent
// use; every invocation is independent.
type Orchestrator struct {
	replacer *symbols.Replacer
	prefs    PrefsSource
	clients  Clients
	primary  chat.Name
	timeout  time.Duration
	metrics  *observe.Metrics
}

// New constructs an [Orchestrator] reading preferences from source and
// resolving backends through clients.
func New(source PrefsSource, clients Clients, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		replacer: symbols.Default(),
		prefs:    source,
		clients:  clients,
		primary:  chat.OpenRouter,
		timeout:  defaultTimeout,
		metrics:  observe.DefaultMetrics(),
	}
	for _, op := range opts {
		op(o)
	}
	return o
}

// Refine converts raw dictated text into final text.
//
// providerOverride, when a valid backend name, wins over the stored provider
// preference; pass "" for no override. With AI refinement disabled the
// symbol-replaced text is returned unchanged as a fallback result and no
// network call happens.
//
// The returned error wraps a *[chat.ProviderError] when the backend
// conversation failed.
func (o *Orchestrator) Refine(ctx context.Context, rawText string, providerOverride chat.Name) (Result, error) {
	log := observe.Logger(ctx)
	withSymbols := o.replacer.Replace(rawText)

	behavior, err := o.prefs.Behavior()
	if err != nil {
		log.Warn("refine: reading behavior prefs failed, using defaults", "error", err)
		behavior = prefs.DefaultBehavior()
	}

	if !behavior.AIRefine {
		log.Debug("refine: ai refinement disabled, returning symbol-replaced text")
		return Result{Text: withSymbols, Fallback: true}, nil
	}

	name := chat.Resolve(behavior.AIProvider, o.primary)
	if providerOverride != "" && providerOverride.IsValid() {
		name = providerOverride
	}

	client, err := o.clients.ClientFor(name)
	if err != nil {
		return Result{}, fmt.Errorf("refine: %s client: %w", name, err)
	}

	req := chat.Request{
		Model:    o.prefs.ModelID(name),
		System:   systemPrompt,
		UserText: withSymbols,
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cctx, span := observe.StartSpan(cctx, "refine.chat", trace.WithAttributes(
		attribute.String("provider", string(name)),
		attribute.String("model", req.Model),
	))
	resp, err := client.Complete(cctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordProviderRequest(cctx, string(name), "chat", status)
	span.End()
	if err != nil {
		return Result{}, fmt.Errorf("refine: %s: %w", name, err)
	}

	cleaned := stripThinkBlocks(resp.Content)
	result := Validate(cleaned, withSymbols)

	log.Debug("refine: completed",
		"provider", name,
		"model", req.Model,
		"fallback", result.Fallback,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return result, nil
}

// stripThinkBlocks removes <think>...</think> reasoning blocks that some
// models emit before their answer. Matched pairs are removed repeatedly; an
// unmatched open tag is left in place.
func stripThinkBlocks(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start < 0 {
			break
		}
		rel := strings.Index(s[start:], "</think>")
		if rel < 0 {
			break
		}
		end := start + rel + len("</think>")
		s = s[:start] + s[end:]
	}
	return strings.TrimSpace(s)
}
