package resilience

import (
	"context"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

// ChatFallback implements [chat.Client] with automatic failover across
// multiple chat completion backends. Each backend has its own breaker; when
// the primary fails or its breaker is open, the next healthy fallback is
// tried.
//
// The refinement pipeline itself never retries a request. Wrapping its client
// in a ChatFallback is how the app keeps cleanup working when the configured
// cloud provider is down: the same request lands on a fallback backend
// (typically a local model) instead.
type ChatFallback struct {
	primary chat.Client
	chain   *Chain[chat.Client]
}

// Compile-time interface assertion.
var _ chat.Client = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred
// backend.
func NewChatFallback(primary chat.Client, primaryName string, cfg FallbackConfig) *ChatFallback {
	c := NewChain[chat.Client](cfg)
	c.Add(primaryName, primary)
	return &ChatFallback{primary: primary, chain: c}
}

// AddFallback registers an additional chat client as a fallback. Fallbacks
// are tried in registration order.
func (f *ChatFallback) AddFallback(name string, client chat.Client) {
	f.chain.Add(name, client)
}

// Name returns the primary client's name. It does not change on failover:
// the identifier is static metadata, and log fields attached per request
// record which backend actually served a completion.
func (f *ChatFallback) Name() chat.Name {
	return f.primary.Name()
}

// Complete sends the request to the first healthy backend and returns its
// response. Note that the model identifier travels inside req, so fallbacks
// must either accept the same identifier or rewrite it the way the app's
// local fallback does.
func (f *ChatFallback) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	return Try(f.chain, func(c chat.Client) (chat.Response, error) {
		return c.Complete(ctx, req)
	})
}
