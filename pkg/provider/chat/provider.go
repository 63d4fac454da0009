// Package chat defines the refinement backend abstraction. A backend is a
// chat-completion API that receives the fixed refinement instruction plus the
// dictated text and answers with the rewritten text.
//
// The backend set is closed: adding one means adding a [Name] constant and a
// [Client] implementation under pkg/provider/chat/, call sites stay
// untouched. Concrete implementations live in the subpackages openrouter,
// megallm and local; mock provides a test double.
package chat

import (
	"context"
	"strings"
)

// Name identifies one of the supported refinement backends.
type Name string

const (
	// OpenRouter is the hosted OpenAI-compatible aggregator. It is the
	// designated primary backend that unrecognized preference values
	// resolve to.
	OpenRouter Name = "openrouter"

	// MegaLLM is the hosted MegaLLM gateway.
	MegaLLM Name = "megallm"

	// Local is an Ollama instance on this machine, for refinement without
	// any text leaving the box.
	Local Name = "local"
)

// IsValid reports whether n is a known backend name.
func (n Name) IsValid() bool {
	switch n {
	case OpenRouter, MegaLLM, Local:
		return true
	}
	return false
}

// Resolve maps a free-form provider tag (as stored in user preferences) to a
// backend Name. Unrecognized or empty tags resolve to fallback.
func Resolve(tag string, fallback Name) Name {
	n := Name(strings.ToLower(strings.TrimSpace(tag)))
	if n.IsValid() {
		return n
	}
	return fallback
}

// Client sends refinement requests to one concrete backend.
//
// Implementations return *[ProviderError] for transport failures, non-2xx
// statuses and malformed response bodies. Callers surface those to the user
// as configuration problems instead of silently degrading to fallback text.
type Client interface {
	// Name reports the backend this client talks to.
	Name() Name

	// Complete performs a single system+user chat completion round trip
	// and returns the raw model output.
	Complete(ctx context.Context, req Request) (Response, error)
}

// ModelLister is implemented by backends that can enumerate the models
// available to the configured account.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}
