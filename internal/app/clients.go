package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/voxtype/internal/refine"
	"github.com/MrWong99/voxtype/internal/resilience"
	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

// ChatClientBuilder constructs a ready-to-use client for one refinement
// backend. Builders run on every completion so that a key added to the
// keychain or preferences file is picked up without a daemon restart.
type ChatClientBuilder func() (chat.Client, error)

// modelSource yields the configured model for a backend. *prefs.Store
// satisfies it.
type modelSource interface {
	ModelID(name chat.Name) string
}

// clientSet resolves refinement backends for the orchestrator. Each resolved
// backend is wrapped once in a breaker-guarded fallback chain ending at the
// local backend, so a cloud outage degrades to on-device refinement instead
// of an error. The wrappers are cached; breaker state persists across
// dictations while the clients inside them are rebuilt per request.
type clientSet struct {
	builders map[chat.Name]ChatClientBuilder
	models   modelSource

	mu      sync.Mutex
	wrapped map[chat.Name]chat.Client
}

var _ refine.Clients = (*clientSet)(nil)

func newClientSet(builders map[chat.Name]ChatClientBuilder, models modelSource) *clientSet {
	return &clientSet{
		builders: builders,
		models:   models,
		wrapped:  make(map[chat.Name]chat.Client),
	}
}

// ClientFor implements [refine.Clients].
func (s *clientSet) ClientFor(name chat.Name) (chat.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.wrapped[name]; ok {
		return c, nil
	}
	build, ok := s.builders[name]
	if !ok {
		return nil, fmt.Errorf("app: no %s refinement backend configured", name)
	}

	fb := resilience.NewChatFallback(
		&rebuildingClient{name: name, build: build},
		string(name),
		resilience.FallbackConfig{},
	)
	// A request prepared for a cloud backend names a cloud model. The
	// fallback swaps in the locally configured one so Ollama is not asked
	// for a model it does not serve.
	if name != chat.Local {
		if localBuild, ok := s.builders[chat.Local]; ok {
			fb.AddFallback(string(chat.Local), &localFallback{
				inner:  &rebuildingClient{name: chat.Local, build: localBuild},
				models: s.models,
			})
		}
	}

	s.wrapped[name] = fb
	return fb, nil
}

// rebuildingClient defers construction to completion time so each request
// sees the credentials currently on record.
type rebuildingClient struct {
	name  chat.Name
	build ChatClientBuilder
}

var _ chat.Client = (*rebuildingClient)(nil)

func (c *rebuildingClient) Name() chat.Name { return c.name }

func (c *rebuildingClient) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	client, err := c.build()
	if err != nil {
		return chat.Response{}, fmt.Errorf("app: build %s chat client: %w", c.name, err)
	}
	return client.Complete(ctx, req)
}

// localFallback rewrites the model in flight when a request built for
// another backend lands on the local one.
type localFallback struct {
	inner  chat.Client
	models modelSource
}

var _ chat.Client = (*localFallback)(nil)

func (c *localFallback) Name() chat.Name { return chat.Local }

func (c *localFallback) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	req.Model = c.models.ModelID(chat.Local)
	return c.inner.Complete(ctx, req)
}
