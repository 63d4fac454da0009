// Package local provides the [chat.Client] for a machine-local Ollama
// instance through github.com/mozilla-ai/any-llm-go. Refinement through this
// backend keeps dictated text on the box.
package local

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

// DefaultModel is used when no model preference is stored. Small enough to
// answer a short refinement prompt quickly on CPU-only machines.
const DefaultModel = "llama3.2"

// config holds optional configuration for the client.
type config struct {
	baseURL string
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the Ollama endpoint. Without it the any-llm default
// of http://localhost:11434 is used.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// Client implements [chat.Client] against a local Ollama server.
type Client struct {
	backend anyllmlib.Provider
}

// Ensure Client implements chat.Client at compile time.
var _ chat.Client = (*Client)(nil)

// New constructs a local Ollama client.
func New(opts ...Option) (*Client, error) {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var libOpts []anyllmlib.Option
	if cfg.baseURL != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(cfg.baseURL))
	}

	backend, err := ollama.New(libOpts...)
	if err != nil {
		return nil, fmt.Errorf("local: create ollama backend: %w", err)
	}
	return &Client{backend: backend}, nil
}

// Name implements chat.Client.
func (c *Client) Name() chat.Name { return chat.Local }

// Complete implements chat.Client.
func (c *Client) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	if req.Model == "" {
		return chat.Response{}, fmt.Errorf("local: model must not be empty")
	}

	params := anyllmlib.CompletionParams{
		Model: req.Model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: req.System},
			{Role: anyllmlib.RoleUser, Content: req.UserText},
		},
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.Local,
			Detail:   "completion",
			Err:      err,
		}
	}
	if len(resp.Choices) == 0 {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.Local,
			Detail:   "empty choices in response",
		}
	}

	out := chat.Response{Content: resp.Choices[0].Message.ContentString()}
	if resp.Usage != nil {
		out.Usage = chat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}
