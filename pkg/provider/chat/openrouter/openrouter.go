// Package openrouter provides the [chat.Client] for the OpenRouter
// OpenAI-compatible API.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

const (
	// DefaultBaseURL is the OpenRouter OpenAI-compatible endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when no model preference is stored.
	DefaultModel = "openai/gpt-oss-20b:free"

	// Dictation is latency-sensitive; a refinement that takes longer than
	// this is worse than no refinement.
	defaultTimeout = 5 * time.Second
)

// config holds optional configuration for the client.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenRouter base URL. Used in tests and
// for self-hosted OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Client implements [chat.Client] using the OpenAI SDK pointed at the
// OpenRouter endpoint.
type Client struct {
	client oai.Client
}

// Ensure Client implements chat.Client at compile time.
var _ chat.Client = (*Client)(nil)

// New constructs an OpenRouter client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: apiKey must not be empty")
	}

	cfg := &config{
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	client := oai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	)
	return &Client{client: client}, nil
}

// Name implements chat.Client.
func (c *Client) Name() chat.Name { return chat.OpenRouter }

// Complete implements chat.Client.
func (c *Client) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	if req.Model == "" {
		return chat.Response{}, fmt.Errorf("openrouter: model must not be empty")
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.System),
			oai.UserMessage(req.UserText),
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		perr := &chat.ProviderError{
			Provider: chat.OpenRouter,
			Detail:   "chat completion",
			Err:      err,
		}
		var apierr *oai.Error
		if errors.As(err, &apierr) {
			perr.Status = apierr.StatusCode
		}
		return chat.Response{}, perr
	}
	if len(resp.Choices) == 0 {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.OpenRouter,
			Detail:   "empty choices in response",
		}
	}

	return chat.Response{
		Content: resp.Choices[0].Message.Content,
		Usage: chat.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
