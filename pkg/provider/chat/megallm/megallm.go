// Package megallm provides the [chat.Client] for the MegaLLM gateway.
//
// MegaLLM speaks the OpenAI chat-completions wire format but is not served
// through the SDK here; the raw client keeps the error surface (status code
// plus body) intact for the "check your API key" style messages the app
// shows on provider failures.
package megallm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

const (
	// DefaultBaseURL is the MegaLLM API root.
	DefaultBaseURL = "https://ai.megallm.io/v1"

	// DefaultModel is used when no model preference is stored.
	DefaultModel = "gpt-4"

	defaultTimeout = 5 * time.Second

	// maxErrorBody caps how much of an error response body is copied into
	// the returned ProviderError.
	maxErrorBody = 512
)

// config holds optional configuration for the client.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default MegaLLM base URL.
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

// Client implements [chat.Client] against the MegaLLM HTTP API.
type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// Ensure Client implements chat.Client and chat.ModelLister at compile time.
var (
	_ chat.Client      = (*Client)(nil)
	_ chat.ModelLister = (*Client)(nil)
)

// New constructs a MegaLLM client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("megallm: apiKey must not be empty")
	}

	cfg := &config{
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(cfg.baseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.timeout},
	}, nil
}

// Name implements chat.Client.
func (c *Client) Name() chat.Name { return chat.MegaLLM }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// Complete implements chat.Client.
func (c *Client) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	if req.Model == "" {
		return chat.Response{}, fmt.Errorf("megallm: model must not be empty")
	}

	payload, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.UserText},
		},
	})
	if err != nil {
		return chat.Response{}, fmt.Errorf("megallm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return chat.Response{}, fmt.Errorf("megallm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "send request",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "read response body",
			Err:      err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Status:   resp.StatusCode,
			Detail:   truncate(string(body), maxErrorBody),
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "decode response body",
			Err:      err,
		}
	}
	if len(decoded.Choices) == 0 {
		return chat.Response{}, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "empty choices in response",
		}
	}

	return chat.Response{
		Content: decoded.Choices[0].Message.Content,
		Usage: chat.Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}

// ListModels implements chat.ModelLister. It doubles as the lightweight
// connectivity check used by the settings "test connection" action.
func (c *Client) ListModels(ctx context.Context) ([]chat.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("megallm: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "send models request",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "read models response",
			Err:      err,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Status:   resp.StatusCode,
			Detail:   truncate(string(body), maxErrorBody),
		}
	}

	var decoded struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &chat.ProviderError{
			Provider: chat.MegaLLM,
			Detail:   "decode models response",
			Err:      err,
		}
	}

	models := make([]chat.Model, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		models = append(models, chat.Model{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
