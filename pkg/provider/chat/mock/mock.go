// Package mock provides a test double for the chat.Client interface.
//
// Use Client in unit tests to verify the requests the refinement pipeline
// builds and to feed controlled responses without a live backend.
//
// Example:
//
//	c := &mock.Client{
//	    Response: chat.Response{Content: "Refined."},
//	}
//	resp, err := c.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxtype/pkg/provider/chat"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req chat.Request
}

// Client is a mock implementation of chat.Client. Zero values for response
// fields cause methods to return zero values and nil errors; set Err to
// inject a failure.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock".
	NameValue chat.Name

	// Response is returned by Complete when Err is nil.
	Response chat.Response

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Models is returned by ListModels.
	Models []chat.Model

	// ListModelsErr, if non-nil, is returned as the error from ListModels.
	ListModelsErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// ListModelsCallCount is the number of times ListModels was called.
	ListModelsCallCount int
}

// Ensure Client implements chat.Client and chat.ModelLister at compile time.
var (
	_ chat.Client      = (*Client)(nil)
	_ chat.ModelLister = (*Client)(nil)
)

// Name returns NameValue, or "mock" when unset.
func (c *Client) Name() chat.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NameValue == "" {
		return chat.Name("mock")
	}
	return c.NameValue
}

// Complete records the call and returns Response, Err.
func (c *Client) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = append(c.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if c.Err != nil {
		return chat.Response{}, c.Err
	}
	return c.Response, nil
}

// ListModels records the call and returns Models, ListModelsErr.
func (c *Client) ListModels(ctx context.Context) ([]chat.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ListModelsCallCount++
	if c.ListModelsErr != nil {
		return nil, c.ListModelsErr
	}
	return c.Models, nil
}

// Reset clears all recorded calls. Thread-safe.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CompleteCalls = nil
	c.ListModelsCallCount = 0
}
