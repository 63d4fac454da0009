package chat

import "fmt"

// Request describes one refinement chat completion: a fixed system
// instruction and the dictated text as the sole user message.
type Request struct {
	// Model is the backend-specific model identifier.
	Model string

	// System is the instruction sent with role "system".
	System string

	// UserText is the user message content.
	UserText string
}

// Response carries the raw model output of a completed request.
type Response struct {
	// Content is choices[0].message.content, verbatim.
	Content string

	// Usage holds token accounting when the backend reports it.
	Usage Usage
}

// Usage is the token accounting block of a completion response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Model is one entry of a backend model listing.
type Model struct {
	ID      string
	OwnedBy string
}

// ProviderError reports a failed exchange with a refinement backend:
// transport errors, non-2xx statuses, unparseable bodies. It usually points
// at a configuration problem (missing or invalid API key, wrong endpoint)
// and is therefore shown to the user rather than converted into fallback
// text.
type ProviderError struct {
	// Provider is the backend that failed.
	Provider Name

	// Status is the HTTP status code, 0 when the request never completed.
	Status int

	// Detail is a short human-readable description.
	Detail string

	// Err is the underlying error, if any.
	Err error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Detail, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }
