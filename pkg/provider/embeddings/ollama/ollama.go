// Package ollama embeds text through a locally running Ollama server,
// keeping the history's semantic index on the box alongside local
// refinement.
//
// The provider speaks Ollama's native /api/embed endpoint, which accepts a
// batch of inputs and returns one vector per input. Retrieval models pulled
// through Ollama expect the task prefixes they were trained with, so queries
// and documents are prefixed per model unless [WithPrefixes] overrides them.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
)

// DefaultBaseURL matches a stock local Ollama install.
const DefaultBaseURL = "http://localhost:11434"

// modelDims maps Ollama embedding models to their vector width. Models not
// listed here are probed against the live server on the first Dimensions
// call.
var modelDims = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

// Provider implements [embeddings.Provider] against an Ollama server. Safe
// for concurrent use.
type Provider struct {
	base   string
	model  string
	dims   int
	client *http.Client

	// queryPrefix and docPrefix are prepended to query and document texts
	// before embedding. Defaults come from searchPrefixes.
	queryPrefix string
	docPrefix   string

	// probe resolves the vector width by embedding a throwaway input. Runs
	// at most once; a failed probe reports 0 and is not retried.
	probe func() int
}

var _ embeddings.Provider = (*Provider)(nil)

// Option customises a Provider.
type Option func(*Provider)

// WithTimeout bounds each HTTP request. Zero or negative leaves requests
// bounded only by their context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithDimensions fixes the reported vector width, skipping both the built-in
// model table and the probe request unknown models would otherwise trigger.
func WithDimensions(n int) Option {
	return func(p *Provider) {
		p.dims = n
	}
}

// WithPrefixes replaces the model's default task prefixes. Pass empty
// strings to embed text verbatim.
func WithPrefixes(query, document string) Option {
	return func(p *Provider) {
		p.queryPrefix = query
		p.docPrefix = document
	}
}

// New builds a Provider for model served at baseURL. An empty baseURL means
// [DefaultBaseURL]; the model name is required because Ollama has no
// server-side default.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embed: no model configured")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := &Provider{
		base:   strings.TrimRight(baseURL, "/"),
		model:  model,
		client: &http.Client{},
	}
	p.queryPrefix, p.docPrefix = searchPrefixes(model)
	for _, opt := range opts {
		opt(p)
	}

	if p.dims == 0 {
		p.dims = builtinDims(model)
	}
	p.probe = sync.OnceValue(p.detectDims)
	return p, nil
}

// EmbedQuery implements [embeddings.Provider].
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{p.queryPrefix + text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: query: %w", err)
	}
	return vecs[0], nil
}

// EmbedDocuments implements [embeddings.Provider]. The whole batch travels
// in one /api/embed request.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := texts
	if p.docPrefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = p.docPrefix + t
		}
	}
	vecs, err := p.embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: documents: %w", err)
	}
	return vecs, nil
}

// Dimensions implements [embeddings.Provider]. Known models answer from the
// built-in table; unknown ones cost one probe request against the live
// server, after which the result is cached.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	return p.probe()
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	return p.model
}

// detectDims embeds a throwaway input and measures the result. The prefix is
// irrelevant here, only the width matters.
func (p *Provider) detectDims() int {
	vecs, err := p.embed(context.Background(), []string{"width probe"})
	if err != nil {
		return 0
	}
	return len(vecs[0])
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embed posts inputs to /api/embed and returns exactly one vector per input.
func (p *Provider) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", res.Status, bytes.TrimSpace(snippet))
	}

	var out embedResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("server returned %d vectors for %d inputs", len(out.Embeddings), len(inputs))
	}
	return out.Embeddings, nil
}

// builtinDims looks up the vector width for a model name, ignoring any
// ":tag" suffix. Unknown models return 0.
func builtinDims(model string) int {
	base, _, _ := strings.Cut(strings.ToLower(model), ":")
	return modelDims[base]
}

// searchPrefixes returns the query and document task prefixes a model was
// trained with. Models without a known prefix embed text verbatim.
func searchPrefixes(model string) (query, document string) {
	base, _, _ := strings.Cut(strings.ToLower(model), ":")
	switch base {
	case "nomic-embed-text":
		return "search_query: ", "search_document: "
	case "mxbai-embed-large":
		// mxbai prompts the query side only.
		return "Represent this sentence for searching relevant passages: ", ""
	}
	return "", ""
}
