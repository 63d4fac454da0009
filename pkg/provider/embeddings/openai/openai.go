// Package openai embeds text with the OpenAI embeddings API.
//
// OpenAI's embedding models are symmetric, so queries and documents pass
// through unmodified. The text-embedding-3 family can truncate vectors
// server-side; [WithDimensions] requests a reduced width and makes
// [Provider.Dimensions] report it.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
)

// DefaultModel is used when no model is configured. The small
// text-embedding-3 variant is plenty for ranking short dictations.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// nativeWidths maps known OpenAI embedding models to the width they produce
// when no truncation is requested.
var nativeWidths = map[string]int{
	oai.EmbeddingModelTextEmbedding3Small: 1536,
	oai.EmbeddingModelTextEmbedding3Large: 3072,
	oai.EmbeddingModelTextEmbeddingAda002: 1536,
}

// Provider implements [embeddings.Provider] against the OpenAI API. Safe for
// concurrent use.
type Provider struct {
	api   oai.Client
	model string

	// dims, when non-zero, is sent as the dimensions request parameter and
	// reported by Dimensions. Only the text-embedding-3 models accept it.
	dims int

	baseURL string
	org     string
	timeout time.Duration
}

var _ embeddings.Provider = (*Provider)(nil)

// Option customises a Provider.
type Option func(*Provider)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithOrganization stamps an organization ID on every request.
func WithOrganization(org string) Option {
	return func(p *Provider) {
		p.org = org
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithDimensions asks the API to truncate vectors to n dimensions. Valid
// only for the text-embedding-3 models.
func WithDimensions(n int) Option {
	return func(p *Provider) {
		p.dims = n
	}
}

// New builds a Provider. An empty model means [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embed: no api key configured")
	}
	if model == "" {
		model = DefaultModel
	}

	p := &Provider{model: model}
	for _, opt := range opts {
		opt(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.org != "" {
		reqOpts = append(reqOpts, option.WithOrganization(p.org))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: p.timeout}))
	}
	p.api = oai.NewClient(reqOpts...)
	return p, nil
}

// EmbedQuery implements [embeddings.Provider].
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.api.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfString: param.NewOpt(text),
	}))
	if err != nil {
		return nil, fmt.Errorf("openai embed: query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: response carried no vector")
	}
	return vec32(resp.Data[0].Embedding), nil
}

// EmbedDocuments implements [embeddings.Provider]. The whole batch travels
// in one API call; results are reordered by the index the API assigns, so
// the output lines up with texts even if the response does not.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.api.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}))
	if err != nil {
		return nil, fmt.Errorf("openai embed: documents: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: %d vectors for %d documents", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embed: vector index %d out of range", d.Index)
		}
		out[d.Index] = vec32(d.Embedding)
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider]. A truncation width set via
// [WithDimensions] wins; otherwise known models answer from the table and
// unknown ones report 0.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return nativeWidths[strings.ToLower(p.model)]
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	return p.model
}

// params assembles the request, attaching the dimensions parameter only
// when a truncation width was configured.
func (p *Provider) params(input oai.EmbeddingNewParamsInputUnion) oai.EmbeddingNewParams {
	out := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dims > 0 {
		out.Dimensions = param.NewOpt(int64(p.dims))
	}
	return out
}

// vec32 narrows the API's float64 vectors to the float32 pgvector stores.
func vec32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
