// Package mock provides a test double for the embeddings.Provider interface.
//
// The zero value answers every embed with a nil vector; set Vec to control
// the result and Err to inject a failure. Submitted texts are recorded for
// assertion.
//
// Example:
//
//	emb := &mock.Provider{Vec: []float32{1, 0, 0}, Dims: 3, Model: "test-embed"}
//	vec, _ := emb.EmbedQuery(ctx, "where are the release notes")
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
)

// Provider is a canned-response implementation of [embeddings.Provider].
type Provider struct {
	mu sync.Mutex

	// Vec is returned by EmbedQuery, and by EmbedDocuments once per input
	// unless Vecs is set.
	Vec []float32

	// Vecs, when non-nil, is returned verbatim by EmbedDocuments.
	Vecs [][]float32

	// Err fails both embed methods.
	Err error

	// Dims and Model back Dimensions and ModelID.
	Dims  int
	Model string

	// Queries and Documents record the texts passed to each embed method,
	// in call order.
	Queries   []string
	Documents [][]string
}

var _ embeddings.Provider = (*Provider)(nil)

// EmbedQuery records text and returns Vec, Err.
func (p *Provider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries = append(p.Queries, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Vec, nil
}

// EmbedDocuments records texts and returns Vecs when set, otherwise one Vec
// per input.
func (p *Provider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Documents = append(p.Documents, slices.Clone(texts))
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Vecs != nil {
		return p.Vecs, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.Vec
	}
	return out, nil
}

// Dimensions returns Dims.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Dims
}

// ModelID returns Model.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Model
}
