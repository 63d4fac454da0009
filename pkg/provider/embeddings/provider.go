// Package embeddings abstracts the text-to-vector backends behind the
// dictation history's semantic index.
//
// Retrieval models treat the two sides of a search differently: stored
// dictations are documents, the phrase typed into a search box is a query,
// and models such as nomic-embed-text were trained with a distinct task
// prefix for each. The interface keeps that split so a provider can apply
// the formatting its model expects instead of leaking it to the history
// store.
package embeddings

import "context"

// Provider turns text into dense float32 vectors.
//
// All vectors from one Provider share the width reported by Dimensions and
// live in one model's vector space; vectors from different models are not
// comparable. The history store pins model and width at schema-creation
// time through ModelID and Dimensions.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// EmbedQuery embeds a search query, applying whatever query-side task
	// formatting the model expects.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds texts for indexing: one vector per input, in
	// input order, sent as a single backend call where the API allows it.
	// A nil or empty input returns (nil, nil) without touching the backend.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector width this provider produces, or 0 when
	// the width cannot be known without asking the backend.
	Dimensions() int

	// ModelID names the underlying model, for logs and schema checks.
	ModelID() string
}
