// Package history records completed dictations.
//
// Every utterance that makes it through the pipeline produces one [Entry]
// holding both the raw transcript and the text that was actually inserted,
// plus enough metadata to answer "which backend did this and how long did it
// take". The default store is an in-memory [Ring] that forgets on restart;
// deployments that want durable, searchable history configure the Postgres
// store in internal/history/postgres instead.
//
// All implementations must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// Entry is one completed dictation.
type Entry struct {
	// ID is assigned by the store on Record. Zero for an unsaved entry.
	ID int64

	// RawText is the final transcript exactly as the STT provider delivered
	// it, before refinement. Preserved for debugging and for judging
	// refinement quality after the fact.
	RawText string

	// FinalText is the text that was inserted into the focused application.
	FinalText string

	// Provider is the chat backend that served refinement. Empty when
	// refinement was disabled for this dictation.
	Provider string

	// Fallback is true when refinement failed or timed out and FinalText
	// holds the cleaned raw transcript instead of a model rewrite.
	Fallback bool

	// Duration is how long the capture ran, from recording start to stop.
	Duration time.Duration

	// CreatedAt is when the entry was recorded. The store fills it in when
	// left zero.
	CreatedAt time.Time
}

// Store is the abstraction over any dictation history backend.
//
// Recent and Search return entries newest first and return an empty
// (non-nil) slice when nothing matches. A limit <= 0 lets the implementation
// apply its own default.
type Store interface {
	// Record appends an entry to the history.
	Record(ctx context.Context, entry Entry) error

	// Recent returns up to limit of the most recently recorded entries.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Search performs a keyword search over the raw and final text of
	// stored entries.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// SimilarEntry pairs a retrieved entry with its vector-space distance from
// the query. Lower Distance values indicate higher semantic similarity.
type SimilarEntry struct {
	Entry    Entry
	Distance float64
}

// SemanticSearcher is implemented by stores that maintain an embedding index
// over recorded dictations, enabling "that message about the quarterly
// numbers" style recall where keyword search falls short.
type SemanticSearcher interface {
	// SearchSimilar returns the topK entries semantically closest to query,
	// ordered by ascending distance.
	SearchSimilar(ctx context.Context, query string, topK int) ([]SimilarEntry, error)
}
