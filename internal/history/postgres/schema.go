// Package postgres provides a PostgreSQL-backed implementation of the
// dictation history store with pgvector semantic search.
//
// Entries land in a single dictations table carrying both the raw transcript
// and the inserted text, a GIN full-text index for keyword recall, and an
// optional embedding column for similarity search. The pgvector extension
// must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, entry)
//	results, _ := store.SearchSimilar(ctx, "that message about the deadline", 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlDictations returns the history DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlDictations(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS dictations (
    id          BIGSERIAL    PRIMARY KEY,
    raw_text    TEXT         NOT NULL,
    final_text  TEXT         NOT NULL,
    provider    TEXT         NOT NULL DEFAULT '',
    fallback    BOOLEAN      NOT NULL DEFAULT false,
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding   vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_dictations_created_at
    ON dictations (created_at);

CREATE INDEX IF NOT EXISTS idx_dictations_fts
    ON dictations USING GIN (to_tsvector('english', final_text || ' ' || raw_text));

CREATE INDEX IF NOT EXISTS idx_dictations_embedding
    ON dictations USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the dictations table, indexes, and the pgvector
// extension exist. It is idempotent and safe to call on every daemon start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlDictations(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
