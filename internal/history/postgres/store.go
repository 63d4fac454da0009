package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voxtype/internal/history"
	"github.com/MrWong99/voxtype/pkg/provider/embeddings"
)

// Compile-time interface checks.
var (
	_ history.Store            = (*Store)(nil)
	_ history.SemanticSearcher = (*Store)(nil)
)

// ErrSemanticDisabled is returned by [Store.SearchSimilar] when the store was
// created without an embeddings provider.
var ErrSemanticDisabled = errors.New("history: semantic search disabled (no embeddings provider)")

// defaultLimit caps Recent and Search results when the caller passes a
// limit <= 0. SearchSimilar uses defaultTopK instead.
const (
	defaultLimit         = 50
	defaultTopK          = 5
	defaultBackfillBatch = 64
)

// Store is the PostgreSQL-backed dictation history. It holds a single
// [pgxpool.Pool]; when constructed with an embeddings provider it also
// maintains a pgvector index over the inserted text, enabling
// [Store.SearchSimilar].
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the schema exists.
//
// embedder may be nil, in which case entries are stored without vectors and
// [Store.SearchSimilar] returns [ErrSemanticDisabled]. embeddingDimensions
// falls back to the embedder's own dimensionality when <= 0, then to 1536.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider, embeddingDimensions int) (*Store, error) {
	if embedder != nil {
		if d := embedder.Dimensions(); embeddingDimensions <= 0 {
			embeddingDimensions = d
		} else if d > 0 && d != embeddingDimensions {
			// Catch the mismatch at startup rather than on the first insert.
			return nil, fmt.Errorf("history store: embedding dimensions mismatch: configured %d, model %q produces %d",
				embeddingDimensions, embedder.ModelID(), d)
		}
	}
	if embeddingDimensions <= 0 {
		embeddingDimensions = 1536
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable. Wired into the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record implements [history.Store]. When an embeddings provider is
// configured, the inserted text is embedded and stored alongside the entry.
// An embedding failure does not lose the dictation; the row is stored
// without a vector and simply never surfaces in SearchSimilar.
func (s *Store) Record(ctx context.Context, entry history.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var vec *pgvector.Vector
	if s.embedder != nil && entry.FinalText != "" {
		vecs, err := s.embedder.EmbedDocuments(ctx, []string{entry.FinalText})
		switch {
		case err != nil:
			slog.Warn("history: embedding failed, storing entry without vector",
				"model", s.embedder.ModelID(), "error", err)
		case len(vecs) == 1:
			v := pgvector.NewVector(vecs[0])
			vec = &v
		default:
			slog.Warn("history: embedder returned no vector, storing entry without one",
				"model", s.embedder.ModelID())
		}
	}

	const q = `
		INSERT INTO dictations
		    (raw_text, final_text, provider, fallback, duration_ns, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		entry.RawText,
		entry.FinalText,
		entry.Provider,
		entry.Fallback,
		entry.Duration.Nanoseconds(),
		createdAt,
		vec,
	)
	if err != nil {
		return fmt.Errorf("history store: record: %w", err)
	}
	return nil
}

// Recent implements [history.Store]. Entries are returned newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	const q = `
		SELECT id, raw_text, final_text, provider, fallback, duration_ns, created_at
		FROM   dictations
		ORDER  BY created_at DESC, id DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [history.Store]. It performs a PostgreSQL full-text
// search over both the raw and final text of stored entries. The query is
// passed to plainto_tsquery so no special operator syntax is required.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	const q = `
		SELECT id, raw_text, final_text, provider, fallback, duration_ns, created_at
		FROM   dictations
		WHERE  to_tsvector('english', final_text || ' ' || raw_text)
		       @@ plainto_tsquery('english', $1)
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: search: %w", err)
	}
	return collectEntries(rows)
}

// SearchSimilar implements [history.SemanticSearcher]. It embeds the query
// via the configured provider and returns the topK entries whose stored
// vectors are closest by cosine distance, most similar first. Entries that
// were stored without a vector are skipped.
func (s *Store) SearchSimilar(ctx context.Context, query string, topK int) ([]history.SimilarEntry, error) {
	if s.embedder == nil {
		return nil, ErrSemanticDisabled
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	embedded, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history store: embed query: %w", err)
	}
	queryVec := pgvector.NewVector(embedded)

	const q = `
		SELECT id, raw_text, final_text, provider, fallback, duration_ns, created_at,
		       embedding <=> $1 AS distance
		FROM   dictations
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("history store: search similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.SimilarEntry, error) {
		var (
			se         history.SimilarEntry
			durationNS int64
		)
		if err := row.Scan(
			&se.Entry.ID,
			&se.Entry.RawText,
			&se.Entry.FinalText,
			&se.Entry.Provider,
			&se.Entry.Fallback,
			&durationNS,
			&se.Entry.CreatedAt,
			&se.Distance,
		); err != nil {
			return history.SimilarEntry{}, err
		}
		se.Entry.Duration = time.Duration(durationNS)
		return se, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if results == nil {
		results = []history.SimilarEntry{}
	}
	return results, nil
}

// Backfill embeds rows that were stored without a vector, batchSize rows at
// a time, and reports how many gained one. Rows end up vectorless when the
// embedding backend is down at record time; running Backfill on startup
// folds them back into semantic search. batchSize <= 0 uses a default.
func (s *Store) Backfill(ctx context.Context, batchSize int) (int, error) {
	if s.embedder == nil {
		return 0, ErrSemanticDisabled
	}
	if batchSize <= 0 {
		batchSize = defaultBackfillBatch
	}

	const selectQ = `
		SELECT id, final_text
		FROM   dictations
		WHERE  embedding IS NULL AND final_text <> ''
		ORDER  BY id
		LIMIT  $1`

	type pendingRow struct {
		ID   int64
		Text string
	}

	total := 0
	for {
		rows, err := s.pool.Query(ctx, selectQ, batchSize)
		if err != nil {
			return total, fmt.Errorf("history store: backfill: %w", err)
		}
		pending, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pendingRow])
		if err != nil {
			return total, fmt.Errorf("history store: backfill: %w", err)
		}
		if len(pending) == 0 {
			return total, nil
		}

		texts := make([]string, len(pending))
		for i, p := range pending {
			texts[i] = p.Text
		}
		vecs, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("history store: backfill embed: %w", err)
		}
		if len(vecs) != len(pending) {
			return total, fmt.Errorf("history store: backfill: %d vectors for %d rows", len(vecs), len(pending))
		}

		batch := &pgx.Batch{}
		for i, p := range pending {
			batch.Queue(`UPDATE dictations SET embedding = $1 WHERE id = $2`,
				pgvector.NewVector(vecs[i]), p.ID)
		}
		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return total, fmt.Errorf("history store: backfill update: %w", err)
		}
		total += len(pending)

		if len(pending) < batchSize {
			return total, nil
		}
	}
}

// collectEntries scans pgx rows into a slice of Entry values.
func collectEntries(rows pgx.Rows) ([]history.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var (
			e          history.Entry
			durationNS int64
		)
		if err := row.Scan(
			&e.ID,
			&e.RawText,
			&e.FinalText,
			&e.Provider,
			&e.Fallback,
			&durationNS,
			&e.CreatedAt,
		); err != nil {
			return history.Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}
