package history

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries is the ring capacity applied when the configured value
// is zero or negative.
const DefaultMaxEntries = 200

// Ring is an in-memory, fixed-capacity [Store]. Once full, recording a new
// entry evicts the oldest one. It is the default history backend when no
// Postgres DSN is configured; everything is lost on restart.
//
// Ring is safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	max     int
	nextID  int64
	entries []Entry // oldest first
}

var _ Store = (*Ring)(nil)

// NewRing creates a [Ring] that retains at most maxEntries dictations.
// Values <= 0 fall back to [DefaultMaxEntries].
func NewRing(maxEntries int) *Ring {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Ring{max: maxEntries}
}

// Record implements [Store]. It assigns the entry an ID, stamps CreatedAt if
// unset, and evicts the oldest entry when the ring is full.
func (r *Ring) Record(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		// Shift down in place so the backing array does not grow without
		// bound across evictions.
		n := copy(r.entries, r.entries[len(r.entries)-r.max:])
		r.entries = r.entries[:n]
	}
	return nil
}

// Recent implements [Store]. A limit <= 0 returns everything the ring holds.
func (r *Ring) Recent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(r.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Search implements [Store]. Matching is a case-insensitive substring check
// against both the raw and final text. An empty query matches nothing.
func (r *Ring) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	out := []Entry{}
	if query == "" {
		return out, nil
	}
	q := strings.ToLower(query)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !strings.Contains(strings.ToLower(e.FinalText), q) &&
			!strings.Contains(strings.ToLower(e.RawText), q) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of entries currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
