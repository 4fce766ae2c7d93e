package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"insightbot/internal/contextutil"
)

// NoMatch is the ordinal reported for result slots that have no vector.
const NoMatch = -1

// Match is a raw search result addressed by insertion ordinal.
type Match struct {
	Ordinal int
	Score   float32
}

// snapshot is an immutable view of the index. Mutations build a new snapshot
// and swap it in; readers keep whichever snapshot they loaded.
type snapshot struct {
	vectors  []float32        // ordinal i occupies vectors[i*dim : (i+1)*dim]
	ordinals []string         // ordinal -> chunk id, aligned 1:1 with vectors
	chunks   map[string]Chunk // chunk id -> chunk
}

func (s *snapshot) size() int { return len(s.ordinals) }

// FlatIndex is an exact inner-product index held in memory and persisted as a
// pair of artifacts in dir after every mutation.
//
// Deleting a document removes its chunk rows only. The vectors and their
// ordinals stay in place and are skipped when results are mapped back.
type FlatIndex struct {
	dim    int
	dir    string // empty keeps the index in memory only
	logger *slog.Logger

	mu   sync.Mutex // serializes mutate+persist
	snap atomic.Pointer[snapshot]
}

// NewFlatIndex creates an empty in-memory index.
func NewFlatIndex(dim int, logger *slog.Logger) *FlatIndex {
	idx := &FlatIndex{dim: dim, logger: logger}
	idx.snap.Store(&snapshot{chunks: map[string]Chunk{}})
	return idx
}

// OpenFlatIndex loads the index persisted in dir. When neither artifact exists
// the index starts empty. When the pair is incomplete or inconsistent the
// artifacts are renamed with CorruptSuffix, the returned index is empty and
// usable, and the error wraps ErrIndexLoad. If the artifacts cannot be moved
// aside no index is returned.
func OpenFlatIndex(dir string, dim int, logger *slog.Logger) (*FlatIndex, error) {
	idx := NewFlatIndex(dim, logger)
	idx.dir = dir

	snap, err := loadSnapshot(dir, dim)
	if err != nil {
		moved, qerr := quarantineArtifacts(dir, time.Now())
		if qerr != nil {
			return nil, fmt.Errorf("unreadable index in %s (%v): %w", dir, err, qerr)
		}
		return idx, fmt.Errorf("%w; moved to %s", err, strings.Join(moved, ", "))
	}
	if snap != nil {
		idx.snap.Store(snap)
	}
	return idx, nil
}

func (x *FlatIndex) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	if x.logger != nil {
		return x.logger
	}
	return slog.Default()
}

// Dimension returns the embedding width.
func (x *FlatIndex) Dimension() int { return x.dim }

// Insert appends vectors and chunks, persists, then publishes the new snapshot.
func (x *FlatIndex) Insert(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	next := &snapshot{
		vectors:  make([]float32, 0, len(cur.vectors)+len(vectors)*x.dim),
		ordinals: make([]string, 0, len(cur.ordinals)+len(chunks)),
		chunks:   maps.Clone(cur.chunks),
	}
	next.vectors = append(next.vectors, cur.vectors...)
	next.ordinals = append(next.ordinals, cur.ordinals...)
	for i, c := range chunks {
		next.vectors = append(next.vectors, vectors[i]...)
		next.ordinals = append(next.ordinals, c.ID)
		next.chunks[c.ID] = c
	}

	if err := x.persist(next); err != nil {
		return err
	}
	x.snap.Store(next)

	x.getLogger(ctx).InfoContext(ctx, "inserted chunks", "count", len(chunks), "total_vectors", next.size())
	return nil
}

// SearchOrdinals returns exactly k matches ordered by descending inner product.
// Slots beyond the number of stored vectors hold NoMatch.
func (x *FlatIndex) SearchOrdinals(query []float32, k int) ([]Match, error) {
	return x.snap.Load().search(query, k, x.dim)
}

func (s *snapshot) search(query []float32, k, dim int) ([]Match, error) {
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	n := s.size()
	scored := make([]Match, n)
	for i := 0; i < n; i++ {
		scored[i] = Match{Ordinal: i, Score: dot(query, s.vectors[i*dim:(i+1)*dim])}
	}
	slices.SortStableFunc(scored, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	out := make([]Match, k)
	for i := range out {
		if i < n {
			out[i] = scored[i]
		} else {
			out[i] = Match{Ordinal: NoMatch}
		}
	}
	return out, nil
}

// Search runs SearchOrdinals and maps the surviving ordinals back to chunks.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int, threshold float32) ([]Hit, error) {
	snap := x.snap.Load()
	if snap.size() == 0 {
		return nil, nil
	}

	matches, err := snap.search(query, k, x.dim)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.Ordinal == NoMatch || m.Score < threshold {
			continue
		}
		id := snap.ordinals[m.Ordinal]
		chunk, ok := snap.chunks[id]
		if !ok || seen[id] {
			// dangling vector of a deleted document
			continue
		}
		seen[id] = true
		hits = append(hits, Hit{Chunk: chunk, Score: m.Score})
	}

	x.getLogger(ctx).DebugContext(ctx, "search completed", "k", k, "threshold", threshold, "results", len(hits))
	return hits, nil
}

// DeleteDocument removes the document's chunk rows and persists. Vectors are kept.
func (x *FlatIndex) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	next := &snapshot{
		vectors:  cur.vectors,
		ordinals: cur.ordinals,
		chunks:   make(map[string]Chunk, len(cur.chunks)),
	}
	removed := 0
	for id, c := range cur.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		next.chunks[id] = c
	}
	if removed == 0 {
		return 0, nil
	}

	if err := x.persist(next); err != nil {
		return 0, err
	}
	x.snap.Store(next)

	x.getLogger(ctx).InfoContext(ctx, "removed document chunks", "document_id", documentID, "chunks", removed)
	return removed, nil
}

// DocumentCount returns the number of distinct document ids.
func (x *FlatIndex) DocumentCount(ctx context.Context) (int, error) {
	docs := make(map[string]struct{})
	for _, c := range x.snap.Load().chunks {
		docs[c.DocumentID] = struct{}{}
	}
	return len(docs), nil
}

// ChunkCount returns the number of chunk rows.
func (x *FlatIndex) ChunkCount(ctx context.Context) (int, error) {
	return len(x.snap.Load().chunks), nil
}

// VectorCount returns the number of stored vectors, dangling ones included.
func (x *FlatIndex) VectorCount() int {
	return x.snap.Load().size()
}

func (x *FlatIndex) persist(s *snapshot) error {
	if x.dir == "" {
		return nil
	}
	return saveSnapshot(x.dir, x.dim, s)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
