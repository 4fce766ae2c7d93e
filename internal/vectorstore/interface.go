package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrIndexLoad is returned when persisted index artifacts are missing their
	// pair, corrupt, or disagree with each other or the configured dimension.
	ErrIndexLoad = errors.New("index load failed")
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Chunk is the unit of retrieval. It is immutable once inserted.
type Chunk struct {
	ID         string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Filename   string            `json:"filename"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Hit is a chunk returned by a similarity search with its inner-product score.
type Hit struct {
	Chunk Chunk
	Score float32
}

// Index is a nearest-neighbor index over fixed-dimension embeddings that also
// owns the chunk table.
type Index interface {
	// Insert appends vectors and their chunks; vectors[i] embeds chunks[i].
	// Either every pair is committed and persisted or none is.
	Insert(ctx context.Context, vectors [][]float32, chunks []Chunk) error

	// Search returns up to k hits in descending score order. Hits scoring below
	// threshold are never returned.
	Search(ctx context.Context, query []float32, k int, threshold float32) ([]Hit, error)

	// DeleteDocument removes the chunks of a document and reports how many were removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// DocumentCount is the number of distinct document ids across all chunks.
	DocumentCount(ctx context.Context) (int, error)

	// ChunkCount is the number of chunk rows.
	ChunkCount(ctx context.Context) (int, error)

	// Dimension is the fixed embedding width.
	Dimension() int
}
