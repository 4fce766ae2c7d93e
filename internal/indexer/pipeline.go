package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"insightbot/internal/contextutil"
	"insightbot/internal/metrics"
	"insightbot/internal/storage"
	"insightbot/internal/vectorstore"
)

// Embedder produces one embedding per text in a single batched call.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures a Pipeline.
type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxFileSize    int64 // 0 disables the ceiling
	EmbeddingModel string
	Extractors     *Extractors // nil uses DefaultExtractors
	Logger         *slog.Logger
}

// Pipeline ingests documents into the similarity index.
type Pipeline struct {
	index          vectorstore.Index
	embedder       Embedder
	docs           storage.DocumentStore // optional; nil disables duplicate detection
	chunker        *WindowChunker
	extractors     *Extractors
	maxFileSize    int64
	embeddingModel string
	logger         *slog.Logger
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(index vectorstore.Index, embedder Embedder, docs storage.DocumentStore, opts Options) (*Pipeline, error) {
	chunker, err := NewWindowChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	extractors := opts.Extractors
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	return &Pipeline{
		index:          index,
		embedder:       embedder,
		docs:           docs,
		chunker:        chunker,
		extractors:     extractors,
		maxFileSize:    opts.MaxFileSize,
		embeddingModel: opts.EmbeddingModel,
		logger:         opts.Logger,
	}, nil
}

func (p *Pipeline) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Supports reports whether filename has a registered extractor.
func (p *Pipeline) Supports(filename string) bool {
	return p.extractors.Supports(filename)
}

// Ingest chunks rawText, embeds every chunk in one call and commits the chunks
// to the index. It returns the new document id. On any failure nothing is committed.
func (p *Pipeline) Ingest(ctx context.Context, rawText, filename string, metadata map[string]string) (string, error) {
	docID, _, err := p.ingest(ctx, rawText, filename, metadata)
	if err != nil {
		metrics.IngestFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return "", err
	}
	return docID, nil
}

func (p *Pipeline) ingest(ctx context.Context, rawText, filename string, metadata map[string]string) (string, []string, error) {
	logger := p.getLogger(ctx)

	if strings.TrimSpace(rawText) == "" {
		return "", nil, ErrEmptyContent
	}

	docID := uuid.New().String()
	pieces := p.chunker.Split(rawText)

	vectors, err := p.embedder.EmbedTexts(ctx, pieces)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}
	if len(vectors) != len(pieces) {
		return "", nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingService, len(pieces), len(vectors))
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:         fmt.Sprintf("%s_%d", docID, i),
			DocumentID: docID,
			ChunkIndex: i,
			Text:       text,
			Filename:   filename,
			Metadata:   maps.Clone(metadata),
		}
	}

	if err := p.index.Insert(ctx, vectors, chunks); err != nil {
		return "", nil, fmt.Errorf("failed to insert chunks: %w", err)
	}

	metrics.DocumentsIngestedTotal.Inc()
	metrics.ChunksIngestedTotal.Add(float64(len(chunks)))
	logger.InfoContext(ctx, "ingested document", "document_id", docID, "filename", filename, "chunks", len(chunks))
	return docID, pieces, nil
}

// IngestDocument validates and extracts an upload, skips byte-identical
// re-uploads, ingests the text and records the document.
func (p *Pipeline) IngestDocument(ctx context.Context, up Upload) (*IngestResult, error) {
	res, err := p.ingestDocument(ctx, up)
	if err != nil {
		metrics.IngestFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, up Upload) (*IngestResult, error) {
	logger := p.getLogger(ctx)

	if p.maxFileSize > 0 && int64(len(up.Data)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrSizeLimitExceeded, len(up.Data), p.maxFileSize)
	}

	mediaType := p.extractors.Resolve(up.ContentType, up.Filename)
	text, err := p.extractors.Extract(mediaType, up.Data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(up.Data)
	hash := hex.EncodeToString(sum[:])

	if p.docs != nil {
		existing, err := p.docs.GetByHash(ctx, hash)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "skipping duplicate document", "filename", up.Filename, "document_id", existing.ID)
			return &IngestResult{
				DocumentID: existing.ID,
				Filename:   existing.Filename,
				ChunkCount: existing.ChunkCount,
				Duplicate:  true,
			}, nil
		case !errors.Is(err, storage.ErrNotFound):
			logger.WarnContext(ctx, "duplicate check failed", "filename", up.Filename, "error", err)
		}
	}

	docID, pieces, err := p.ingest(ctx, text, up.Filename, up.Metadata)
	if err != nil {
		return nil, err
	}

	if p.docs != nil {
		rec := &storage.DocumentRecord{
			ID:          docID,
			Filename:    up.Filename,
			ContentType: mediaType,
			FileSize:    int64(len(up.Data)),
			Hash:        hash,
			ChunkCount:  len(pieces),
		}
		if err := p.docs.Insert(ctx, rec); err != nil {
			// The chunks are already committed and searchable.
			logger.ErrorContext(ctx, "failed to record document", "document_id", docID, "error", err)
		}
	}

	return &IngestResult{
		DocumentID: docID,
		Filename:   up.Filename,
		ChunkCount: len(pieces),
		Tokens:     tokenStatsFor(pieces),
	}, nil
}

// IngestFile reads and ingests a file from disk.
func (p *Pipeline) IngestFile(ctx context.Context, path string, metadata map[string]string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["path"] = path
	return p.IngestDocument(ctx, Upload{
		Filename: filepath.Base(path),
		Data:     data,
		Metadata: meta,
	})
}

// RemoveDocument deletes a document's chunks from the index and its record.
// Returns storage.ErrNotFound when neither existed.
func (p *Pipeline) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	removed, err := p.index.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	recordFound := false
	if p.docs != nil {
		err := p.docs.Delete(ctx, documentID)
		switch {
		case err == nil:
			recordFound = true
		case !errors.Is(err, storage.ErrNotFound):
			return removed, fmt.Errorf("failed to delete document record: %w", err)
		}
	}

	if removed == 0 && !recordFound {
		return 0, storage.ErrNotFound
	}

	p.getLogger(ctx).InfoContext(ctx, "removed document", "document_id", documentID, "chunks", removed)
	return removed, nil
}

// DirStats counts the outcome of a directory scan.
type DirStats struct {
	Ingested   int `json:"ingested"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// IngestDir ingests every supported file under dir. Errors for individual
// files are logged and do not stop the scan.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) (DirStats, error) {
	logger := p.getLogger(ctx)
	var stats DirStats

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !p.Supports(d.Name()) {
			return nil
		}

		res, err := p.IngestFile(ctx, path, map[string]string{"source": "inbox"})
		switch {
		case err != nil:
			stats.Failed++
			logger.ErrorContext(ctx, "failed to ingest file", "path", path, "error", err)
		case res.Duplicate:
			stats.Duplicates++
		default:
			stats.Ingested++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	logger.InfoContext(ctx, "directory scan completed", "dir", dir,
		"ingested", stats.Ingested, "duplicates", stats.Duplicates, "failed", stats.Failed)

	if stats.Failed > 0 {
		return stats, fmt.Errorf("directory scan completed with %d errors", stats.Failed)
	}
	return stats, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, ErrEmbeddingService):
		return "embedding"
	case errors.Is(err, ErrSizeLimitExceeded):
		return "size_limit"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	default:
		return "index"
	}
}
