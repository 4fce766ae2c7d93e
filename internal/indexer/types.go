package indexer

import "errors"

var (
	// ErrUnsupportedFormat is returned when no extractor is registered for the content type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyContent is returned when the extracted text is blank.
	ErrEmptyContent = errors.New("document has no text content")
	// ErrEmbeddingService is returned when the embedding call fails. Nothing is committed.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrSizeLimitExceeded is returned when the raw upload exceeds the configured ceiling.
	ErrSizeLimitExceeded = errors.New("document exceeds size limit")
	// ErrExtraction is returned when a registered extractor cannot decode the bytes.
	ErrExtraction = errors.New("text extraction failed")
)

// Upload is a raw document as received at the boundary.
type Upload struct {
	Filename    string
	ContentType string // may be empty; inferred from the extension
	Data        []byte
	Metadata    map[string]string
}

// IngestResult describes a finished ingestion.
type IngestResult struct {
	DocumentID string          `json:"document_id"`
	Filename   string          `json:"filename"`
	ChunkCount int             `json:"chunk_count"`
	Duplicate  bool            `json:"duplicate"` // identical bytes were already ingested
	Tokens     ChunkTokenStats `json:"chunk_token_stats"`
}
