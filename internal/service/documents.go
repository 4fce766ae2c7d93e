package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_service.go -package=mocks insightbot/internal/service DocumentService,Ingester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"insightbot/internal/contextutil"
	"insightbot/internal/indexer"
	"insightbot/internal/storage"
)

// Ingester is the part of the ingestion pipeline the service drives.
type Ingester interface {
	IngestDocument(ctx context.Context, up indexer.Upload) (*indexer.IngestResult, error)
	RemoveDocument(ctx context.Context, documentID string) (int, error)
}

// DocumentService manages the document collection.
type DocumentService interface {
	// Upload ingests a document. Unsupported, empty and oversized uploads
	// are rejected with a ValidationError.
	Upload(ctx context.Context, up indexer.Upload) (*indexer.IngestResult, error)
	// Remove deletes a document and reports how many chunks were removed.
	Remove(ctx context.Context, documentID string) (int, error)
}

type documentService struct {
	ingester Ingester
	logger   *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(ingester Ingester) DocumentService {
	return &documentService{
		ingester: ingester,
		logger:   slog.Default(),
	}
}

func (s *documentService) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	return s.logger
}

func (s *documentService) Upload(ctx context.Context, up indexer.Upload) (*indexer.IngestResult, error) {
	logger := s.getLogger(ctx)

	if strings.TrimSpace(up.Filename) == "" {
		return nil, &ValidationError{Field: "file", Message: "filename is required"}
	}

	res, err := s.ingester.IngestDocument(ctx, up)
	if err != nil {
		logger.WarnContext(ctx, "upload rejected", "filename", up.Filename, "error", err)
		return nil, uploadError(err)
	}

	logger.InfoContext(ctx, "document uploaded",
		"filename", up.Filename,
		"document_id", res.DocumentID,
		"chunks", res.ChunkCount,
		"duplicate", res.Duplicate,
	)
	return res, nil
}

// uploadError maps ingestion failures to service errors.
func uploadError(err error) error {
	switch {
	case errors.Is(err, indexer.ErrUnsupportedFormat):
		return &ValidationError{Field: "file", Message: err.Error()}
	case errors.Is(err, indexer.ErrEmptyContent):
		return &ValidationError{Field: "file", Message: "document contains no text"}
	case errors.Is(err, indexer.ErrSizeLimitExceeded):
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	case errors.Is(err, indexer.ErrExtraction):
		return &ValidationError{Field: "file", Message: err.Error()}
	case errors.Is(err, indexer.ErrEmbeddingService):
		return fmt.Errorf("%w: %w", ErrExternalService, err)
	default:
		return WrapError(err, "failed to ingest document")
	}
}

func (s *documentService) Remove(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, &ValidationError{Field: "id", Message: "cannot be empty"}
	}

	removed, err := s.ingester.RemoveDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrNotFound
		}
		s.getLogger(ctx).ErrorContext(ctx, "failed to remove document", "document_id", documentID, "error", err)
		return 0, WrapError(err, "failed to remove document")
	}
	return removed, nil
}
