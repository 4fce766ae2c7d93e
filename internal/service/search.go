package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_search_service.go -package=mocks insightbot/internal/service SearchService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"insightbot/internal/contextutil"
	"insightbot/internal/rag"
)

// Similarity search defaults.
const (
	DefaultSearchLimit     = 5
	DefaultSearchThreshold = 0.7
	maxSearchLimit         = 50
)

// Searcher finds chunks similar to a text without running the answer pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, threshold float64) ([]rag.Source, error)
}

// SearchRequest is a raw similarity search. A zero Limit uses
// DefaultSearchLimit and a nil Threshold uses DefaultSearchThreshold.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold *float64
}

// SearchService runs similarity searches over the indexed documents.
type SearchService interface {
	// Search returns the chunks most similar to the query, best first.
	Search(ctx context.Context, req SearchRequest) ([]rag.Source, error)
}

type searchService struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchService creates a new SearchService.
func NewSearchService(searcher Searcher) SearchService {
	return &searchService{
		searcher: searcher,
		logger:   slog.Default(),
	}
}

func (s *searchService) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	return s.logger
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]rag.Source, error) {
	logger := s.getLogger(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return nil, &ValidationError{Field: "query", Message: "is too long"}
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 0 || limit > maxSearchLimit {
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxSearchLimit)}
	}

	threshold := DefaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, &ValidationError{Field: "threshold", Message: "must be between 0 and 1"}
	}

	sources, err := s.searcher.Search(ctx, query, limit, threshold)
	if err != nil {
		logger.ErrorContext(ctx, "similarity search failed", "error", err)
		if errors.Is(err, rag.ErrQueryEmbedding) {
			return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
		}
		return nil, WrapError(err, "failed to search documents")
	}

	logger.InfoContext(ctx, "similarity search", "limit", limit, "threshold", threshold, "results", len(sources))
	return sources, nil
}
