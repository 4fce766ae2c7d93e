package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_query_service.go -package=mocks insightbot/internal/service QueryService

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"insightbot/internal/contextutil"
	"insightbot/internal/indexer"
	"insightbot/internal/rag"
	"insightbot/internal/storage"
)

const (
	maxQueryLength  = 4000
	defaultPageSize = 10
	maxPageSize     = 100
)

// Workflow runs the answer pipeline. It never fails; failures are reported
// in the returned state.
type Workflow interface {
	Run(ctx context.Context, query, sessionID string) rag.PipelineState
}

// Rescorer evaluates a stored answer outside a pipeline run.
type Rescorer interface {
	EvaluateStandalone(ctx context.Context, query, answer string, sourceCount int) rag.EvaluationResult
}

// IndexStatter reports similarity index statistics.
type IndexStatter interface {
	Stats(ctx context.Context) (*indexer.IndexStats, error)
}

// AskRequest is a question from a client.
type AskRequest struct {
	Query     string
	SessionID string
}

// AskResult is a completed pipeline run and the id it was stored under.
// QueryID is empty when the run could not be stored.
type AskResult struct {
	QueryID string
	State   rag.PipelineState
}

// HistoryRequest selects a page of query history. Zero values use defaults.
type HistoryRequest struct {
	Page      int
	PageSize  int
	SessionID string
}

// HistoryPage is one page of query history, newest first.
type HistoryPage struct {
	Queries  []storage.QueryRecord
	Total    int
	Page     int
	PageSize int
}

// SystemStats summarizes history and the index.
type SystemStats struct {
	TotalQueries         int
	AverageScore         float64
	AverageExecutionTime float64
	TotalDocuments       int
	Index                indexer.IndexStats
}

// QueryService answers questions and manages their history.
type QueryService interface {
	// Ask runs the pipeline for a question and stores the result.
	Ask(ctx context.Context, req AskRequest) (AskResult, error)
	// History lists stored queries.
	History(ctx context.Context, req HistoryRequest) (HistoryPage, error)
	// Reevaluate scores a stored answer again and updates the record.
	Reevaluate(ctx context.Context, queryID string) (rag.EvaluationResult, error)
	// Stats summarizes the system.
	Stats(ctx context.Context) (SystemStats, error)
}

type queryService struct {
	workflow Workflow
	rescorer Rescorer
	queries  storage.QueryStore
	docs     storage.DocumentStore
	index    IndexStatter
	logger   *slog.Logger
}

// NewQueryService creates a new QueryService.
func NewQueryService(
	workflow Workflow,
	rescorer Rescorer,
	queries storage.QueryStore,
	docs storage.DocumentStore,
	index IndexStatter,
) QueryService {
	return &queryService{
		workflow: workflow,
		rescorer: rescorer,
		queries:  queries,
		docs:     docs,
		index:    index,
		logger:   slog.Default(),
	}
}

func (s *queryService) getLogger(ctx context.Context) *slog.Logger {
	if l := contextutil.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	return s.logger
}

// Ask validates the question, runs the workflow and stores the result.
// Storage failures are logged; the answer is still returned.
func (s *queryService) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	logger := s.getLogger(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		logger.WarnContext(ctx, "empty query")
		return AskResult{}, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return AskResult{}, &ValidationError{Field: "query", Message: "is too long"}
	}

	st := s.workflow.Run(ctx, query, req.SessionID)

	rec := toQueryRecord(uuid.New().String(), st)
	if err := s.queries.Insert(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to store query", "session_id", st.SessionID, "error", err)
		return AskResult{State: st}, nil
	}

	logger.InfoContext(ctx, "query processed",
		"query_id", rec.ID,
		"session_id", st.SessionID,
		"sources", len(st.Sources),
		"score", st.Evaluation.Score,
		"errors", len(st.Errors),
	)
	return AskResult{QueryID: rec.ID, State: st}, nil
}

// History returns a page of stored queries.
func (s *queryService) History(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	if req.Page < 0 {
		return HistoryPage{}, &ValidationError{Field: "page", Message: "must be positive"}
	}
	if req.PageSize < 0 || req.PageSize > maxPageSize {
		return HistoryPage{}, &ValidationError{Field: "page_size", Message: "must be between 1 and 100"}
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}

	records, total, err := s.queries.List(ctx, storage.ListParams{
		Page:      req.Page,
		PageSize:  req.PageSize,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.getLogger(ctx).ErrorContext(ctx, "failed to list queries", "error", err)
		return HistoryPage{}, WrapError(err, "failed to list queries")
	}

	return HistoryPage{Queries: records, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}

// Reevaluate re-scores a stored answer and saves the new evaluation.
func (s *queryService) Reevaluate(ctx context.Context, queryID string) (rag.EvaluationResult, error) {
	logger := s.getLogger(ctx)

	if strings.TrimSpace(queryID) == "" {
		return rag.EvaluationResult{}, &ValidationError{Field: "query_id", Message: "cannot be empty"}
	}

	rec, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return rag.EvaluationResult{}, ErrNotFound
		}
		return rag.EvaluationResult{}, WrapError(err, "failed to load query")
	}

	res := s.rescorer.EvaluateStandalone(ctx, rec.QueryText, rec.Answer, len(rec.Sources))

	if err := s.queries.UpdateEvaluation(ctx, queryID, res.Score, res.Rationale, res.Criteria); err != nil {
		logger.ErrorContext(ctx, "failed to store evaluation", "query_id", queryID, "error", err)
		return rag.EvaluationResult{}, WrapError(err, "failed to store evaluation")
	}

	logger.InfoContext(ctx, "query re-evaluated", "query_id", queryID, "score", res.Score)
	return res, nil
}

// Stats combines history, document and index statistics.
func (s *queryService) Stats(ctx context.Context) (SystemStats, error) {
	qs, err := s.queries.Stats(ctx)
	if err != nil {
		return SystemStats{}, WrapError(err, "failed to get query stats")
	}
	docs, err := s.docs.Count(ctx)
	if err != nil {
		return SystemStats{}, WrapError(err, "failed to count documents")
	}
	idx, err := s.index.Stats(ctx)
	if err != nil {
		return SystemStats{}, WrapError(err, "failed to get index stats")
	}

	return SystemStats{
		TotalQueries:         qs.TotalQueries,
		AverageScore:         qs.AverageScore,
		AverageExecutionTime: qs.AverageExecutionTime,
		TotalDocuments:       docs,
		Index:                *idx,
	}, nil
}

func toQueryRecord(id string, st rag.PipelineState) *storage.QueryRecord {
	sources := make([]storage.SourceRecord, len(st.Sources))
	for i, src := range st.Sources {
		sources[i] = storage.SourceRecord{
			Content:        src.Content,
			Filename:       src.Filename,
			ChunkIndex:     src.ChunkIndex,
			RelevanceScore: src.RelevanceScore,
		}
	}
	trace := make([]storage.TraceRecord, len(st.Trace))
	for i, t := range st.Trace {
		trace[i] = storage.TraceRecord{
			Stage:         t.Stage,
			InputSummary:  t.InputSummary,
			OutputSummary: t.OutputSummary,
			DurationMs:    float64(t.Duration) / float64(time.Millisecond),
			Status:        t.Status,
		}
	}
	return &storage.QueryRecord{
		ID:              id,
		SessionID:       st.SessionID,
		QueryText:       st.Query,
		Answer:          st.FinalAnswer,
		Sources:         sources,
		KeyPoints:       st.KeyPoints,
		Citations:       st.Citations,
		Confidence:      st.Confidence,
		EvaluationScore: st.Evaluation.Score,
		Rationale:       st.Evaluation.Rationale,
		Criteria:        st.Evaluation.Criteria,
		ExecutionTime:   st.ExecutionTime.Seconds(),
		Trace:           trace,
		Errors:          st.Errors,
	}
}
