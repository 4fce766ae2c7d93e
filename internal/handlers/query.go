package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"insightbot/internal/contextutil"
	"insightbot/internal/rag"
	"insightbot/internal/service"
	"insightbot/internal/storage"
)

// QueryHandler handles HTTP requests for questions.
type QueryHandler struct {
	queries service.QueryService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queries service.QueryService) *QueryHandler {
	return &QueryHandler{
		queries: queries,
	}
}

// QueryRequest represents the HTTP request payload for a question.
//
// swagger:model QueryRequest
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// SourceResponse is a retrieved source.
//
// swagger:model SourceResponse
type SourceResponse struct {
	Content        string  `json:"content"`
	Filename       string  `json:"filename"`
	ChunkIndex     *int    `json:"chunk_index,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// EvaluationResponse is an answer quality score.
//
// swagger:model EvaluationResponse
type EvaluationResponse struct {
	Score     float64            `json:"score"`
	Rationale string             `json:"rationale"`
	Criteria  map[string]float64 `json:"criteria"`
}

// TraceResponse is one stage execution.
//
// swagger:model TraceResponse
type TraceResponse struct {
	Stage         string  `json:"stage"`
	InputSummary  string  `json:"input_summary"`
	OutputSummary string  `json:"output_summary"`
	DurationMs    float64 `json:"duration_ms"`
	Status        string  `json:"status"`
}

// QueryResponse represents an answered question. QueryID is empty when the
// answer could not be stored. ExecutionTime is in seconds.
//
// swagger:model QueryResponse
type QueryResponse struct {
	QueryID        string             `json:"query_id"`
	Query          string             `json:"query"`
	Answer         string             `json:"answer"`
	Sources        []SourceResponse   `json:"sources"`
	KeyPoints      []string           `json:"key_points"`
	Citations      []string           `json:"citations"`
	Confidence     float64            `json:"confidence"`
	ReasoningSteps []string           `json:"reasoning_steps,omitempty"`
	Evaluation     EvaluationResponse `json:"evaluation"`
	SessionID      string             `json:"session_id"`
	Trace          []TraceResponse    `json:"trace"`
	Errors         []string           `json:"errors"`
	ExecutionTime  float64            `json:"execution_time"`
	Timestamp      string             `json:"timestamp"`
}

// ServeHTTP handles HTTP requests for questions.
//
// Answer a question from the ingested documents.
// The answer is always produced; stage failures are listed in errors.
//
// swagger:route POST /api/query askQuery
//
// # Ask a question
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer
//	  schema:
//	    "$ref": "#/definitions/QueryResponse"
//	'400':
//	  description: Empty or oversized question
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.queries.Ask(ctx, service.AskRequest{
		Query:     req.Query,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to process query")
		return
	}

	writeJSON(ctx, w, http.StatusOK, stateResponse(res.QueryID, res.State, time.Now()))
}

func stateResponse(queryID string, st rag.PipelineState, at time.Time) QueryResponse {
	sources := make([]SourceResponse, len(st.Sources))
	for i, s := range st.Sources {
		sources[i] = SourceResponse{
			Content:        s.Content,
			Filename:       s.Filename,
			ChunkIndex:     s.ChunkIndex,
			RelevanceScore: s.RelevanceScore,
		}
	}
	trace := make([]TraceResponse, len(st.Trace))
	for i, t := range st.Trace {
		trace[i] = TraceResponse{
			Stage:         t.Stage,
			InputSummary:  t.InputSummary,
			OutputSummary: t.OutputSummary,
			DurationMs:    float64(t.Duration.Microseconds()) / 1000,
			Status:        t.Status,
		}
	}
	return QueryResponse{
		QueryID:        queryID,
		Query:          st.Query,
		Answer:         st.FinalAnswer,
		Sources:        sources,
		KeyPoints:      nonNil(st.KeyPoints),
		Citations:      nonNil(st.Citations),
		Confidence:     st.Confidence,
		ReasoningSteps: st.ReasoningSteps,
		Evaluation: EvaluationResponse{
			Score:     st.Evaluation.Score,
			Rationale: st.Evaluation.Rationale,
			Criteria:  st.Evaluation.Criteria,
		},
		SessionID:     st.SessionID,
		Trace:         trace,
		Errors:        nonNil(st.Errors),
		ExecutionTime: st.ExecutionTime.Seconds(),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

func recordResponse(rec storage.QueryRecord) QueryResponse {
	sources := make([]SourceResponse, len(rec.Sources))
	for i, s := range rec.Sources {
		sources[i] = SourceResponse(s)
	}
	trace := make([]TraceResponse, len(rec.Trace))
	for i, t := range rec.Trace {
		trace[i] = TraceResponse(t)
	}
	return QueryResponse{
		QueryID:    rec.ID,
		Query:      rec.QueryText,
		Answer:     rec.Answer,
		Sources:    sources,
		KeyPoints:  nonNil(rec.KeyPoints),
		Citations:  nonNil(rec.Citations),
		Confidence: rec.Confidence,
		Evaluation: EvaluationResponse{
			Score:     rec.EvaluationScore,
			Rationale: rec.Rationale,
			Criteria:  rec.Criteria,
		},
		SessionID:     rec.SessionID,
		Trace:         trace,
		Errors:        nonNil(rec.Errors),
		ExecutionTime: rec.ExecutionTime,
		Timestamp:     rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
