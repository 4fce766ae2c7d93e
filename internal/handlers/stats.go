package handlers

import (
	"context"
	"math"
	"net/http"

	"insightbot/internal/contextutil"
	"insightbot/internal/indexer"
	"insightbot/internal/rag"
	"insightbot/internal/service"
)

// IndexCounter reports similarity index counts.
type IndexCounter interface {
	DocumentCount(ctx context.Context) (int, error)
	ChunkCount(ctx context.Context) (int, error)
}

// WorkflowStatuser describes the answer workflow.
type WorkflowStatuser interface {
	Status() rag.WorkflowStatus
}

// StatsHandler reports system statistics.
type StatsHandler struct {
	queries service.QueryService
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(queries service.QueryService) *StatsHandler {
	return &StatsHandler{queries: queries}
}

// QueryStatsResponse summarizes query history.
type QueryStatsResponse struct {
	Total                  int     `json:"total"`
	AverageEvaluationScore float64 `json:"average_evaluation_score"`
	AverageExecutionTime   float64 `json:"average_execution_time"`
}

// DocumentStatsResponse summarizes recorded documents.
type DocumentStatsResponse struct {
	Total int `json:"total"`
}

// StatsResponse summarizes the system.
//
// swagger:model StatsResponse
type StatsResponse struct {
	Queries     QueryStatsResponse    `json:"queries"`
	Documents   DocumentStatsResponse `json:"documents"`
	VectorStore indexer.IndexStats    `json:"vector_store"`
}

// ServeHTTP reports system statistics.
//
// swagger:route GET /api/stats systemStats
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Statistics
//	  schema:
//	    "$ref": "#/definitions/StatsResponse"
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.queries.Stats(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to get statistics")
		return
	}

	writeJSON(ctx, w, http.StatusOK, StatsResponse{
		Queries: QueryStatsResponse{
			Total:                  stats.TotalQueries,
			AverageEvaluationScore: round2(stats.AverageScore),
			AverageExecutionTime:   round2(stats.AverageExecutionTime),
		},
		Documents:   DocumentStatsResponse{Total: stats.TotalDocuments},
		VectorStore: stats.Index,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WorkflowHandler describes the answer workflow.
type WorkflowHandler struct {
	workflow WorkflowStatuser
}

// NewWorkflowHandler creates a new WorkflowHandler.
func NewWorkflowHandler(workflow WorkflowStatuser) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow}
}

// ServeHTTP reports the workflow stages.
//
// swagger:route GET /api/workflow/status workflowStatus
//
// ---
// produces:
// - application/json
func (h *WorkflowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, h.workflow.Status())
}

// RootHandler serves service information.
type RootHandler struct {
	index   IndexCounter
	version string
}

// NewRootHandler creates a new RootHandler.
func NewRootHandler(index IndexCounter, version string) *RootHandler {
	return &RootHandler{index: index, version: version}
}

// InfoResponse describes the running service.
//
// swagger:model InfoResponse
type InfoResponse struct {
	Message        string `json:"message"`
	Version        string `json:"version"`
	Status         string `json:"status"`
	DocumentsCount int    `json:"documents_count"`
	ChunksCount    int    `json:"chunks_count"`
}

// ServeHTTP serves service information and index counts.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	docs, err := h.index.DocumentCount(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to count documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read index")
		return
	}
	chunks, err := h.index.ChunkCount(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to count chunks", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read index")
		return
	}

	writeJSON(ctx, w, http.StatusOK, InfoResponse{
		Message:        "InsightBot document question answering API",
		Version:        h.version,
		Status:         "active",
		DocumentsCount: docs,
		ChunksCount:    chunks,
	})
}
