package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"insightbot/internal/contextutil"
	"insightbot/internal/service"
)

// HistoryHandler lists stored queries.
type HistoryHandler struct {
	queries service.QueryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(queries service.QueryService) *HistoryHandler {
	return &HistoryHandler{queries: queries}
}

// HistoryResponse is one page of query history.
//
// swagger:model HistoryResponse
type HistoryResponse struct {
	Queries    []QueryResponse `json:"queries"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// ServeHTTP lists stored queries, newest first.
//
// swagger:route GET /api/queries listQueries
//
// # Query history
//
// Optional query parameters: page (default 1), page_size (default 10, max 100)
// and session_id.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: A page of history
//	  schema:
//	    "$ref": "#/definitions/HistoryResponse"
//	'400':
//	  description: Invalid paging parameters
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	res, err := h.queries.History(ctx, service.HistoryRequest{
		Page:      page,
		PageSize:  pageSize,
		SessionID: q.Get("session_id"),
	})
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to list queries")
		return
	}

	resp := HistoryResponse{
		Queries:    make([]QueryResponse, len(res.Queries)),
		TotalCount: res.Total,
		Page:       res.Page,
		PageSize:   res.PageSize,
	}
	for i, rec := range res.Queries {
		resp.Queries[i] = recordResponse(rec)
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// intParam parses an optional integer query parameter. Empty is 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// EvalHandler re-scores a stored answer.
type EvalHandler struct {
	queries service.QueryService
}

// NewEvalHandler creates a new EvalHandler.
func NewEvalHandler(queries service.QueryService) *EvalHandler {
	return &EvalHandler{queries: queries}
}

// EvalRequest names the stored query to re-score.
//
// swagger:model EvalRequest
type EvalRequest struct {
	QueryID string `json:"query_id"`
}

// EvalResponse is the new evaluation of a stored answer.
//
// swagger:model EvalResponse
type EvalResponse struct {
	QueryID    string             `json:"query_id"`
	Evaluation EvaluationResponse `json:"evaluation"`
}

// ServeHTTP re-scores a stored answer and saves the result.
//
// swagger:route POST /api/eval evaluateQuery
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: New evaluation
//	  schema:
//	    "$ref": "#/definitions/EvalResponse"
//	'404':
//	  description: Unknown query id
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *EvalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req EvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	eval, err := h.queries.Reevaluate(ctx, req.QueryID)
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to evaluate query")
		return
	}

	writeJSON(ctx, w, http.StatusOK, EvalResponse{
		QueryID: req.QueryID,
		Evaluation: EvaluationResponse{
			Score:     eval.Score,
			Rationale: eval.Rationale,
			Criteria:  eval.Criteria,
		},
	})
}
