package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"insightbot/internal/contextutil"
	"insightbot/internal/rag"
)

// ModelChecker reports whether the LLM service has a model loaded.
type ModelChecker interface {
	IsModelLoaded(ctx context.Context, modelName string) (bool, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	index              IndexCounter
	models             ModelChecker
	modelName          string
	workflow           WorkflowStatuser
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. models may be nil, in which
// case the LLM check is skipped.
func NewHealthHandler(index IndexCounter, models ModelChecker, modelName string, workflow WorkflowStatuser) *HealthHandler {
	return &HealthHandler{
		index:              index,
		models:             models,
		modelName:          modelName,
		workflow:           workflow,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`

	Workflow rag.WorkflowStatus `json:"workflow"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK if healthy, 503 Service Unavailable if degraded or unhealthy.
//
// swagger:route GET /health healthCheck
//
// # Health check endpoint
//
// Returns the health status of the similarity index and the LLM service.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is degraded or unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	status := "healthy"

	if _, err := h.index.ChunkCount(checkCtx); err != nil {
		logger.WarnContext(ctx, "similarity index health check failed", "error", err)
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
		status = "unhealthy"
	} else {
		checks["vector_store"] = "ok"
	}

	if h.models != nil {
		if result := h.checkModel(checkCtx, logger); result != "ok" {
			checks["llm"] = result
			issues = append(issues, "llm_"+result)
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["llm"] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if len(issues) > 0 {
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Workflow:  h.workflow.Status(),
	}

	if len(issues) > 0 {
		response.Issues = issues
	}

	writeJSON(ctx, w, httpStatus, response)
}

// checkModel returns "ok", "not_loaded" or "unavailable".
func (h *HealthHandler) checkModel(ctx context.Context, logger *slog.Logger) string {
	loaded, err := h.models.IsModelLoaded(ctx, h.modelName)
	if err != nil {
		logger.WarnContext(ctx, "llm health check failed", "error", err)
		return "unavailable"
	}
	if !loaded {
		logger.WarnContext(ctx, "llm model not loaded", "model", h.modelName)
		return "not_loaded"
	}
	return "ok"
}
