package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insightbot/internal/handlers"
	"insightbot/internal/service"
)

// Deps holds dependencies for the HTTP router. Models is optional; nil
// skips the LLM health check.
type Deps struct {
	Queries     service.QueryService
	Documents   service.DocumentService
	Search      service.SearchService
	Index       handlers.IndexCounter
	Workflow    handlers.WorkflowStatuser
	Models      handlers.ModelChecker
	ModelName   string
	MaxFileSize int64
	Version     string
	CORSOrigins []string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(Tracing("insightbot"))
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS(deps.CORSOrigins))

	r.Method(http.MethodGet, "/", handlers.NewRootHandler(deps.Index, deps.Version))
	r.Method(http.MethodGet, "/health", handlers.NewHealthHandler(deps.Index, deps.Models, deps.ModelName, deps.Workflow))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/query", handlers.NewQueryHandler(deps.Queries))
		r.Method(http.MethodPost, "/upload", handlers.NewUploadHandler(deps.Documents, deps.MaxFileSize))
		r.Method(http.MethodDelete, "/documents/{id}", handlers.NewDocumentHandler(deps.Documents))
		r.Method(http.MethodGet, "/queries", handlers.NewHistoryHandler(deps.Queries))
		r.Method(http.MethodPost, "/eval", handlers.NewEvalHandler(deps.Queries))
		r.Method(http.MethodGet, "/search", handlers.NewSearchHandler(deps.Search))
		r.Method(http.MethodGet, "/stats", handlers.NewStatsHandler(deps.Queries))
		r.Method(http.MethodGet, "/workflow/status", handlers.NewWorkflowHandler(deps.Workflow))
	})

	return r
}
