package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"insightbot/internal/rag"
	"insightbot/internal/service"
	"insightbot/internal/service/mocks"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type stubIndex struct{}

func (stubIndex) DocumentCount(context.Context) (int, error) { return 1, nil }
func (stubIndex) ChunkCount(context.Context) (int, error) { return 3, nil }

type stubWorkflow struct{}

func (stubWorkflow) Status() rag.WorkflowStatus {
	return rag.WorkflowStatus{Initialized: true}
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockQueryService, *mocks.MockDocumentService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	queries := mocks.NewMockQueryService(ctrl)
	docs := mocks.NewMockDocumentService(ctrl)

	router := NewRouter(&Deps{
		Queries:     queries,
		Documents:   docs,
		Index:       stubIndex{},
		Workflow:    stubWorkflow{},
		MaxFileSize: 1024,
		Version:     "test",
	})
	return router, queries, docs
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		setup      func(*mocks.MockQueryService, *mocks.MockDocumentService)
		wantStatus int
	}{
		{name: "GET root", method: http.MethodGet, path: "/", wantStatus: http.StatusOK},
		{name: "GET health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "GET metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "GET workflow status", method: http.MethodGet, path: "/api/workflow/status", wantStatus: http.StatusOK},
		{
			name:       "POST /api/query exists",
			method:     http.MethodPost,
			path:       "/api/query",
			wantStatus: http.StatusBadRequest, // empty body, but the route exists
		},
		{
			name:       "GET /api/query method not allowed",
			method:     http.MethodGet,
			path:       "/api/query",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:   "GET /api/stats",
			method: http.MethodGet,
			path:   "/api/stats",
			setup: func(q *mocks.MockQueryService, _ *mocks.MockDocumentService) {
				q.EXPECT().Stats(gomock.Any()).Return(service.SystemStats{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "GET /api/queries",
			method: http.MethodGet,
			path:   "/api/queries?page=1",
			setup: func(q *mocks.MockQueryService, _ *mocks.MockDocumentService) {
				q.EXPECT().History(gomock.Any(), service.HistoryRequest{Page: 1}).Return(service.HistoryPage{Page: 1, PageSize: 10}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "DELETE /api/documents/{id}",
			method: http.MethodDelete,
			path:   "/api/documents/doc-1",
			setup: func(_ *mocks.MockQueryService, d *mocks.MockDocumentService) {
				d.EXPECT().Remove(gomock.Any(), "doc-1").Return(2, nil)
			},
			wantStatus: http.StatusOK,
		},
		{name: "unknown route", method: http.MethodGet, path: "/api/missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, queries, docs := newTestRouter(t)
			if tt.setup != nil {
				tt.setup(queries, docs)
			}

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_EvalRoute(t *testing.T) {
	router, queries, _ := newTestRouter(t)
	queries.EXPECT().Reevaluate(gomock.Any(), "q1").Return(rag.EvaluationResult{Score: 4}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/eval", strings.NewReader(`{"query_id":"q1"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Router POST /api/eval status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestRouter_SearchRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	search := mocks.NewMockSearchService(ctrl)
	search.EXPECT().
		Search(gomock.Any(), service.SearchRequest{Query: "revenue", Limit: 3}).
		Return([]rag.Source{{ChunkID: "d1_0", Filename: "report.md", RelevanceScore: 0.8}}, nil)

	router := NewRouter(&Deps{
		Queries:   mocks.NewMockQueryService(ctrl),
		Documents: mocks.NewMockDocumentService(ctrl),
		Search:    search,
		Index:     stubIndex{},
		Workflow:  stubWorkflow{},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search?q=revenue&limit=3", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Router GET /api/search status = %v, want %v", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"chunk_id":"d1_0"`) {
		t.Errorf("Router GET /api/search body = %s", w.Body.String())
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Check CORS headers are present
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}
