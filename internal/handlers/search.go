package handlers

import (
	"net/http"
	"strconv"

	"insightbot/internal/service"
)

// SearchHandler runs similarity searches over indexed chunks.
type SearchHandler struct {
	search service.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// SearchResult is one matching chunk.
//
// swagger:model SearchResult
type SearchResult struct {
	DocumentID     string  `json:"document_id"`
	ChunkID        string  `json:"chunk_id"`
	Filename       string  `json:"filename"`
	ChunkIndex     *int    `json:"chunk_index,omitempty"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SearchResponse lists the chunks most similar to a query.
//
// swagger:model SearchResponse
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// ServeHTTP searches the index without running the answer pipeline.
//
// swagger:route GET /api/search searchDocuments
//
// # Similarity search
//
// Query parameters: q (required), limit (default 5, max 50) and threshold
// (default 0.7, between 0 and 1).
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Matching chunks, best first
//	  schema:
//	    "$ref": "#/definitions/SearchResponse"
//	'400':
//	  description: Missing query or invalid limit or threshold
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding service unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	req := service.SearchRequest{Query: q.Get("q"), Limit: limit}
	if v := q.Get("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "threshold must be a number")
			return
		}
		req.Threshold = &threshold
	}

	sources, err := h.search.Search(ctx, req)
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to search documents")
		return
	}

	results := make([]SearchResult, len(sources))
	for i, s := range sources {
		results[i] = SearchResult{
			DocumentID:     s.DocumentID,
			ChunkID:        s.ChunkID,
			Filename:       s.Filename,
			ChunkIndex:     s.ChunkIndex,
			Content:        s.Content,
			RelevanceScore: s.RelevanceScore,
		}
	}
	writeJSON(ctx, w, http.StatusOK, SearchResponse{Query: req.Query, Results: results, Total: len(results)})
}
