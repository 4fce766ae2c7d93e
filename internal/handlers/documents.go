package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"insightbot/internal/contextutil"
	"insightbot/internal/indexer"
	"insightbot/internal/service"
)

// multipartOverhead is allowed on top of the file size limit for form framing.
const multipartOverhead = 1 << 20

// UploadHandler handles document uploads.
type UploadHandler struct {
	docs        service.DocumentService
	maxFileSize int64
}

// NewUploadHandler creates a new UploadHandler. maxFileSize caps the
// request body; 0 disables the cap.
func NewUploadHandler(docs service.DocumentService, maxFileSize int64) *UploadHandler {
	return &UploadHandler{
		docs:        docs,
		maxFileSize: maxFileSize,
	}
}

// UploadResponse describes an ingested document. Status is "processed" or
// "duplicate".
//
// swagger:model UploadResponse
type UploadResponse struct {
	DocumentID string                  `json:"document_id"`
	Filename   string                  `json:"filename"`
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	ChunkCount int                     `json:"chunk_count"`
	Tokens     indexer.ChunkTokenStats `json:"chunk_token_stats"`
}

// ServeHTTP handles document uploads.
//
// swagger:route POST /api/upload uploadDocument
//
// # Upload a document
//
// Accepts a multipart form with a single "file" part. Supported types are
// plain text, markdown, PDF and DOCX.
//
// ---
// consumes:
// - multipart/form-data
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Document ingested
//	  schema:
//	    "$ref": "#/definitions/UploadResponse"
//	'400':
//	  description: Unsupported, empty or oversized file
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding service unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.maxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeServiceError(ctx, w, service.ErrTooLarge, "")
			return
		}
		logger.WarnContext(ctx, "missing file part", "error", err)
		writeError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.WarnContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	res, err := h.docs.Upload(ctx, indexer.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Metadata:    map[string]string{"source": "upload"},
	})
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to process document")
		return
	}

	resp := UploadResponse{
		DocumentID: res.DocumentID,
		Filename:   res.Filename,
		Status:     "processed",
		Message:    "Document processed successfully",
		ChunkCount: res.ChunkCount,
		Tokens:     res.Tokens,
	}
	if res.Duplicate {
		resp.Status = "duplicate"
		resp.Message = "Document already ingested"
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// DocumentHandler handles document removal.
type DocumentHandler struct {
	docs service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(docs service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// DeleteResponse reports a removed document.
//
// swagger:model DeleteResponse
type DeleteResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksRemoved int    `json:"chunks_removed"`
}

// ServeHTTP removes a document and its chunks.
//
// swagger:route DELETE /api/documents/{id} deleteDocument
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Document removed
//	  schema:
//	    "$ref": "#/definitions/DeleteResponse"
//	'404':
//	  description: Unknown document
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := chi.URLParam(r, "id")
	removed, err := h.docs.Remove(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err, "Failed to remove document")
		return
	}

	writeJSON(ctx, w, http.StatusOK, DeleteResponse{DocumentID: id, ChunksRemoved: removed})
}
