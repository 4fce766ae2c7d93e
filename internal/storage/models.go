package storage

import "time"

// DocumentRecord is an ingested document. Its chunks live in the similarity index.
type DocumentRecord struct {
	ID          string // UUID, also the chunk id prefix
	Filename    string
	ContentType string
	FileSize    int64
	Hash        string // SHA256 hex of the raw upload
	ChunkCount  int
	CreatedAt   time.Time
}

// SourceRecord is a stored retrieval result.
type SourceRecord struct {
	Content        string  `json:"content"`
	Filename       string  `json:"filename"`
	ChunkIndex     *int    `json:"chunk_index,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// TraceRecord is a stored stage execution record.
type TraceRecord struct {
	Stage         string  `json:"stage"`
	InputSummary  string  `json:"input_summary"`
	OutputSummary string  `json:"output_summary"`
	DurationMs    float64 `json:"duration_ms"`
	Status        string  `json:"status"`
}

// QueryRecord is a completed pipeline run as kept in history.
type QueryRecord struct {
	ID              string
	SessionID       string
	QueryText       string
	Answer          string
	Sources         []SourceRecord
	KeyPoints       []string
	Citations       []string
	Confidence      float64
	EvaluationScore float64
	Rationale       string
	Criteria        map[string]float64
	ExecutionTime   float64 // seconds
	Trace           []TraceRecord
	Errors          []string
	CreatedAt       time.Time
}

// ListParams selects a page of query history. Page is 1-based.
type ListParams struct {
	Page      int
	PageSize  int
	SessionID string
}

// QueryStats aggregates query history.
type QueryStats struct {
	TotalQueries         int
	AverageScore         float64
	AverageExecutionTime float64
}
