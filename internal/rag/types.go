package rag

import (
	"maps"
	"slices"
	"time"
)

// Query types.
const (
	QueryTypeFinancial = "financial"
	QueryTypeTechnical = "technical"
	QueryTypeBusiness  = "business"
	QueryTypeGeneral   = "general"
)

// Specificity levels.
const (
	SpecificityHigh   = "high"
	SpecificityMedium = "medium"
	SpecificityLow    = "low"
)

// Trace statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ParsedQuery is the structured reading of the user's question. It is
// produced once per request and read-only downstream.
type ParsedQuery struct {
	Intent               string   `json:"intent"`
	Entities             []string `json:"entities"` // deduplicated, first occurrence order
	QueryType            string   `json:"query_type"`
	Specificity          string   `json:"specificity"`
	ExpectedAnswerType   string   `json:"expected_answer_type"`
	KeyTopics            []string `json:"key_topics,omitempty"`
	RequiresCalculations bool     `json:"requires_calculations"`
	RequiresComparisons  bool     `json:"requires_comparisons"`
	TimeSensitivity      string   `json:"time_sensitivity,omitempty"`
}

// Source is a retrieved passage. RelevanceScore starts as the index score and
// may exceed 1 after entity boosting.
type Source struct {
	ChunkID        string  `json:"chunk_id,omitempty"`
	DocumentID     string  `json:"document_id,omitempty"`
	Content        string  `json:"content"`
	Filename       string  `json:"filename"`
	ChunkIndex     *int    `json:"chunk_index,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// EvaluationResult scores an answer. Score and every criterion are in [1,5].
type EvaluationResult struct {
	Score     float64            `json:"score"`
	Rationale string             `json:"rationale"`
	Criteria  map[string]float64 `json:"criteria"`
}

// StageTrace records one stage execution.
type StageTrace struct {
	Stage         string        `json:"stage"`
	InputSummary  string        `json:"input_summary"`
	OutputSummary string        `json:"output_summary"`
	Duration      time.Duration `json:"duration"`
	Status        string        `json:"status"`
}

// PipelineState is threaded through every stage. Each stage returns an
// updated copy. All fields start neutral so any stage may fail or be skipped.
type PipelineState struct {
	Query          string           `json:"query"`
	SessionID      string           `json:"session_id"`
	Parsed         ParsedQuery      `json:"parsed_query"`
	Sources        []Source         `json:"sources"`
	Analysis       string           `json:"analysis"`
	ReasoningSteps []string         `json:"reasoning_steps"`
	Confidence     float64          `json:"confidence"`
	FinalAnswer    string           `json:"final_answer"`
	KeyPoints      []string         `json:"key_points"`
	Citations      []string         `json:"citations"`
	Evaluation     EvaluationResult `json:"evaluation"`
	Trace          []StageTrace     `json:"trace"`
	Errors         []string         `json:"errors"`
	ExecutionTime  time.Duration    `json:"execution_time"`
}

// defaultParsedQuery is the neutral reading used before parsing and as the
// base of the parsing fallback.
func defaultParsedQuery() ParsedQuery {
	return ParsedQuery{
		Intent:             "Answer user question",
		Entities:           []string{},
		QueryType:          QueryTypeGeneral,
		Specificity:        SpecificityMedium,
		ExpectedAnswerType: "explanation",
	}
}

// NewState creates the initial state for a request.
func NewState(query, sessionID string) PipelineState {
	return PipelineState{
		Query:          query,
		SessionID:      sessionID,
		Parsed:         defaultParsedQuery(),
		Sources:        []Source{},
		ReasoningSteps: []string{},
		KeyPoints:      []string{},
		Citations:      []string{},
		Evaluation:     EvaluationResult{Criteria: map[string]float64{}},
		Trace:          []StageTrace{},
		Errors:         []string{},
	}
}

// Clone returns a deep copy, so a stage working on the copy can never alter
// the original.
func (s PipelineState) Clone() PipelineState {
	out := s
	out.Parsed.Entities = slices.Clone(s.Parsed.Entities)
	out.Parsed.KeyTopics = slices.Clone(s.Parsed.KeyTopics)
	out.Sources = make([]Source, len(s.Sources))
	for i, src := range s.Sources {
		if src.ChunkIndex != nil {
			idx := *src.ChunkIndex
			src.ChunkIndex = &idx
		}
		out.Sources[i] = src
	}
	out.ReasoningSteps = slices.Clone(s.ReasoningSteps)
	out.KeyPoints = slices.Clone(s.KeyPoints)
	out.Citations = slices.Clone(s.Citations)
	out.Evaluation.Criteria = maps.Clone(s.Evaluation.Criteria)
	out.Trace = slices.Clone(s.Trace)
	out.Errors = slices.Clone(s.Errors)
	return out
}

// addError appends a human-readable error to the state's log.
func (s *PipelineState) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// addTrace appends a trace entry. The engine stamps the duration.
func (s *PipelineState) addTrace(stage, input, output, status string) {
	s.Trace = append(s.Trace, StageTrace{
		Stage:         stage,
		InputSummary:  input,
		OutputSummary: output,
		Status:        status,
	})
}
