package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"insightbot/internal/rag"
	"insightbot/internal/service"
	"insightbot/internal/service/mocks"
	"insightbot/internal/storage"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func encodeBody(t *testing.T, body any) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func answeredState() rag.PipelineState {
	st := rag.NewState("What was revenue growth?", "s1")
	idx := 0
	st.Sources = []rag.Source{{Content: "Revenue grew 12%.", Filename: "report.md", ChunkIndex: &idx, RelevanceScore: 0.9}}
	st.FinalAnswer = "Revenue grew 12%."
	st.KeyPoints = []string{"Revenue grew 12%"}
	st.Citations = []string{"[1] report.md (chunk 1) - Relevance: 0.90"}
	st.Confidence = 0.8
	st.Evaluation = rag.EvaluationResult{Score: 4, Rationale: "grounded", Criteria: map[string]float64{"accuracy": 4}}
	st.Trace = []rag.StageTrace{{Stage: "retriever", Duration: 1500 * time.Microsecond, Status: "success"}}
	st.ExecutionTime = 2 * time.Second
	return st
}

func TestQueryHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		body          any
		mockSetup     func(*mocks.MockQueryService)
		wantStatus    int
		checkResponse func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:   "successful query",
			method: http.MethodPost,
			body:   QueryRequest{Query: "What was revenue growth?", SessionID: "s1"},
			mockSetup: func(m *mocks.MockQueryService) {
				m.EXPECT().
					Ask(gomock.Any(), service.AskRequest{Query: "What was revenue growth?", SessionID: "s1"}).
					Return(service.AskResult{QueryID: "q1", State: answeredState()}, nil)
			},
			wantStatus: http.StatusOK,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp QueryResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.QueryID != "q1" || resp.Answer != "Revenue grew 12%." || resp.SessionID != "s1" {
					t.Errorf("response = %+v", resp)
				}
				if len(resp.Sources) != 1 || resp.Sources[0].Filename != "report.md" {
					t.Errorf("Sources = %+v", resp.Sources)
				}
				if resp.Evaluation.Score != 4 || resp.ExecutionTime != 2 {
					t.Errorf("Evaluation = %+v, ExecutionTime = %v", resp.Evaluation, resp.ExecutionTime)
				}
				if len(resp.Trace) != 1 || resp.Trace[0].DurationMs != 1.5 {
					t.Errorf("Trace = %+v", resp.Trace)
				}
				if resp.Errors == nil {
					t.Error("Errors should be an empty list, not null")
				}
			},
		},
		{
			name:       "method not allowed",
			method:     http.MethodGet,
			mockSetup:  func(m *mocks.MockQueryService) {},
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "invalid JSON body",
			method:     http.MethodPost,
			body:       "invalid json",
			mockSetup:  func(m *mocks.MockQueryService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "empty query",
			method: http.MethodPost,
			body:   QueryRequest{Query: "  "},
			mockSetup: func(m *mocks.MockQueryService) {
				m.EXPECT().
					Ask(gomock.Any(), gomock.Any()).
					Return(service.AskResult{}, &service.ValidationError{Field: "query", Message: "cannot be empty"})
			},
			wantStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp ErrorResponse
				_ = json.NewDecoder(w.Body).Decode(&resp)
				if resp.Error != "query cannot be empty" {
					t.Errorf("Error = %q", resp.Error)
				}
			},
		},
		{
			name:   "unexpected service error",
			method: http.MethodPost,
			body:   QueryRequest{Query: "q"},
			mockSetup: func(m *mocks.MockQueryService) {
				m.EXPECT().
					Ask(gomock.Any(), gomock.Any()).
					Return(service.AskResult{}, errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockQueries := mocks.NewMockQueryService(ctrl)
			tt.mockSetup(mockQueries)

			handler := NewQueryHandler(mockQueries)
			req := httptest.NewRequest(tt.method, "/api/query", encodeBody(t, tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ServeHTTP() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, w)
			}
		})
	}
}

func TestRecordResponse(t *testing.T) {
	idx := 2
	rec := storage.QueryRecord{
		ID:              "q1",
		SessionID:       "s1",
		QueryText:       "q",
		Answer:          "a",
		Sources:         []storage.SourceRecord{{Content: "c", Filename: "f.md", ChunkIndex: &idx, RelevanceScore: 0.8}},
		EvaluationScore: 3.5,
		Trace:           []storage.TraceRecord{{Stage: "parser", DurationMs: 4, Status: "success"}},
		ExecutionTime:   1.25,
		CreatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	got := recordResponse(rec)

	if got.QueryID != "q1" || got.Query != "q" || got.Answer != "a" {
		t.Errorf("recordResponse() = %+v", got)
	}
	if got.Sources[0].ChunkIndex == nil || *got.Sources[0].ChunkIndex != 2 {
		t.Errorf("Sources = %+v", got.Sources)
	}
	if got.Trace[0].DurationMs != 4 || got.Evaluation.Score != 3.5 {
		t.Errorf("Trace = %+v, Evaluation = %+v", got.Trace, got.Evaluation)
	}
	if got.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("Timestamp = %q", got.Timestamp)
	}
	if got.KeyPoints == nil || got.Citations == nil || got.Errors == nil {
		t.Error("list fields should never be nil")
	}
}
