package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func sampleQuery(id, session string, score, execTime float64) *QueryRecord {
	idx := 1
	return &QueryRecord{
		ID:        id,
		SessionID: session,
		QueryText: "What was revenue growth in 2024?",
		Answer:    "Revenue grew 12%.",
		Sources: []SourceRecord{
			{Content: "Revenue grew 12% in 2024.", Filename: "report.md", ChunkIndex: &idx, RelevanceScore: 0.91},
		},
		KeyPoints:       []string{"Revenue grew 12%"},
		Citations:       []string{"[1] report.md (chunk 2) - Relevance: 0.91"},
		Confidence:      0.8,
		EvaluationScore: score,
		Rationale:       "grounded",
		Criteria:        map[string]float64{"accuracy": 4, "clarity": 5},
		ExecutionTime:   execTime,
		Trace: []TraceRecord{
			{Stage: "retrieval", InputSummary: "q", OutputSummary: "1 source", DurationMs: 12.5, Status: "success"},
		},
	}
}

func TestQueryRepo_InsertAndGet(t *testing.T) {
	repo := NewQueryRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Insert(ctx, sampleQuery("q1", "s1", 4.2, 1.5)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "q1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.SessionID != "s1" || got.Answer != "Revenue grew 12%." || got.EvaluationScore != 4.2 {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].ChunkIndex == nil || *got.Sources[0].ChunkIndex != 1 {
		t.Errorf("GetByID() Sources = %+v", got.Sources)
	}
	if got.Criteria["clarity"] != 5 {
		t.Errorf("GetByID() Criteria = %v", got.Criteria)
	}
	if len(got.Trace) != 1 || got.Trace[0].Stage != "retrieval" {
		t.Errorf("GetByID() Trace = %+v", got.Trace)
	}
	if len(got.Errors) != 0 {
		t.Errorf("GetByID() Errors = %v, want empty", got.Errors)
	}
}

func TestQueryRepo_GetByID_NotFound(t *testing.T) {
	repo := NewQueryRepo(newTestDB(t))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestQueryRepo_List(t *testing.T) {
	repo := NewQueryRepo(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		session := "s1"
		if i%2 == 1 {
			session = "s2"
		}
		if err := repo.Insert(ctx, sampleQuery(fmt.Sprintf("q%d", i), session, 3, 1)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		params    ListParams
		wantIDs   []string
		wantTotal int
	}{
		{name: "first page newest first", params: ListParams{Page: 1, PageSize: 2}, wantIDs: []string{"q4", "q3"}, wantTotal: 5},
		{name: "last page", params: ListParams{Page: 3, PageSize: 2}, wantIDs: []string{"q0"}, wantTotal: 5},
		{name: "past the end", params: ListParams{Page: 9, PageSize: 2}, wantIDs: nil, wantTotal: 5},
		{name: "session filter", params: ListParams{Page: 1, PageSize: 10, SessionID: "s2"}, wantIDs: []string{"q3", "q1"}, wantTotal: 2},
		{name: "defaults", params: ListParams{}, wantIDs: []string{"q4", "q3", "q2", "q1", "q0"}, wantTotal: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.List(ctx, tt.params)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("List() total = %d, want %d", total, tt.wantTotal)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("List() returned %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("List()[%d].ID = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestQueryRepo_UpdateEvaluation(t *testing.T) {
	repo := NewQueryRepo(newTestDB(t))
	ctx := context.Background()

	if err := repo.Insert(ctx, sampleQuery("q1", "s1", 2, 1)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	criteria := map[string]float64{"accuracy": 5}
	if err := repo.UpdateEvaluation(ctx, "q1", 4.5, "re-scored", criteria); err != nil {
		t.Fatalf("UpdateEvaluation() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "q1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.EvaluationScore != 4.5 || got.Rationale != "re-scored" || got.Criteria["accuracy"] != 5 {
		t.Errorf("after UpdateEvaluation() = %+v", got)
	}

	if err := repo.UpdateEvaluation(ctx, "missing", 1, "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateEvaluation() on missing id error = %v, want ErrNotFound", err)
	}
}

func TestQueryRepo_Stats(t *testing.T) {
	repo := NewQueryRepo(newTestDB(t))
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalQueries != 0 || stats.AverageScore != 0 || stats.AverageExecutionTime != 0 {
		t.Errorf("Stats() on empty history = %+v", stats)
	}

	_ = repo.Insert(ctx, sampleQuery("q1", "s", 4, 1))
	_ = repo.Insert(ctx, sampleQuery("q2", "s", 2, 3))

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalQueries != 2 || stats.AverageScore != 3 || stats.AverageExecutionTime != 2 {
		t.Errorf("Stats() = %+v, want 2 queries, avg score 3, avg time 2", stats)
	}
}
