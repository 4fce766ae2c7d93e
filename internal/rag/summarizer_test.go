package rag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"insightbot/internal/rag/mocks"
)

func TestExtractKeyPoints(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "marked lines kept verbatim",
			text: "Some opening remarks here today\n- Revenue up\n* Costs down\n3. Cash flat",
			want: []string{"- Revenue up", "* Costs down", "3. Cash flat"},
		},
		{
			name: "keyword lines in length window",
			text: "The main driver was pricing power in Europe.\nShort key line\nNothing to see in this particular line.",
			want: []string{"The main driver was pricing power in Europe."},
		},
		{
			name: "first sentences when nothing qualifies",
			text: "Revenue was flat. Ok. Margins compressed due to pricing. Outlook is uncertain overall. Another sentence here.",
			want: []string{"Revenue was flat.", "Margins compressed due to pricing."},
		},
		{
			name: "only the first three sentences are considered",
			text: "Ok. Yes. No. Fourth sentence is long enough here. Fifth sentence is also long.",
			want: []string{},
		},
		{
			name: "capped at five",
			text: "- a\n- b\n- c\n- d\n- e\n- f\n- g",
			want: []string{"- a", "- b", "- c", "- d", "- e"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKeyPoints(tt.text); !slices.Equal(got, tt.want) {
				t.Errorf("ExtractKeyPoints() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatCitations(t *testing.T) {
	idx := 2
	sources := []Source{
		{Filename: "a.md", ChunkIndex: &idx, RelevanceScore: 0.856},
		{Filename: "b.txt", RelevanceScore: 1.1},
	}

	want := []string{
		"[1] a.md (chunk 3) - Relevance: 0.86",
		"[2] b.txt - Relevance: 1.10",
	}
	if got := FormatCitations(sources); !slices.Equal(got, want) {
		t.Errorf("FormatCitations() = %q, want %q", got, want)
	}
	if got := FormatCitations(nil); got == nil || len(got) != 0 {
		t.Errorf("FormatCitations(nil) = %#v, want empty", got)
	}
}

func TestFallbackKeyPoints(t *testing.T) {
	tests := []struct {
		name     string
		analysis string
		want     []string
	}{
		{name: "empty", analysis: "", want: []string{"Unable to extract key points due to processing error"}},
		{
			name:     "sentence window",
			analysis: "Short. This sentence is long enough to count. Another adequately long sentence appears.",
			want:     []string{"This sentence is long enough to count.", "Another adequately long sentence appears."},
		},
		{
			name:     "only the first five sentences are considered",
			analysis: "A. B. C. D. E. This sixth sentence is long enough to qualify as a point.",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackKeyPoints(tt.analysis); !slices.Equal(got, tt.want) {
				t.Errorf("fallbackKeyPoints() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackAnswer(t *testing.T) {
	if got := fallbackAnswer("  "); !strings.HasPrefix(got, "I apologize") {
		t.Errorf("fallbackAnswer(empty) = %q", got)
	}

	long := strings.Repeat("a", 1500)
	got := fallbackAnswer(long)
	if !strings.Contains(got, strings.Repeat("a", 1000)+"...") || strings.Contains(got, strings.Repeat("a", 1001)) {
		t.Error("fallbackAnswer() should quote exactly the first 1000 characters")
	}
}

func TestSummarizer_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mocks.NewMockCompleter(ctrl)
	llm.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any(), float32(0.1)).
		Return("Margins fell.\n- Prices were cut\n- Costs rose", nil)

	idx := 0
	st := NewState("Why did margins fall?", "s")
	st.Analysis = "Prices were cut and costs rose."
	st.Sources = []Source{{Filename: "q3.md", ChunkIndex: &idx, RelevanceScore: 0.9}}

	got, err := NewSummarizer(llm, Options{}).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.FinalAnswer != "Margins fell.\n- Prices were cut\n- Costs rose" {
		t.Errorf("Run() FinalAnswer = %q", got.FinalAnswer)
	}
	if !slices.Equal(got.KeyPoints, []string{"- Prices were cut", "- Costs rose"}) {
		t.Errorf("Run() KeyPoints = %q", got.KeyPoints)
	}
	if !slices.Equal(got.Citations, []string{"[1] q3.md (chunk 1) - Relevance: 0.90"}) {
		t.Errorf("Run() Citations = %q", got.Citations)
	}
}

func TestSummarizer_Run_Fallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mocks.NewMockCompleter(ctrl)
	llm.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("rate limited"))

	st := NewState("q", "s")
	st.Analysis = "Revenue increased by twelve percent year over year. Costs were stable."
	st.Sources = sourcesWithScores(0.8)

	got, err := NewSummarizer(llm, Options{}).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasPrefix(got.FinalAnswer, "Based on the available information:") {
		t.Errorf("Run() FinalAnswer = %q", got.FinalAnswer)
	}
	if !slices.Equal(got.KeyPoints, []string{"Revenue increased by twelve percent year over year."}) {
		t.Errorf("Run() KeyPoints = %q", got.KeyPoints)
	}
	if len(got.Citations) != 1 {
		t.Errorf("Run() Citations = %q, want one", got.Citations)
	}
	if !slices.Equal(got.Errors, []string{"Summary error: rate limited"}) {
		t.Errorf("Run() Errors = %v", got.Errors)
	}
}
