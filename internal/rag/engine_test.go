package rag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"insightbot/internal/rag/mocks"
	"insightbot/internal/vectorstore"
)

// funcStage adapts a function to Stage.
type funcStage struct {
	name string
	run  func(ctx context.Context, st PipelineState) (PipelineState, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	return s.run(ctx, st)
}

func tracingStage(name string, mutate func(*PipelineState)) funcStage {
	return funcStage{name: name, run: func(_ context.Context, st PipelineState) (PipelineState, error) {
		if mutate != nil {
			mutate(&st)
		}
		st.addTrace(name, "in", "out", StatusSuccess)
		return st, nil
	}}
}

func TestEngine_Run_Order(t *testing.T) {
	var order []string
	stage := func(name string) funcStage {
		return tracingStage(name, func(*PipelineState) { order = append(order, name) })
	}

	e := NewEngine(stage("p"), stage("r"), stage("a"), stage("s"), stage("e"), nil)
	st := e.Run(context.Background(), "q", "session-1")

	if !slices.Equal(order, []string{"p", "r", "a", "s", "e"}) {
		t.Errorf("stage order = %v", order)
	}
	if st.SessionID != "session-1" || st.Query != "q" {
		t.Errorf("Run() SessionID/Query = %q/%q", st.SessionID, st.Query)
	}
	if len(st.Trace) != 5 {
		t.Errorf("Run() Trace has %d entries, want 5", len(st.Trace))
	}
	if st.ExecutionTime <= 0 {
		t.Errorf("Run() ExecutionTime = %v", st.ExecutionTime)
	}
}

func TestEngine_Run_StampsDuration(t *testing.T) {
	slow := funcStage{name: "slow", run: func(_ context.Context, st PipelineState) (PipelineState, error) {
		time.Sleep(5 * time.Millisecond)
		st.addTrace("slow", "", "", StatusSuccess)
		return st, nil
	}}
	noop := funcStage{name: "noop", run: func(_ context.Context, st PipelineState) (PipelineState, error) {
		return st, nil
	}}

	st := NewEngine(slow, noop, noop, noop, noop, nil).Run(context.Background(), "q", "s")

	if len(st.Trace) != 1 {
		t.Fatalf("Run() Trace = %+v, want one entry", st.Trace)
	}
	if st.Trace[0].Duration < 5*time.Millisecond {
		t.Errorf("Trace[0].Duration = %v, want >= 5ms", st.Trace[0].Duration)
	}
}

func TestEngine_Run_ContainsStageFailures(t *testing.T) {
	tests := []struct {
		name    string
		bad     funcStage
		wantErr string
	}{
		{
			name: "panic",
			bad: funcStage{name: "analyzer", run: func(_ context.Context, st PipelineState) (PipelineState, error) {
				st.Analysis = "partial"
				panic("nil map write")
			}},
			wantErr: "Analyze sources node error: panic: nil map write",
		},
		{
			name: "returned error",
			bad: funcStage{name: "analyzer", run: func(_ context.Context, st PipelineState) (PipelineState, error) {
				st.Analysis = "partial"
				st.Errors = append(st.Errors, "leaked")
				return st, errors.New("broken invariant")
			}},
			wantErr: "Analyze sources node error: broken invariant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawSources int
			parser := tracingStage("p", func(st *PipelineState) { st.Parsed.Intent = "parsed" })
			retriever := tracingStage("r", func(st *PipelineState) { st.Sources = sourcesWithScores(0.9) })
			summarizer := tracingStage("s", func(st *PipelineState) {
				sawSources = len(st.Sources)
				st.FinalAnswer = "answer"
			})
			evaluator := tracingStage("e", nil)

			st := NewEngine(parser, retriever, tt.bad, summarizer, evaluator, nil).Run(context.Background(), "q", "s")

			if !slices.Equal(st.Errors, []string{tt.wantErr}) {
				t.Errorf("Run() Errors = %q, want [%q]", st.Errors, tt.wantErr)
			}
			if st.Analysis != "" {
				t.Errorf("Run() Analysis = %q, want the failed stage's changes discarded", st.Analysis)
			}
			if sawSources != 1 || st.Parsed.Intent != "parsed" {
				t.Error("stages after the failure should see the state from before it")
			}
			if st.FinalAnswer != "answer" {
				t.Errorf("Run() FinalAnswer = %q", st.FinalAnswer)
			}
			if len(st.Trace) != 5 || st.Trace[2].Stage != "analyzer" || st.Trace[2].Status != StatusError {
				t.Errorf("Run() Trace = %+v", st.Trace)
			}
		})
	}
}

func TestEngine_Run_FinalAnswerGuarantee(t *testing.T) {
	noop := tracingStage("noop", nil)
	failing := funcStage{name: "summarizer", run: func(_ context.Context, st PipelineState) (PipelineState, error) {
		return st, errors.New("llm unavailable")
	}}

	tests := []struct {
		name       string
		summarizer Stage
		want       string
	}{
		{
			name:       "last error quoted",
			summarizer: failing,
			want:       "I apologize, but I encountered an error processing your query: Create summary node error: llm unavailable",
		},
		{
			name:       "no errors",
			summarizer: noop,
			want:       "I apologize, but I encountered an error processing your query: no answer was produced",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewEngine(noop, noop, noop, tt.summarizer, noop, nil).Run(context.Background(), "q", "s")
			if st.FinalAnswer != tt.want {
				t.Errorf("Run() FinalAnswer = %q, want %q", st.FinalAnswer, tt.want)
			}
		})
	}
}

func TestEngine_Run_GeneratesSessionID(t *testing.T) {
	noop := tracingStage("noop", nil)
	st := NewEngine(noop, noop, noop, noop, noop, nil).Run(context.Background(), "q", "")
	if st.SessionID == "" {
		t.Error("Run() should assign a session id")
	}
}

func TestEngine_Status(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mocks.NewMockCompleter(ctrl)
	e := newTestEngine(llm, vectorstore.NewFlatIndex(3, nil))

	got := e.Status()

	want := []string{"query_parser", "retriever", "analyzer", "summarizer", "evaluator"}
	if !got.Initialized || !slices.Equal(got.Steps, want) {
		t.Errorf("Status() = %+v", got)
	}
	for _, name := range want {
		if got.Agents[name] != "active" {
			t.Errorf("Status() Agents[%s] = %q", name, got.Agents[name])
		}
	}
}

func newTestEngine(llm Completer, index vectorstore.Index) *Engine {
	opts := Options{Timeout: time.Second}
	return NewEngine(
		NewQueryParser(llm, opts),
		NewRetriever(index, staticEmbedder{vec: []float32{1, 0, 0}}, RetrieverOptions{Options: opts}),
		NewAnalyzer(llm, opts),
		NewSummarizer(llm, opts),
		NewEvaluator(llm, opts),
		nil,
	)
}

func TestEngine_Run_EmptyIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	llm := mocks.NewMockCompleter(ctrl)

	gomock.InOrder(
		llm.EXPECT().Complete(gomock.Any(), parserSystemPrompt, gomock.Any(), gomock.Any()).
			Return(`{"intent":"x","entities":[],"query_type":"general"}`, nil),
		llm.EXPECT().Complete(gomock.Any(), summarizerSystemPrompt, gomock.Any(), gomock.Any()).
			Return("There is no information about this in the knowledge base.", nil),
		llm.EXPECT().Complete(gomock.Any(), evaluatorSystemPrompt, gomock.Any(), gomock.Any()).
			Return(validEvaluation, nil),
	)

	st := newTestEngine(llm, vectorstore.NewFlatIndex(3, nil)).Run(context.Background(), "What is the capital of Mars?", "s")

	if len(st.Sources) != 0 {
		t.Errorf("Sources = %+v, want none", st.Sources)
	}
	if st.Analysis != noSourcesAnalysis || st.Confidence != 0.1 {
		t.Errorf("Analysis/Confidence = %q / %v", st.Analysis, st.Confidence)
	}
	if st.FinalAnswer == "" {
		t.Error("FinalAnswer should not be empty")
	}
	if len(st.Errors) != 0 {
		t.Errorf("Errors = %v", st.Errors)
	}
}

func TestEngine_Run_LLMAlwaysFails(t *testing.T) {
	populated := func(t *testing.T) vectorstore.Index { return newTestIndex(t) }
	empty := func(*testing.T) vectorstore.Index { return vectorstore.NewFlatIndex(3, nil) }

	tests := []struct {
		name       string
		index      func(*testing.T) vectorstore.Index
		wantErrors []string
	}{
		{
			name:       "with sources",
			index:      populated,
			wantErrors: []string{"Query parsing error:", "Analysis error:", "Summary error:", "Evaluation error:"},
		},
		{
			// the analyzer does not call the LLM without sources
			name:       "without sources",
			index:      empty,
			wantErrors: []string{"Query parsing error:", "Summary error:", "Evaluation error:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			llm := mocks.NewMockCompleter(ctrl)
			llm.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return("", errors.New("service unavailable")).AnyTimes()

			st := newTestEngine(llm, tt.index(t)).Run(context.Background(), "How did Tesla revenue change?", "s")

			if len(st.Errors) != len(tt.wantErrors) {
				t.Fatalf("Errors = %q, want %d entries", st.Errors, len(tt.wantErrors))
			}
			for i, prefix := range tt.wantErrors {
				if !strings.HasPrefix(st.Errors[i], prefix) {
					t.Errorf("Errors[%d] = %q, want prefix %q", i, st.Errors[i], prefix)
				}
			}

			if st.Parsed.Intent != "Answer user question" || !slices.Contains(st.Parsed.Entities, "Tesla") {
				t.Errorf("Parsed = %+v, want fallback parse", st.Parsed)
			}
			if st.FinalAnswer == "" {
				t.Error("FinalAnswer should not be empty")
			}
			if st.Evaluation.Rationale != "Evaluation failed, using fallback scoring based on available metrics" {
				t.Errorf("Evaluation = %+v", st.Evaluation)
			}
			for _, name := range Criteria {
				if st.Evaluation.Criteria[name] != st.Evaluation.Score {
					t.Errorf("criterion %s = %v, want %v", name, st.Evaluation.Criteria[name], st.Evaluation.Score)
				}
			}
			if len(st.Trace) != 5 {
				t.Errorf("Trace has %d entries, want 5", len(st.Trace))
			}
			if len(st.Sources) > 0 {
				if st.Confidence != 0.3 || len(st.Citations) != len(st.Sources) {
					t.Errorf("Confidence = %v, Citations = %q", st.Confidence, st.Citations)
				}
			} else if st.Confidence != 0.1 {
				t.Errorf("Confidence = %v, want 0.1", st.Confidence)
			}
		})
	}
}

func TestPipelineState_Clone(t *testing.T) {
	idx := 1
	st := NewState("q", "s")
	st.Sources = []Source{{ChunkIndex: &idx}}
	st.Evaluation.Criteria["accuracy"] = 3
	st.Errors = append(st.Errors, "e")

	c := st.Clone()
	*c.Sources[0].ChunkIndex = 9
	c.Evaluation.Criteria["accuracy"] = 5
	c.Errors[0] = "changed"

	if *st.Sources[0].ChunkIndex != 1 || st.Evaluation.Criteria["accuracy"] != 3 || st.Errors[0] != "e" {
		t.Errorf("Clone() shares memory with the original: %+v", st)
	}
}
