package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"insightbot/internal/metrics"
)

const evaluatorStage = "evaluator"

// Criteria names, in rubric order.
var Criteria = []string{"accuracy", "completeness", "relevance", "clarity", "coherence"}

const (
	minScore        = 1.0
	maxScore        = 5.0
	standaloneScore = 2.5
)

const evaluatorSystemPrompt = "You are an expert evaluator of AI-generated responses. You assess responses for accuracy, " +
	"completeness, relevance, clarity, and coherence. You provide objective, constructive evaluations with specific reasoning. " +
	"Always respond with valid JSON only."

// Evaluator scores final answers against a fixed rubric.
type Evaluator struct {
	llm  Completer
	opts Options
}

// NewEvaluator creates an evaluation stage.
func NewEvaluator(llm Completer, opts Options) *Evaluator {
	return &Evaluator{llm: llm, opts: opts}
}

// Name implements Stage.
func (e *Evaluator) Name() string { return evaluatorStage }

// Run scores st.FinalAnswer. When the LLM call fails or returns an invalid
// payload the score is computed from the pipeline's own signals.
func (e *Evaluator) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	input := fmt.Sprintf("answer_length=%d sources=%d", len(st.FinalAnswer), len(st.Sources))

	// The fallback only counts errors recorded by earlier stages.
	fallback := FallbackEvaluation(st)

	res, ok := callWithFallback(ctx, &st, e.opts, evaluatorStage, "Evaluation",
		func(ctx context.Context) (EvaluationResult, error) {
			return e.score(ctx, evaluationPrompt(st.Query, st.FinalAnswer, sourceContext(st.Sources)))
		},
		func() EvaluationResult { return fallback },
	)

	st.Evaluation = res
	metrics.EvaluationScore.Observe(res.Score)

	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	st.addTrace(evaluatorStage, input, fmt.Sprintf("score=%.2f", res.Score), status)
	return st, nil
}

// EvaluateStandalone re-scores a stored answer outside a pipeline run.
// Failures yield a neutral score.
func (e *Evaluator) EvaluateStandalone(ctx context.Context, query, answer string, sourceCount int) EvaluationResult {
	callCtx, cancel := withTimeout(ctx, e.opts.Timeout)
	defer cancel()

	srcCtx := "No sources available"
	if sourceCount > 0 {
		srcCtx = fmt.Sprintf("Based on %d sources", sourceCount)
	}

	res, err := e.score(callCtx, evaluationPrompt(query, answer, srcCtx))
	if err != nil {
		getLogger(ctx, e.opts.Logger).WarnContext(ctx, "standalone evaluation falling back", "error", err)
		metrics.FallbacksTotal.WithLabelValues(evaluatorStage).Inc()
		return uniformEvaluation(standaloneScore, "Standalone evaluation failed")
	}
	return res
}

func (e *Evaluator) score(ctx context.Context, prompt string) (EvaluationResult, error) {
	reply, err := e.llm.Complete(ctx, evaluatorSystemPrompt, prompt, 0.1)
	if err != nil {
		return EvaluationResult{}, err
	}
	return decodeEvaluation(reply)
}

type evaluationPayload struct {
	OverallScore *float64           `json:"overall_score"`
	Rationale    *string            `json:"rationale"`
	Criteria     map[string]float64 `json:"criteria"`
}

func decodeEvaluation(reply string) (EvaluationResult, error) {
	var p evaluationPayload
	if err := decodeJSONPayload(reply, &p); err != nil {
		return EvaluationResult{}, err
	}
	if p.OverallScore == nil || p.Rationale == nil || p.Criteria == nil {
		return EvaluationResult{}, fmt.Errorf("%w: overall_score, rationale and criteria are required", ErrInvalidEvaluationPayload)
	}

	res := EvaluationResult{
		Score:     clampScore(*p.OverallScore),
		Rationale: *p.Rationale,
		Criteria:  make(map[string]float64, len(Criteria)),
	}
	for _, name := range Criteria {
		v, ok := p.Criteria[name]
		if !ok {
			return EvaluationResult{}, fmt.Errorf("%w: missing criterion %q", ErrInvalidEvaluationPayload, name)
		}
		res.Criteria[name] = clampScore(v)
	}
	return res, nil
}

// FallbackEvaluation scores an answer from confidence, retrieval quality,
// answer length and the number of errors so far. Every criterion gets the
// same score.
func FallbackEvaluation(st PipelineState) EvaluationResult {
	score := 3.0
	score += (st.Confidence - 0.5) * 2

	if len(st.Sources) > 0 {
		score += (averageRelevance(st.Sources) - 0.7) * 2
	} else {
		score -= 1.0
	}

	switch n := utf8.RuneCountInString(st.FinalAnswer); {
	case n >= 100 && n <= 2000:
		score += 0.2
	case n < 50:
		score -= 0.5
	case n > 3000:
		score -= 0.3
	}

	score -= 0.2 * float64(len(st.Errors))

	return uniformEvaluation(clampScore(score), "Evaluation failed, using fallback scoring based on available metrics")
}

func uniformEvaluation(score float64, rationale string) EvaluationResult {
	criteria := make(map[string]float64, len(Criteria))
	for _, name := range Criteria {
		criteria[name] = score
	}
	return EvaluationResult{Score: score, Rationale: rationale, Criteria: criteria}
}

func clampScore(v float64) float64 {
	return max(minScore, min(v, maxScore))
}

func sourceContext(sources []Source) string {
	if len(sources) == 0 {
		return "No sources available"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on %d sources:", len(sources))
	for i, s := range sources[:min(len(sources), 3)] {
		fmt.Fprintf(&sb, "\n- Source %d (%s): %s", i+1, s.Filename, truncate(s.Content, 200))
	}
	return sb.String()
}

func evaluationPrompt(query, answer, srcCtx string) string {
	return fmt.Sprintf(`Evaluate the following AI-generated response to a user question.

User Question: %s

AI Response: %s

Source Context: %s

Score the response from 1 to 5 on each criterion:
- accuracy: is the information correct and supported by the sources?
- completeness: does it fully address the question?
- relevance: does it stay on the question?
- clarity: is it easy to understand?
- coherence: is it logically structured?

Respond with JSON in exactly this format:
{
  "overall_score": 4.2,
  "rationale": "Brief explanation of the overall assessment",
  "criteria": {
    "accuracy": 4.5,
    "completeness": 4.0,
    "relevance": 4.5,
    "clarity": 4.0,
    "coherence": 4.0
  }
}`, query, answer, srcCtx)
}
