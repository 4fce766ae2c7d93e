package rag

import (
	"context"
	"fmt"
	"strings"
)

const analyzerStage = "analyzer"

const (
	maxReasoningSteps   = 10
	noSourcesStep       = "No relevant sources found in knowledge base"
	failedAnalysisStep  = "Analysis failed, providing basic response"
	noSourcesConfidence = 0.1
	fallbackConfidence  = 0.3
)

const noSourcesAnalysis = `I apologize, but I couldn't find any relevant sources in the knowledge base to answer your question. This could be because:

1. The information you're looking for hasn't been uploaded to the system yet
2. The query might be too specific or use different terminology
3. The relevant documents might not contain the specific information requested

Please try rephrasing your question or consider uploading additional relevant documents.`

const analystBasePrompt = "You are an expert analyst with deep knowledge across multiple domains. " +
	"You provide accurate, well-reasoned responses based on available information."

var analystFocus = map[string]string{
	QueryTypeFinancial: " You specialize in financial analysis, including company valuations, market trends, financial metrics, and investment insights.",
	QueryTypeTechnical: " You specialize in technical analysis, including technology trends, product specifications, implementation details, and technical comparisons.",
	QueryTypeBusiness:  " You specialize in business analysis, including strategy, operations, market analysis, and business model evaluation.",
}

const generalFocus = " You provide balanced, well-researched responses across various domains with clear reasoning and evidence."

var stepPrefixes = []string{
	"1.", "2.", "3.", "4.", "5.",
	"•", "-", "*",
	"First", "Second", "Next", "Finally", "Additionally",
}

// Analyzer writes a grounded analysis of the retrieved sources.
type Analyzer struct {
	llm  Completer
	opts Options
}

// NewAnalyzer creates an analysis stage.
func NewAnalyzer(llm Completer, opts Options) *Analyzer {
	return &Analyzer{llm: llm, opts: opts}
}

// Name implements Stage.
func (a *Analyzer) Name() string { return analyzerStage }

type analysis struct {
	text       string
	steps      []string
	confidence float64
}

// Run analyzes st.Sources. With no sources it answers with a fixed message
// without calling the LLM.
func (a *Analyzer) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	input := fmt.Sprintf("sources=%d query_type=%s", len(st.Sources), st.Parsed.QueryType)

	if len(st.Sources) == 0 {
		st.Analysis = noSourcesAnalysis
		st.ReasoningSteps = []string{noSourcesStep}
		st.Confidence = noSourcesConfidence
		st.addTrace(analyzerStage, input, "no sources, confidence=0.10", StatusSuccess)
		return st, nil
	}

	res, ok := callWithFallback(ctx, &st, a.opts, analyzerStage, "Analysis",
		func(ctx context.Context) (analysis, error) {
			text, err := a.llm.Complete(ctx, analystSystemPrompt(st.Parsed.QueryType), analysisPrompt(st.Query, st.Sources, st.Parsed), 0.2)
			if err != nil {
				return analysis{}, err
			}
			return analysis{
				text:       text,
				steps:      ExtractReasoningSteps(text),
				confidence: Confidence(st.Sources, st.Parsed.Specificity),
			}, nil
		},
		func() analysis {
			return analysis{
				text:       fallbackAnalysis(st.Query, len(st.Sources)),
				steps:      []string{failedAnalysisStep},
				confidence: fallbackConfidence,
			}
		},
	)

	st.Analysis = res.text
	st.ReasoningSteps = res.steps
	st.Confidence = res.confidence

	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	st.addTrace(analyzerStage, input,
		fmt.Sprintf("analysis_length=%d steps=%d confidence=%.2f", len(res.text), len(res.steps), res.confidence),
		status)
	return st, nil
}

func analystSystemPrompt(queryType string) string {
	if focus, ok := analystFocus[queryType]; ok {
		return analystBasePrompt + focus
	}
	return analystBasePrompt + generalFocus
}

func analysisPrompt(query string, sources []Source, pq ParsedQuery) string {
	var sb strings.Builder
	sb.WriteString("Based on the following sources, analyze and answer the user's question.\n\n")
	fmt.Fprintf(&sb, "User Question: %s\n\n", query)
	fmt.Fprintf(&sb, "Query Type: %s\nExpected Answer Type: %s\n\n", pq.QueryType, pq.ExpectedAnswerType)
	sb.WriteString("Available Sources:\n")
	for i, s := range sources {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Source %d (%s):\n%s", i+1, s.Filename, s.Content)
	}
	sb.WriteString(`

Provide a comprehensive analysis that:
1. Directly answers the user's question
2. Uses information from the provided sources
3. Shows clear reasoning steps
4. Identifies any limitations or uncertainties
5. Provides specific examples or data points when available

If the sources don't contain enough information to fully answer the question, state what is missing and what can be concluded from the available data.`)
	return sb.String()
}

func fallbackAnalysis(query string, sourceCount int) string {
	if sourceCount == 0 {
		return "I apologize, but I couldn't find relevant sources to answer your question and also encountered an error during processing. " +
			"Please try rephrasing your question or ensure that relevant documents have been uploaded to the system."
	}
	return fmt.Sprintf("I found %d relevant sources for your question about: %s\n\n"+
		"However, I encountered an error during the detailed analysis. The sources contain information that may be relevant to your query, "+
		"but I cannot provide a comprehensive analysis at this time.\n\n"+
		"Please try rephrasing your question or contact support if the issue persists.", sourceCount, query)
}

// ExtractReasoningSteps groups the lines of text into steps. A step starts at
// a line with a numbering or bullet marker or a transition word; other lines
// are appended to the current step. At most ten steps are returned.
func ExtractReasoningSteps(text string) []string {
	steps := []string{}
	var current string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if startsStep(line) {
			if current != "" {
				steps = append(steps, strings.TrimSpace(current))
			}
			current = line
			continue
		}
		current += " " + line
	}
	if current = strings.TrimSpace(current); current != "" {
		steps = append(steps, current)
	}

	if len(steps) > maxReasoningSteps {
		steps = steps[:maxReasoningSteps]
	}
	return steps
}

func startsStep(line string) bool {
	for _, p := range stepPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// Confidence estimates answer reliability from retrieval statistics alone.
func Confidence(sources []Source, specificity string) float64 {
	if len(sources) == 0 {
		return noSourcesConfidence
	}

	c := min(averageRelevance(sources), 1.0)
	c *= 0.7 + 0.3*min(float64(len(sources))/5, 1.0)

	switch specificity {
	case SpecificityHigh:
		c *= 1.1
	case SpecificityLow:
		c *= 0.9
	}
	return max(0, min(c, 1.0))
}
