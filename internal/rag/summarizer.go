package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const summarizerStage = "summarizer"

const maxKeyPoints = 5

const summarizerSystemPrompt = "You are an expert at creating clear, concise summaries that highlight the most important information. " +
	"Your summaries are well-structured, easy to understand, and maintain accuracy to the source material."

var keyPointMarkers = []string{"•", "-", "*", "1.", "2.", "3.", "4.", "5."}

var keyPointKeywords = []string{
	"increase", "decrease", "growth", "decline", "important", "significant",
	"key", "main", "primary", "result", "conclusion",
}

// Summarizer turns the analysis into the final answer, key points and citations.
type Summarizer struct {
	llm  Completer
	opts Options
}

// NewSummarizer creates a summarization stage.
func NewSummarizer(llm Completer, opts Options) *Summarizer {
	return &Summarizer{llm: llm, opts: opts}
}

// Name implements Stage.
func (s *Summarizer) Name() string { return summarizerStage }

type summary struct {
	answer    string
	keyPoints []string
}

// Run summarizes st.Analysis. Citations are derived from st.Sources and are
// produced even when the LLM call fails.
func (s *Summarizer) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	input := fmt.Sprintf("analysis_length=%d confidence=%.2f", len(st.Analysis), st.Confidence)

	res, ok := callWithFallback(ctx, &st, s.opts, summarizerStage, "Summary",
		func(ctx context.Context) (summary, error) {
			answer, err := s.llm.Complete(ctx, summarizerSystemPrompt, summaryPrompt(st), 0.1)
			if err != nil {
				return summary{}, err
			}
			return summary{answer: answer, keyPoints: ExtractKeyPoints(answer)}, nil
		},
		func() summary {
			return summary{answer: fallbackAnswer(st.Analysis), keyPoints: fallbackKeyPoints(st.Analysis)}
		},
	)

	st.FinalAnswer = res.answer
	st.KeyPoints = res.keyPoints
	st.Citations = FormatCitations(st.Sources)

	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	st.addTrace(summarizerStage, input,
		fmt.Sprintf("answer_length=%d key_points=%d citations=%d", len(st.FinalAnswer), len(st.KeyPoints), len(st.Citations)),
		status)
	return st, nil
}

func summaryPrompt(st PipelineState) string {
	var sb strings.Builder
	sb.WriteString("Create a clear, comprehensive summary based on the following analysis.\n\n")
	fmt.Fprintf(&sb, "Original Question: %s\n\n", st.Query)
	fmt.Fprintf(&sb, "Query Type: %s\nExpected Answer Type: %s\n\n", st.Parsed.QueryType, st.Parsed.ExpectedAnswerType)
	fmt.Fprintf(&sb, "Detailed Analysis:\n%s\n\n", st.Analysis)
	if len(st.ReasoningSteps) > 0 {
		sb.WriteString("Reasoning Steps:\n")
		for i, step := range st.ReasoningSteps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Confidence Level: %.2f\nNumber of Sources: %d\n\n", st.Confidence, len(st.Sources))
	sb.WriteString(`Create a response that:
1. Directly answers the user's question in the first paragraph
2. Provides supporting details and key insights
3. Is clear and easy to understand
4. Keeps the important numbers, dates and facts
5. Acknowledges limitations or uncertainties if confidence is low`)
	return sb.String()
}

// ExtractKeyPoints pulls at most five key points out of text. Bulleted or
// numbered lines are taken as-is; other lines qualify when they are of
// moderate length and contain a salience keyword. When nothing qualifies the
// substantial ones among the first three sentences are used.
func ExtractKeyPoints(text string) []string {
	points := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hasAnyPrefix(line, keyPointMarkers) {
			points = append(points, line)
			continue
		}
		if n := utf8.RuneCountInString(line); n > 20 && n < 200 && containsKeyword(line) {
			points = append(points, line)
		}
	}

	if len(points) == 0 {
		for _, sentence := range leadingSentences(text, 3) {
			if utf8.RuneCountInString(sentence) > 10 {
				points = append(points, sentence+".")
			}
		}
	}

	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return points
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range keyPointKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FormatCitations renders one citation per source, numbered from 1. Chunk
// numbers are shown 1-based.
func FormatCitations(sources []Source) []string {
	citations := make([]string, 0, len(sources))
	for i, s := range sources {
		c := fmt.Sprintf("[%d] %s", i+1, s.Filename)
		if s.ChunkIndex != nil {
			c += fmt.Sprintf(" (chunk %d)", *s.ChunkIndex+1)
		}
		c += fmt.Sprintf(" - Relevance: %.2f", s.RelevanceScore)
		citations = append(citations, c)
	}
	return citations
}

func fallbackAnswer(analysis string) string {
	if strings.TrimSpace(analysis) == "" {
		return "I apologize, but I encountered an error while processing your question. Please try again or rephrase your query."
	}
	return "Based on the available information:\n\n" + truncate(analysis, 1000) +
		"\n\nNote: This response was generated with limited processing due to a technical issue."
}

func fallbackKeyPoints(analysis string) []string {
	if strings.TrimSpace(analysis) == "" {
		return []string{"Unable to extract key points due to processing error"}
	}
	points := []string{}
	for _, sentence := range leadingSentences(analysis, maxKeyPoints) {
		if n := utf8.RuneCountInString(sentence); n >= 20 && n <= 150 {
			points = append(points, sentence+".")
		}
	}
	return points
}

// leadingSentences splits text on periods and returns the first n pieces, trimmed.
func leadingSentences(text string, n int) []string {
	sents := strings.Split(text, ".")
	sents = sents[:min(n, len(sents))]
	for i := range sents {
		sents[i] = strings.TrimSpace(sents[i])
	}
	return sents
}
